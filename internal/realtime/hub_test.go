package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHubDeliversToTopicSubscribers(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe("chat_messages:1")
	require.NoError(t, err)
	other, err := hub.Subscribe("chat_messages:2")
	require.NoError(t, err)
	defer other.Close()

	hub.Publish("chat_messages:1", Change{Table: TableChatMessages, Type: ChangeInsert})

	select {
	case got := <-sub.Events():
		assert.Equal(t, ChangeInsert, got.Type)
	case <-time.After(time.Second):
		t.Fatal("expected change")
	}
	assert.Empty(t, other.Events())

	sub.Close()
	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers("chat_messages:1"))
	assert.Equal(t, 1, hub.Subscribers("chat_messages:2"))
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	hub.subscriberBuffer = 1
	var dropped int
	hub.OnDrop(func(Change) { dropped++ })

	sub, err := hub.Subscribe(TableTools)
	require.NoError(t, err)
	defer sub.Close()

	hub.Publish(TableTools, Change{Table: TableTools, Type: ChangeInsert})
	hub.Publish(TableTools, Change{Table: TableTools, Type: ChangeUpdate})
	assert.Equal(t, 1, dropped)
}

func TestPublishRacesWithClose(t *testing.T) {
	hub := NewHub()
	const name = "chat_messages:1"
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					hub.Publish(name, Change{Table: TableChatMessages, Type: ChangeInsert})
				}
			}
		}()
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		sub, err := hub.Subscribe(name)
		require.NoError(t, err)
		sub.Close()
	}
	close(stop)
	wg.Wait()
	assert.Zero(t, hub.Subscribers(name))
}

func TestSubscribeRejectsEmptyTopic(t *testing.T) {
	_, err := NewHub().Subscribe("  ")
	assert.ErrorIs(t, err, ErrInvalidTopic)

	var hub *Hub
	_, err = hub.Subscribe("x")
	assert.ErrorIs(t, err, ErrHubUnavailable)
}

func TestLocalEmitterRoutesChatMessages(t *testing.T) {
	hub := NewHub()
	table, err := hub.Subscribe(TableChatMessages)
	require.NoError(t, err)
	defer table.Close()
	conv, err := hub.Subscribe(Topic(TableChatMessages, "42"))
	require.NoError(t, err)
	defer conv.Close()

	change, err := NewRecordChange(TableChatMessages, ChangeInsert, map[string]any{"conversation_id": "42", "content": "hi"})
	require.NoError(t, err)
	require.NoError(t, NewLocalEmitter(hub).Emit(context.Background(), change))

	got := <-conv.Events()
	assert.False(t, got.OccurredAt.IsZero())
	assert.Len(t, table.Events(), 1)
}

func TestDefaultRouterAcceptsNumericIDs(t *testing.T) {
	change := Change{Table: TableChatMessages, Type: ChangeDelete, OldRecord: json.RawMessage(`{"conversation_id":7}`)}
	assert.Equal(t, []string{"chat_messages", "chat_messages:7"}, DefaultRouter(change))
	assert.Equal(t, []string{"ai_tools"}, DefaultRouter(Change{Table: TableTools}))
}

func TestDecodeNotification(t *testing.T) {
	change, err := decodeNotification(`{"table":"ai_tools","type":"UPDATE","record":{"id":1}}`)
	require.NoError(t, err)
	assert.Equal(t, TableTools, change.Table)
	assert.JSONEq(t, `{"id":1}`, string(change.Record))

	_, err = decodeNotification(`{"type":"UPDATE"}`)
	assert.Error(t, err)
	_, err = decodeNotification(`nope`)
	assert.Error(t, err)
}
