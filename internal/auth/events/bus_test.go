package events

import (
	"context"
	"testing"

	"github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLocalBusFanOut(t *testing.T) {
	bus := NewLocalBus()
	first := bus.Subscribe()
	second := bus.Subscribe()
	defer second.Close()

	require.NoError(t, bus.Publish(context.Background(), domain.Event{Type: domain.EventSignedIn, UserID: 7}))

	got := <-first.Events()
	assert.Equal(t, domain.EventSignedIn, got.Type)
	got = <-second.Events()
	assert.Equal(t, int64(7), got.UserID.Int64())

	first.Close()
	first.Close()
	_, open := <-first.Events()
	assert.False(t, open)
}

func TestLocalBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewLocalBus()
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < DefaultSubscriberBuffer+5; i++ {
		require.NoError(t, bus.Publish(context.Background(), domain.Event{Type: domain.EventTokenRefreshed}))
	}
	assert.Len(t, sub.Events(), DefaultSubscriberBuffer)
}
