package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	"github.com/smallbiznis/toolhub/internal/chat/domain"
	"github.com/smallbiznis/toolhub/internal/chat/repository"
	"github.com/smallbiznis/toolhub/internal/chat/toolblock"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/llm"
	"github.com/smallbiznis/toolhub/internal/realtime"
	"github.com/smallbiznis/toolhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSearcher struct{ mock.Mock }

func (m *mockSearcher) Search(ctx context.Context, query string, limit int) ([]*catalogdomain.Tool, error) {
	args := m.Called(ctx, query, limit)
	tools, _ := args.Get(0).([]*catalogdomain.Tool)
	return tools, args.Error(1)
}

type stubLLM struct {
	reply string
	err   error
}

func (s stubLLM) Complete(context.Context, string, string) (string, error) { return s.reply, s.err }
func (s stubLLM) Name() string { return "stub" }

type fixture struct {
	svc      *Service
	clock    *clock.FakeClock
	hub      *realtime.Hub
	searcher *mockSearcher
}

func newFixture(t *testing.T, model llm.Client) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Conversation{}, &domain.Message{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		clock:    clock.NewFakeClock(time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)),
		hub:      realtime.NewHub(),
		searcher: &mockSearcher{},
	}
	f.searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]*catalogdomain.Tool{
		{Name: "Remove.bg", Description: "Removes backgrounds", Category: "Image Editing", Slug: "remove-bg"},
	}, nil).Maybe()

	f.svc = New(Params{
		Log:         zap.NewNop(),
		Repo:        repository.New(conn),
		GenID:       node,
		Clock:       f.clock,
		Hub:         f.hub,
		Emitter:     realtime.NewLocalEmitter(f.hub),
		Catalog:     f.searcher,
		LLM:         model,
		Suggestions: config.NewStaticSuggestionsHolder(config.DefaultSuggestionsConfig()),
	}).(*Service)
	return f
}

func TestAutoReplyOnceForSingleUserMessage(t *testing.T) {
	f := newFixture(t, llm.Disabled{})
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, nil, "resize images")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ThreadID)

	reply, err := f.svc.MaybeAutoReply(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, domain.RoleAssistant, reply.Role)
	assert.Contains(t, reply.Content, "Here are some AI tools that can help you resize images:")
	tools := toolblock.Tools(reply.Content)
	require.Len(t, tools, 1)
	assert.Equal(t, "remove-bg", tools[0].Slug)

	again, err := f.svc.MaybeAutoReply(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, again)

	msgs, err := f.svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	f.searcher.AssertNumberOfCalls(t, "Search", 1)
}

func TestAutoReplyFitsLongModelOutput(t *testing.T) {
	f := newFixture(t, stubLLM{reply: strings.Repeat("é", 4250)})
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, nil, "remove backgrounds")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.MaybeAutoReply(ctx, conv.ID)
		require.NoError(t, err)
	}

	msgs, err := f.svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	reply := msgs[1]
	assert.Equal(t, domain.RoleAssistant, reply.Role)
	assert.LessOrEqual(t, len(reply.Content), domain.MaxContentLength)
	assert.True(t, utf8.ValidString(reply.Content))
	require.Len(t, toolblock.Tools(reply.Content), 1)
	f.searcher.AssertNumberOfCalls(t, "Search", 1)
}

func TestComposeReplyDropsTrailingToolsBeforeProse(t *testing.T) {
	long := strings.Repeat("d", 3000)
	rec := &domain.Recommendation{
		Message: "Short intro.",
		Tools: []toolblock.Tool{
			{Name: "One", Description: long, Slug: "one"},
			{Name: "Two", Description: long, Slug: "two"},
			{Name: "Three", Description: long, Slug: "three"},
		},
	}

	out := composeReply(rec)
	assert.LessOrEqual(t, len(out), domain.MaxContentLength)
	assert.True(t, strings.HasPrefix(out, "Short intro."))
	tools := toolblock.Tools(out)
	require.Len(t, tools, 2)
	assert.Equal(t, "two", tools[1].Slug)

	assert.Equal(t, "ab…", clampText("abcdef", 5))
	assert.Equal(t, "é…", clampText("éééé", 6))
	assert.Equal(t, "plain", clampText("plain", 5))
}

func TestAutoReplyRaceProducesOneReply(t *testing.T) {
	f := newFixture(t, stubLLM{reply: "Try these."})
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, nil, "write blog posts")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		replies int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := f.svc.MaybeAutoReply(ctx, conv.ID)
			assert.NoError(t, err)
			if reply != nil {
				mu.Lock()
				replies++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, replies)
	msgs, err := f.svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestNoAutoReplyWithTwoMessages(t *testing.T) {
	f := newFixture(t, llm.Disabled{})
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, nil, "summarise meetings")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, conv.ID, "and also transcribe them", domain.RoleUser)
	require.NoError(t, err)

	reply, err := f.svc.MaybeAutoReply(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, reply)
	f.searcher.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecommendUsesModelProse(t *testing.T) {
	f := newFixture(t, stubLLM{reply: "Remove.bg is your best bet."})
	rec, err := f.svc.Recommend(context.Background(), "remove backgrounds")
	require.NoError(t, err)
	assert.Equal(t, "Remove.bg is your best bet.", rec.Message)
	assert.Len(t, rec.Tools, 1)
}

func TestRecommendFallsBackWhenModelFails(t *testing.T) {
	f := newFixture(t, stubLLM{err: errors.New("boom")})
	rec, err := f.svc.Recommend(context.Background(), "remove backgrounds")
	require.NoError(t, err)
	assert.Equal(t, "Here are some AI tools that can help you remove backgrounds:", rec.Message)
}

func TestMessagesAreOrderedByCreatedAtThenID(t *testing.T) {
	f := newFixture(t, llm.Disabled{})
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, nil, "first")
	require.NoError(t, err)

	// same timestamp; snowflake ids break the tie in insert order
	second, err := f.svc.Send(ctx, conv.ID, "second", domain.RoleAssistant)
	require.NoError(t, err)
	third, err := f.svc.Send(ctx, conv.ID, "third", domain.RoleUser)
	require.NoError(t, err)

	msgs, err := f.svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, second.ID, msgs[1].ID)
	assert.Equal(t, third.ID, msgs[2].ID)
}

func TestSubscribeReceivesInserts(t *testing.T) {
	f := newFixture(t, llm.Disabled{})
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, nil, "hello")
	require.NoError(t, err)

	sub, err := f.svc.Subscribe(ctx, conv.ID)
	require.NoError(t, err)
	defer sub.Close()

	sent, err := f.svc.Send(ctx, conv.ID, "from another tab", domain.RoleUser)
	require.NoError(t, err)

	select {
	case change := <-sub.Events():
		var got domain.Message
		require.NoError(t, json.Unmarshal(change.Record, &got))
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, realtime.ChangeInsert, change.Type)
	case <-time.After(time.Second):
		t.Fatal("expected insert")
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t, llm.Disabled{})
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, nil, "hello")
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, conv.ID, "   ", domain.RoleUser)
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
	_, err = f.svc.Send(ctx, conv.ID, "hi", domain.Role("system"))
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
	_, err = f.svc.Send(ctx, snowflake.ID(12345), "hi", domain.RoleUser)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	_, err = f.svc.Subscribe(ctx, snowflake.ID(12345))
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}
