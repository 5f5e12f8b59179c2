package functions

import (
	"context"
	"errors"
	"strings"
	"testing"

	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	chatdomain "github.com/smallbiznis/toolhub/internal/chat/domain"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/llm"
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

type stubRecommender struct{ query string }

func (s *stubRecommender) Recommend(_ context.Context, query string) (*chatdomain.Recommendation, error) {
	s.query = query
	return &chatdomain.Recommendation{Message: "try these"}, nil
}

type stubLLM struct {
	text   string
	err    error
	prompt string
}

func (s *stubLLM) Complete(_ context.Context, _, prompt string) (string, error) {
	s.prompt = prompt
	return s.text, s.err
}

func (s *stubLLM) Name() string { return "stub" }

func newService(searcher catalogdomain.Searcher, client llm.Client) (*Service, *stubRecommender) {
	rec := &stubRecommender{}
	holder := config.NewStaticSuggestionsHolder(config.DefaultSuggestionsConfig())
	return NewService(zap.NewNop(), searcher, rec, client, holder), rec
}

func TestAutocompleteResizeImages(t *testing.T) {
	searcher := &mockSearcher{}
	tools := []*catalogdomain.Tool{{Name: "Resizer", Slug: "resizer"}}
	searcher.On("Search", mock.Anything, "resize images", 5).Return(tools, nil)
	svc, _ := newService(searcher, llm.Disabled{})

	out, err := svc.Autocomplete(context.Background(), " resize images ")
	require.NoError(t, err)
	require.Len(t, out.Suggestions, 5)
	for _, s := range out.Suggestions {
		assert.True(t, strings.HasPrefix(s, "I need an AI tool"), s)
	}
	assert.Equal(t, tools, out.Tools)
	searcher.AssertExpectations(t)
}

func TestAutocompleteSurvivesSearchFailure(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.On("Search", mock.Anything, "write copy", 5).Return(nil, errors.New("db down"))
	svc, _ := newService(searcher, llm.Disabled{})

	out, err := svc.Autocomplete(context.Background(), "write copy")
	require.NoError(t, err)
	assert.Len(t, out.Suggestions, 5)
	assert.Empty(t, out.Tools)
}

func TestAutocompleteValidatesQuery(t *testing.T) {
	svc, _ := newService(&mockSearcher{}, llm.Disabled{})

	_, err := svc.Autocomplete(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrQueryRequired)
	_, err = svc.Autocomplete(context.Background(), strings.Repeat("x", maxQueryLength+1))
	assert.ErrorIs(t, err, ErrQueryTooLong)
}

func TestChatWithAIDelegates(t *testing.T) {
	svc, rec := newService(&mockSearcher{}, llm.Disabled{})

	out, err := svc.ChatWithAI(context.Background(), " edit video ")
	require.NoError(t, err)
	assert.Equal(t, "try these", out.Message)
	assert.Equal(t, "edit video", rec.query)
}

func TestGenerateInsights(t *testing.T) {
	client := &stubLLM{text: "1. Teams draft faster\n\n- Reviews get shorter\n* Fewer handoffs"}
	svc, _ := newService(&mockSearcher{}, client)

	out, err := svc.GenerateInsights(context.Background(), "Writing")
	require.NoError(t, err)
	assert.Equal(t, []string{"Teams draft faster", "Reviews get shorter", "Fewer handoffs"}, out.Insights)
	assert.Contains(t, client.prompt, "Writing")
	assert.NotContains(t, client.prompt, config.QueryPlaceholder)
}

func TestGenerateInsightsErrors(t *testing.T) {
	svc, _ := newService(&mockSearcher{}, llm.Disabled{})

	_, err := svc.GenerateInsights(context.Background(), "")
	assert.ErrorIs(t, err, ErrCategoryRequired)
	_, err = svc.GenerateInsights(context.Background(), "Video")
	assert.ErrorIs(t, err, ErrUnavailable)

	boom := errors.New("upstream 500")
	svc, _ = newService(&mockSearcher{}, &stubLLM{err: boom})
	_, err = svc.GenerateInsights(context.Background(), "Video")
	assert.ErrorIs(t, err, boom)
}
