// Package functions backs the /functions/v1 endpoints: autocomplete, the
// one-shot chat recommendation and category insights.
package functions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	chatdomain "github.com/smallbiznis/toolhub/internal/chat/domain"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/llm"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	NameAutocomplete = "get-autocomplete"
	NameChatWithAI   = "chat-with-ai"
	NameInsights     = "generate-insights"

	maxQueryLength = 500
	maxInsights    = 5
)

var (
	ErrQueryRequired    = errors.New("query is required")
	ErrQueryTooLong     = errors.New("query is too long")
	ErrCategoryRequired = errors.New("category is required")
	ErrUnavailable      = errors.New("insights are unavailable")
)

var Module = fx.Module("functions",
	fx.Provide(New),
)

type Recommender interface {
	Recommend(ctx context.Context, query string) (*chatdomain.Recommendation, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Catalog     catalogdomain.Searcher
	Chat        chatdomain.Service
	LLM         llm.Client
	Suggestions *config.SuggestionsHolder
}

type Autocomplete struct {
	Suggestions []string              `json:"suggestions"`
	Tools       []*catalogdomain.Tool `json:"tools"`
}

type Insights struct {
	Category string   `json:"category"`
	Insights []string `json:"insights"`
}

type Service struct {
	log         *zap.Logger
	catalog     catalogdomain.Searcher
	recommender Recommender
	llm         llm.Client
	suggestions *config.SuggestionsHolder
}

func New(p Params) *Service {
	return NewService(p.Log, p.Catalog, p.Chat, p.LLM, p.Suggestions)
}

func NewService(log *zap.Logger, catalog catalogdomain.Searcher, recommender Recommender, client llm.Client, suggestions *config.SuggestionsHolder) *Service {
	return &Service{
		log:         log.Named("functions.service"),
		catalog:     catalog,
		recommender: recommender,
		llm:         client,
		suggestions: suggestions,
	}
}

// Autocomplete expands the query through every configured template and adds
// the best catalog matches. A failed lookup still returns the suggestions.
func (s *Service) Autocomplete(ctx context.Context, query string) (*Autocomplete, error) {
	query, err := cleanQuery(query)
	if err != nil {
		return nil, err
	}
	cfg := s.suggestions.Get()

	out := &Autocomplete{
		Suggestions: cfg.Expand(query),
		Tools:       []*catalogdomain.Tool{},
	}
	tools, err := s.catalog.Search(ctx, query, cfg.MaxTools)
	if err != nil {
		s.log.Warn("autocomplete search failed", zap.Error(err))
		return out, nil
	}
	out.Tools = tools
	return out, nil
}

func (s *Service) ChatWithAI(ctx context.Context, query string) (*chatdomain.Recommendation, error) {
	query, err := cleanQuery(query)
	if err != nil {
		return nil, err
	}
	return s.recommender.Recommend(ctx, query)
}

func (s *Service) GenerateInsights(ctx context.Context, category string) (*Insights, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, ErrCategoryRequired
	}

	prompt := strings.ReplaceAll(s.suggestions.Get().InsightsPrompt, config.QueryPlaceholder, category)
	text, err := s.llm.Complete(ctx, "", prompt)
	if err != nil {
		if errors.Is(err, llm.ErrDisabled) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("generate insights: %w", err)
	}
	return &Insights{Category: category, Insights: splitInsights(text)}, nil
}

func cleanQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	switch {
	case query == "":
		return "", ErrQueryRequired
	case len(query) > maxQueryLength:
		return "", ErrQueryTooLong
	}
	return query, nil
}

// splitInsights keeps one insight per non-empty line, without list markers.
func splitInsights(text string) []string {
	out := make([]string, 0, maxInsights)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxInsights {
			break
		}
	}
	return out
}
