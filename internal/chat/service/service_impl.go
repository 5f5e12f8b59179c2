package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	catalogdomain "github.com/smallbiznis/toolhub/internal/catalog/domain"
	"github.com/smallbiznis/toolhub/internal/chat/domain"
	"github.com/smallbiznis/toolhub/internal/chat/toolblock"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/llm"
	"github.com/smallbiznis/toolhub/internal/observability/metrics"
	"github.com/smallbiznis/toolhub/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Repo        domain.Repository
	GenID       *snowflake.Node
	Clock       clock.Clock
	Hub         *realtime.Hub
	Emitter     realtime.Emitter
	Catalog     catalogdomain.Searcher
	LLM         llm.Client
	Suggestions *config.SuggestionsHolder
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	repo        domain.Repository
	genID       *snowflake.Node
	clock       clock.Clock
	hub         *realtime.Hub
	emitter     realtime.Emitter
	catalog     catalogdomain.Searcher
	llm         llm.Client
	suggestions *config.SuggestionsHolder
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("chat.service"),
		repo:        p.Repo,
		genID:       p.GenID,
		clock:       p.Clock,
		hub:         p.Hub,
		emitter:     p.Emitter,
		catalog:     p.Catalog,
		llm:         p.LLM,
		suggestions: p.Suggestions,
		metrics:     p.Metrics,
	}
}

func (s *Service) CreateConversation(ctx context.Context, userID *snowflake.ID, query string) (*domain.Conversation, error) {
	content, err := validateContent(query)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	conv := &domain.Conversation{
		ID:        s.genID.Generate(),
		ThreadID:  ulid.Make().String(),
		UserID:    userID,
		Query:     content,
		CreatedAt: now,
	}
	first := &domain.Message{
		ID:             s.genID.Generate(),
		ConversationID: conv.ID,
		Content:        content,
		Role:           domain.RoleUser,
		CreatedAt:      now,
	}
	if err := s.repo.CreateConversation(ctx, conv, first); err != nil {
		return nil, err
	}
	s.announce(ctx, first)
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, id snowflake.ID) (*domain.Conversation, error) {
	if id == 0 {
		return nil, domain.ErrInvalidConversation
	}
	return s.repo.FindConversation(ctx, id)
}

func (s *Service) Send(ctx context.Context, conversationID snowflake.ID, content string, role domain.Role) (*domain.Message, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:             s.genID.Generate(),
		ConversationID: conversationID,
		Content:        content,
		Role:           role,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.announce(ctx, msg)
	return msg, nil
}

func (s *Service) ListMessages(ctx context.Context, conversationID snowflake.ID) ([]*domain.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID, 0)
}

func (s *Service) Subscribe(ctx context.Context, conversationID snowflake.ID) (*realtime.Subscription, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(realtime.Topic(realtime.TableChatMessages, conversationID.String()))
}

func (s *Service) MaybeAutoReply(ctx context.Context, conversationID snowflake.ID) (*domain.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.AutoRepliedAt != nil {
		s.metrics.RecordAutoReply(ctx, "skipped")
		return nil, nil
	}

	messages, err := s.repo.ListMessages(ctx, conversationID, 2)
	if err != nil {
		return nil, err
	}
	if len(messages) != 1 || messages[0].Role != domain.RoleUser {
		s.metrics.RecordAutoReply(ctx, "skipped")
		return nil, nil
	}

	won, err := s.repo.ClaimAutoReply(ctx, conversationID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !won {
		s.metrics.RecordAutoReply(ctx, "lost_race")
		return nil, nil
	}

	rec, err := s.Recommend(ctx, messages[0].Content)
	if err != nil {
		s.log.Warn("recommendation failed", zap.String("conversation_id", conversationID.String()), zap.Error(err))
		rec = &domain.Recommendation{Message: s.fallbackProse(messages[0].Content, 0)}
	}

	reply, err := s.Send(ctx, conversationID, composeReply(rec), domain.RoleAssistant)
	if err != nil {
		s.metrics.RecordAutoReply(ctx, "error")
		if isContentErr(err) {
			// Another attempt would build the same reply, so the claim stays.
			return nil, err
		}
		if releaseErr := s.repo.ReleaseAutoReply(context.WithoutCancel(ctx), conversationID); releaseErr != nil {
			s.log.Error("release auto reply claim", zap.Error(releaseErr))
		}
		return nil, err
	}
	s.metrics.RecordAutoReply(ctx, "replied")
	return reply, nil
}

func (s *Service) Recommend(ctx context.Context, query string) (*domain.Recommendation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyContent
	}
	cfg := s.suggestions.Get()

	found, err := s.catalog.Search(ctx, query, cfg.MaxTools)
	if err != nil && !errors.Is(err, catalogdomain.ErrEmptyQuery) {
		return nil, err
	}
	tools := make([]toolblock.Tool, 0, len(found))
	for _, t := range found {
		tools = append(tools, toolblock.Tool{
			Name:        t.Name,
			Description: t.Description,
			Category:    t.Category,
			Logo:        t.LogoURL,
			Slug:        t.Slug,
		})
	}

	prose, err := s.llm.Complete(ctx, cfg.ChatSystemPrompt, buildPrompt(query, tools))
	if err != nil {
		if !errors.Is(err, llm.ErrDisabled) {
			s.log.Warn("llm completion failed", zap.String("llm", s.llm.Name()), zap.Error(err))
		}
		prose = s.fallbackProse(query, len(tools))
	}
	if strings.TrimSpace(prose) == "" {
		prose = s.fallbackProse(query, len(tools))
	}
	return &domain.Recommendation{Message: prose, Tools: tools}, nil
}

func (s *Service) fallbackProse(query string, found int) string {
	if found == 0 {
		return fmt.Sprintf("I couldn't find a tool for %q yet. Try describing the task in different words.", query)
	}
	return fmt.Sprintf("Here are some AI tools that can help you %s:", query)
}

func buildPrompt(query string, tools []toolblock.Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n", query)
	if len(tools) == 0 {
		b.WriteString("No matching tools were found in the directory.\n")
		return b.String()
	}
	b.WriteString("Matching tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s (%s): %s\n", t.Name, t.Category, t.Description)
	}
	return b.String()
}

const (
	replySeparator = "\n\n"
	ellipsis       = "…"
	// minReplyProse is how much prose survives before tools are dropped.
	minReplyProse = 280
)

// composeReply renders the prose followed by tool blocks and keeps the result
// within MaxContentLength. Trailing tools go first, then the prose is cut.
func composeReply(rec *domain.Recommendation) string {
	prose := strings.TrimSpace(rec.Message)
	tools := rec.Tools
	for {
		var blocks string
		budget := domain.MaxContentLength
		if len(tools) > 0 {
			blocks = toolblock.Format(tools)
			budget -= len(blocks) + len(replySeparator)
		}
		if len(tools) > 0 && budget < min(len(prose), minReplyProse) {
			tools = tools[:len(tools)-1]
			continue
		}

		prose = clampText(prose, budget)
		switch {
		case blocks == "":
			return prose
		case prose == "":
			return blocks
		}
		return prose + replySeparator + blocks
	}
}

// clampText cuts s to at most n bytes on a rune boundary, marking the cut.
func clampText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= len(ellipsis) {
		return ""
	}
	cut := n - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRightFunc(s[:cut], unicode.IsSpace) + ellipsis
}

func isContentErr(err error) bool {
	return errors.Is(err, domain.ErrContentTooLong) || errors.Is(err, domain.ErrEmptyContent)
}

func validateContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", domain.ErrEmptyContent
	}
	if len(content) > domain.MaxContentLength {
		return "", domain.ErrContentTooLong
	}
	return content, nil
}

func (s *Service) announce(ctx context.Context, msg *domain.Message) {
	s.metrics.RecordChatMessage(ctx, string(msg.Role))
	change, err := realtime.NewRecordChange(realtime.TableChatMessages, realtime.ChangeInsert, msg)
	if err == nil {
		err = s.emitter.Emit(ctx, change)
	}
	if err != nil {
		s.log.Warn("emit message failed", zap.String("message_id", msg.ID.String()), zap.Error(err))
	}
}
