package contact

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/providers/email"
	"github.com/smallbiznis/toolhub/pkg/db/option"
	"github.com/smallbiznis/toolhub/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("contact.service",
	fx.Provide(New),
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	GenID  *snowflake.Node
	Clock  clock.Clock
	Email  email.Provider
}

type Service struct {
	log       *zap.Logger
	store     repository.Repository[Message]
	genID     *snowflake.Node
	clock     clock.Clock
	email     email.Provider
	recipient string
}

func New(p Params) *Service {
	return &Service{
		log:       p.Log.Named("contact.service"),
		store:     repository.ProvideStore[Message](p.DB),
		genID:     p.GenID,
		clock:     p.Clock,
		email:     p.Email,
		recipient: strings.TrimSpace(p.Config.Email.ContactRecipient),
	}
}

// Submit stores the message. A failed notice email is logged, not returned,
// since the message is already safe in the database.
func (s *Service) Submit(ctx context.Context, userID *snowflake.ID, req SubmitRequest) (*Message, error) {
	msg, err := s.build(userID, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, msg); err != nil {
		return nil, err
	}

	if s.recipient != "" {
		err := s.email.SendTemplate(ctx, []string{s.recipient}, "contact_notice", map[string]any{
			"name":    msg.Name,
			"email":   msg.Email,
			"subject": msg.Subject,
			"message": msg.Body,
		})
		if err != nil {
			s.log.Warn("contact notice failed", zap.String("contact_id", msg.ID.String()), zap.Error(err))
		}
	}
	return msg, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Message, error) {
	return s.store.Find(ctx, &Message{},
		option.WithOrder("created_at DESC, id DESC"),
		option.WithLimit(limit),
	)
}

func (s *Service) build(userID *snowflake.ID, req SubmitRequest) (*Message, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, ErrInvalidEmail
	}
	body := strings.TrimSpace(req.Message)
	if body == "" || len(body) > maxMessageLength {
		return nil, ErrInvalidMessage
	}
	subject := strings.TrimSpace(req.Subject)
	if len(subject) > maxSubjectLength {
		subject = subject[:maxSubjectLength]
	}

	return &Message{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     strings.ToLower(addr.Address),
		Subject:   subject,
		Body:      body,
		UserID:    userID,
		CreatedAt: s.clock.Now(),
	}, nil
}
