package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/auth/events"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Repo   domain.Repository
	Clock  clock.Clock
	Events events.Publisher `optional:"true"`
}

type Service struct {
	log    *zap.Logger
	repo   domain.Repository
	clock  clock.Clock
	events events.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("profile.service"),
		repo:   p.Repo,
		clock:  p.Clock,
		events: p.Events,
	}
}

func (s *Service) Resolve(ctx context.Context, userID snowflake.ID) (*domain.Profile, error) {
	if userID == 0 {
		return nil, nil
	}
	profile, err := s.repo.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.log.Warn("resolve profile failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}
	return profile, nil
}

func (s *Service) Upsert(ctx context.Context, profile *domain.Profile) error {
	if profile == nil || profile.ID == 0 {
		return domain.ErrInvalidUserID
	}
	profile.Nickname = strings.TrimSpace(profile.Nickname)
	if profile.Nickname == "" {
		return domain.ErrNicknameRequired
	}
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		profile.Name = profile.Nickname
	}

	now := s.clock.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	return s.repo.Upsert(ctx, profile)
}

func (s *Service) Update(ctx context.Context, userID snowflake.ID, req domain.UpdateRequest) (*domain.Profile, error) {
	fields := map[string]any{}
	if req.Nickname != nil {
		nickname := strings.TrimSpace(*req.Nickname)
		if nickname == "" {
			return nil, domain.ErrNicknameRequired
		}
		fields["nickname"] = nickname
	}
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.AvatarURL != nil {
		fields["avatar_url"] = strings.TrimSpace(*req.AvatarURL)
	}
	if len(fields) > 0 {
		fields["updated_at"] = s.clock.Now()
		if err := s.repo.Update(ctx, userID, fields); err != nil {
			return nil, err
		}
	}

	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, userID)
	return profile, nil
}

func (s *Service) publishUpdated(ctx context.Context, userID snowflake.ID) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, authdomain.Event{
		Type:       authdomain.EventUserUpdated,
		UserID:     userID,
		OccurredAt: s.clock.Now(),
	})
	if err != nil {
		s.log.Warn("publish user updated failed", zap.Error(err))
	}
}
