package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/auth/events"
	"github.com/smallbiznis/toolhub/internal/auth/password"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/observability/metrics"
	"github.com/smallbiznis/toolhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const refreshTokenBytes = 32

type Params struct {
	fx.In

	Log         *zap.Logger
	Config      config.Config
	Repo        domain.Repository
	SessionRepo domain.SessionRepository
	GenID       *snowflake.Node
	Clock       clock.Clock
	Events      events.Publisher
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	repo        domain.Repository
	sessionRepo domain.SessionRepository
	genID       *snowflake.Node
	clock       clock.Clock
	events      events.Publisher
	metrics     *metrics.Metrics
	tokens      tokenSigner
	refreshTTL  time.Duration
}

func New(p Params) domain.Service {
	secret := p.Config.AuthJWTSecret
	if secret == "" {
		p.Log.Warn("AUTH_JWT_SECRET not set; generating an ephemeral signing key")
		secret = mustRandomToken()
	}
	return &Service{
		log:         p.Log.Named("auth.service"),
		repo:        p.Repo,
		sessionRepo: p.SessionRepo,
		genID:       p.GenID,
		clock:       p.Clock,
		events:      p.Events,
		metrics:     p.Metrics,
		tokens:      tokenSigner{secret: []byte(secret), ttl: p.Config.AccessTokenTTL},
		refreshTTL:  p.Config.RefreshTokenTTL,
	}
}

func (s *Service) SignUp(ctx context.Context, req domain.SignUpRequest) (*domain.SessionView, error) {
	email, err := ValidateCredentials(req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: &hashed,
		Metadata:     map[string]any{"redirect_to": strings.TrimSpace(req.RedirectTo)},
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}

	return s.startSession(ctx, user, req.UserAgent, req.IPAddress)
}

func (s *Service) SignIn(ctx context.Context, req domain.SignInRequest) (*domain.SessionView, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		s.log.Debug("sign in rejected", zap.String("user_id", user.ID.String()))
		return nil, domain.ErrInvalidCredentials
	}
	if password.NeedsRehash(*user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, req.Password)
	}

	return s.startSession(ctx, user, req.UserAgent, req.IPAddress)
}

// upgradeHash rewrites a hash made with older cost settings. Failure only
// costs the upgrade, never the sign-in.
func (s *Service) upgradeHash(ctx context.Context, userID snowflake.ID, raw string) {
	hashed, err := password.Hash(raw)
	if err == nil {
		err = s.repo.UpdatePasswordHash(ctx, userID, hashed)
	}
	if err != nil {
		s.log.Warn("password rehash failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (s *Service) startSession(ctx context.Context, user *domain.User, userAgent, ip string) (*domain.SessionView, error) {
	rawToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		UserID:           user.ID,
		RefreshTokenHash: hashToken(rawToken),
		UserAgent:        strings.TrimSpace(userAgent),
		IPAddress:        strings.TrimSpace(ip),
		ExpiresAt:        now.Add(s.refreshTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	view, err := s.view(user.ID, session.ID, user.Email, rawToken, session.ExpiresAt, now)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventSignedIn, view.UserID, view.SessionID, view)
	return view, nil
}

func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	session, err := s.lookup(ctx, refreshToken)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.RevokeSession(ctx, session.ID, s.clock.Now()); err != nil {
		return err
	}
	s.publish(ctx, domain.EventSignedOut, session.UserID, session.ID, nil)
	return nil
}

// GetSession validates the refresh token and mints a fresh access token
// without rotating the refresh token.
func (s *Service) GetSession(ctx context.Context, refreshToken string) (*domain.SessionView, error) {
	session, user, err := s.active(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.sessionRepo.UpdateLastSeen(ctx, session.ID, now); err != nil {
		return nil, err
	}
	return s.view(user.ID, session.ID, user.Email, strings.TrimSpace(refreshToken), session.ExpiresAt, now)
}

// Refresh rotates the refresh token. The old token stops working.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.SessionView, error) {
	session, user, err := s.active(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	rawToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	refreshExpiresAt := now.Add(s.refreshTTL)
	if err := s.sessionRepo.RotateToken(ctx, session.ID, session.RefreshTokenHash, hashToken(rawToken), refreshExpiresAt, now); err != nil {
		return nil, err
	}

	view, err := s.view(user.ID, session.ID, user.Email, rawToken, refreshExpiresAt, now)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventTokenRefreshed, user.ID, session.ID, view)
	return view, nil
}

func (s *Service) VerifyAccessToken(_ context.Context, accessToken string) (*domain.Claims, error) {
	token := strings.TrimSpace(accessToken)
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	return s.tokens.parse(token, s.clock.Now())
}

func (s *Service) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return s.sessionRepo.PurgeExpired(ctx, before)
}

func (s *Service) lookup(ctx context.Context, refreshToken string) (*domain.Session, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}
	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}
	return session, nil
}

func (s *Service) active(ctx context.Context, refreshToken string) (*domain.Session, *domain.User, error) {
	session, err := s.lookup(ctx, refreshToken)
	if err != nil {
		return nil, nil, err
	}
	if session.RevokedAt != nil {
		return nil, nil, domain.ErrSessionRevoked
	}
	if s.clock.Now().After(session.ExpiresAt) {
		return nil, nil, domain.ErrSessionExpired
	}
	user, err := s.repo.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidSession
		}
		return nil, nil, err
	}
	return session, user, nil
}

func (s *Service) view(userID, sessionID snowflake.ID, email, refreshToken string, refreshExpiresAt, now time.Time) (*domain.SessionView, error) {
	access, expiresAt, err := s.tokens.sign(userID, sessionID, email, now)
	if err != nil {
		return nil, err
	}
	return &domain.SessionView{
		SessionID:        sessionID,
		UserID:           userID,
		Email:            email,
		AccessToken:      access,
		RefreshToken:     refreshToken,
		ExpiresAt:        expiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func (s *Service) publish(ctx context.Context, eventType domain.EventType, userID, sessionID snowflake.ID, view *domain.SessionView) {
	s.metrics.RecordAuthEvent(ctx, string(eventType))
	if s.events == nil {
		return
	}
	event := domain.Event{
		Type:       eventType,
		UserID:     userID,
		SessionID:  sessionID,
		Session:    view,
		OccurredAt: s.clock.Now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("publish auth event failed", zap.String("type", string(eventType)), zap.Error(err))
	}
}

// ValidateCredentials normalises the email and enforces the password floor.
// Handlers call it before the service so weak passwords never reach storage.
func ValidateCredentials(rawEmail, rawPassword string) (string, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return "", domain.ErrInvalidEmail
	}
	if len(rawPassword) < domain.MinPasswordLength {
		return "", domain.ErrPasswordTooShort
	}
	return email, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func mustRandomToken() string {
	token, err := newRefreshToken()
	if err != nil {
		panic(err)
	}
	return token
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
