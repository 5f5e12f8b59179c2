// Package onboarding runs the ordered steps that turn a fresh account into
// one with an accepted profile.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/internal/navigation"
	"github.com/smallbiznis/toolhub/internal/observability/metrics"
	"github.com/smallbiznis/toolhub/internal/ratelimit"
	profiledomain "github.com/smallbiznis/toolhub/internal/profile/domain"
	"github.com/smallbiznis/toolhub/internal/retry"
	"github.com/smallbiznis/toolhub/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DefaultMaxAvatarBytes int64 = 5 * 1024 * 1024

	// RetryRetention is how long a failure counter outlives its last failure.
	RetryRetention = 24 * time.Hour

	lockTTL = 30 * time.Second
)

var errNotVisible = errors.New("profile not visible yet")

// Avatar is an optional picture upload.
type Avatar struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Input struct {
	Session     *authdomain.SessionView
	Nickname    string
	Name        string
	AcceptTerms bool
	Avatar      *Avatar
}

type Result struct {
	Profile  *profiledomain.Profile `json:"profile,omitempty"`
	Redirect string                 `json:"redirect,omitempty"`
	Retries  int                    `json:"retries"`
	Progress []Progress             `json:"progress"`
}

// ProfileRefresher pushes the new profile into live session stores.
type ProfileRefresher interface {
	RefreshProfile(ctx context.Context, userID snowflake.ID) error
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Profiles  profiledomain.Service
	Uploader  storage.Uploader
	Refresher ProfileRefresher
	Clock     clock.Clock
	Locker    *ratelimit.Locker `optional:"true"`
	Metrics   *metrics.Metrics  `optional:"true"`
}

type Sequencer struct {
	log       *zap.Logger
	profiles  profiledomain.Service
	uploader  storage.Uploader
	refresher ProfileRefresher
	clock     clock.Clock
	locker    Locker
	metrics   *metrics.Metrics
	policy    retry.Policy
	maxBytes  int64

	mu      sync.Mutex
	retries map[snowflake.ID]retryCount
}

type retryCount struct {
	n    int
	last time.Time
}

func New(p Params) *Sequencer {
	var locker Locker = newLocalLocker()
	if p.Locker != nil {
		locker = p.Locker
	}
	policy := retry.DefaultPolicy()
	if p.Config.Onboarding.VerifyAttempts > 0 {
		policy.MaxAttempts = uint(p.Config.Onboarding.VerifyAttempts)
	}
	if p.Config.Onboarding.VerifyInterval > 0 {
		policy.InitialInterval = p.Config.Onboarding.VerifyInterval
	}
	return NewSequencer(p.Log, p.Profiles, p.Uploader, p.Refresher, p.Clock, locker, p.Metrics, policy, p.Config.Onboarding.MaxAvatarBytes)
}

func NewSequencer(log *zap.Logger, profiles profiledomain.Service, uploader storage.Uploader, refresher ProfileRefresher, clk clock.Clock, locker Locker, m *metrics.Metrics, policy retry.Policy, maxBytes int64) *Sequencer {
	if locker == nil {
		locker = newLocalLocker()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAvatarBytes
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Sequencer{
		log:       log.Named("onboarding"),
		profiles:  profiles,
		uploader:  uploader,
		refresher: refresher,
		clock:     clk,
		locker:    locker,
		metrics:   m,
		policy:    policy,
		maxBytes:  maxBytes,
		retries:   make(map[snowflake.ID]retryCount),
	}
}

// Run executes the steps in order. The returned Result is never nil; on
// failure it carries the progress so far and the retry counter.
func (s *Sequencer) Run(ctx context.Context, in Input, onProgress ProgressFunc) (*Result, error) {
	track := &tracker{forward: onProgress}
	result := &Result{}
	finish := func(step Step, err error) (*Result, error) {
		result.Progress = track.snapshot()
		outcome := "ok"
		if err != nil {
			outcome = ErrorCode(err)
		}
		s.metrics.RecordOnboardingRun(ctx, step.String(), outcome)
		return result, err
	}

	// 1. session
	if in.Session == nil || in.Session.UserID == 0 {
		result.Redirect = navigation.PathAuth
		return finish(StepSession, ErrNoSession)
	}
	userID := in.Session.UserID
	track.emit(StepSession, 0)

	lockKey := "onboarding:lock:" + userID.String()
	token, ok, err := s.locker.TryLock(ctx, lockKey, lockTTL)
	if err != nil {
		return finish(StepSession, err)
	}
	if !ok {
		return finish(StepSession, ErrInProgress)
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("release onboarding lock", zap.Error(err))
		}
	}()

	// 2. terms
	existing, err := s.profiles.Resolve(ctx, userID)
	if err != nil {
		return finish(StepTerms, err)
	}
	if !in.AcceptTerms && !existing.Completed() {
		return finish(StepTerms, ErrTermsRequired)
	}
	nickname := strings.TrimSpace(in.Nickname)
	if nickname == "" && existing != nil {
		nickname = existing.Nickname
	}
	if nickname == "" {
		return finish(StepTerms, ErrNicknameRequired)
	}
	track.emit(StepTerms, 0)

	// 3. avatar
	avatarURL := ""
	if existing != nil {
		avatarURL = existing.AvatarURL
	}
	if in.Avatar != nil {
		uploaded, err := s.upload(ctx, userID, in.Avatar)
		if err != nil {
			return finish(StepUpload, err)
		}
		avatarURL = uploaded
	}
	track.emit(StepUpload, 0)

	// 4. save
	name := strings.TrimSpace(in.Name)
	if name == "" && existing != nil {
		name = existing.Name
	}
	profile := &profiledomain.Profile{
		ID:            userID,
		Name:          name,
		Nickname:      nickname,
		AvatarURL:     avatarURL,
		TermsAccepted: true,
		Email:         in.Session.Email,
	}
	if existing != nil {
		profile.CreatedAt = existing.CreatedAt
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		s.log.Warn("save profile failed", zap.String("user_id", userID.String()), zap.Error(err))
		return finish(StepSaveProfile, fmt.Errorf("%w: %w", ErrSaveProfile, err))
	}
	track.emit(StepSaveProfile, 0)

	// 5. verify
	verified, err := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) (*profiledomain.Profile, error) {
		track.emit(StepVerify, attempt)
		got, err := s.profiles.Resolve(ctx, userID)
		if err == nil && got == nil {
			err = errNotVisible
		}
		outcome := "ok"
		if err != nil {
			outcome = "miss"
		}
		s.metrics.RecordVerifyAttempt(ctx, outcome)
		return got, err
	}, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(StepVerify, ctxErr)
		}
		result.Retries = s.bumpRetries(userID)
		s.log.Warn("profile verification failed", zap.String("user_id", userID.String()), zap.Int("retries", result.Retries), zap.Error(err))
		return finish(StepVerify, fmt.Errorf("%w: %w", ErrVerificationFailed, err))
	}

	// 6. done
	s.resetRetries(userID)
	if s.refresher != nil {
		if err := s.refresher.RefreshProfile(ctx, userID); err != nil {
			s.log.Warn("refresh session stores", zap.Error(err))
		}
	}
	track.emit(StepDone, 0)
	result.Profile = verified
	result.Redirect = navigation.PathHome
	return finish(StepDone, nil)
}

func (s *Sequencer) upload(ctx context.Context, userID snowflake.ID, avatar *Avatar) (string, error) {
	if avatar.Size > s.maxBytes {
		return "", ErrFileTooLarge
	}
	if !storage.IsSupportedImage(avatar.ContentType) {
		return "", ErrUnsupportedFile
	}
	key, err := storage.AvatarKey(userID.String(), avatar.ContentType, s.clock.Now())
	if err != nil {
		return "", ErrUnsupportedFile
	}
	url, err := s.uploader.Upload(ctx, storage.Object{
		Key:         key,
		ContentType: avatar.ContentType,
		Size:        avatar.Size,
		Body:        io.LimitReader(avatar.Body, s.maxBytes+1),
	})
	if err != nil {
		s.log.Warn("avatar upload failed", zap.String("user_id", userID.String()), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return url, nil
}

// Retries reports how many verification failures the user has accumulated.
func (s *Sequencer) Retries(userID snowflake.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries[userID].n
}

// EvictStaleRetries forgets counters whose last failure is older than
// RetryRetention and reports how many went.
func (s *Sequencer) EvictStaleRetries(now time.Time) int {
	cutoff := now.Add(-RetryRetention)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for userID, count := range s.retries {
		if count.last.Before(cutoff) {
			delete(s.retries, userID)
			evicted++
		}
	}
	return evicted
}

func (s *Sequencer) bumpRetries(userID snowflake.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := s.retries[userID]
	count.n++
	count.last = s.clock.Now()
	s.retries[userID] = count
	return count.n
}

func (s *Sequencer) resetRetries(userID snowflake.ID) {
	s.mu.Lock()
	delete(s.retries, userID)
	s.mu.Unlock()
}

// ErrorCode is the stable wire code for a Run error.
func ErrorCode(err error) string {
	for _, known := range []error{
		ErrNoSession, ErrTermsRequired, ErrNicknameRequired, ErrFileTooLarge, ErrUnsupportedFile,
		ErrUpload, ErrSaveProfile, ErrVerificationFailed, ErrInProgress,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "error"
}
