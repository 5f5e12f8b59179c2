package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/auth/events"
	"github.com/smallbiznis/toolhub/internal/auth/password"
	"github.com/smallbiznis/toolhub/internal/auth/repository"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/smallbiznis/toolhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	svc   authdomain.Service
	clock *clock.FakeClock
	bus   *events.LocalBus
	repo  authdomain.Repository
}

func newTestService(t *testing.T) testEnv {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&authdomain.User{}, &authdomain.Session{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo, sessionRepo := repository.New(dbConn)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	clk := clock.NewFakeClock(time.Now())
	bus := events.NewLocalBus()
	svc := New(Params{
		Log: zap.NewNop(),
		Config: config.Config{
			AuthJWTSecret:   "test-secret",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Repo:        repo,
		SessionRepo: sessionRepo,
		GenID:       node,
		Clock:       clk,
		Events:      bus,
	})
	return testEnv{svc: svc, clock: clk, bus: bus, repo: repo}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	env := newTestService(t)

	_, err := env.svc.SignUp(context.Background(), authdomain.SignUpRequest{Email: "a@b.com", Password: "short"})
	assert.ErrorIs(t, err, authdomain.ErrPasswordTooShort)

	_, err = env.svc.SignUp(context.Background(), authdomain.SignUpRequest{Email: "not-an-email", Password: "long-enough"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidEmail)
}

func TestSignUpThenSignIn(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	sub := env.bus.Subscribe()
	defer sub.Close()

	view, err := env.svc.SignUp(ctx, authdomain.SignUpRequest{Email: "Alice@Example.com", Password: "correct-password"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", view.Email)
	assert.NotEmpty(t, view.AccessToken)
	assert.NotEmpty(t, view.RefreshToken)

	event := <-sub.Events()
	assert.Equal(t, authdomain.EventSignedIn, event.Type)
	assert.Equal(t, view.UserID, event.UserID)

	_, err = env.svc.SignUp(ctx, authdomain.SignUpRequest{Email: "alice@example.com", Password: "another-password"})
	assert.ErrorIs(t, err, authdomain.ErrUserExists)

	_, err = env.svc.SignIn(ctx, authdomain.SignInRequest{Email: "alice@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	signedIn, err := env.svc.SignIn(ctx, authdomain.SignInRequest{Email: "alice@example.com", Password: "correct-password"})
	require.NoError(t, err)
	assert.Equal(t, view.UserID, signedIn.UserID)
	assert.NotEqual(t, view.SessionID, signedIn.SessionID)

	claims, err := env.svc.VerifyAccessToken(ctx, signedIn.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, signedIn.UserID, claims.UserID)
	assert.Equal(t, signedIn.SessionID, claims.SessionID)
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	view, err := env.svc.SignUp(ctx, authdomain.SignUpRequest{Email: "bob@example.com", Password: "strong-password"})
	require.NoError(t, err)

	refreshed, err := env.svc.Refresh(ctx, view.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, view.RefreshToken, refreshed.RefreshToken)

	_, err = env.svc.GetSession(ctx, view.RefreshToken)
	assert.ErrorIs(t, err, authdomain.ErrInvalidSession)

	current, err := env.svc.GetSession(ctx, refreshed.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, view.SessionID, current.SessionID)
}

func TestSignOutRevokes(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	view, err := env.svc.SignUp(ctx, authdomain.SignUpRequest{Email: "carol@example.com", Password: "strong-password"})
	require.NoError(t, err)

	sub := env.bus.Subscribe()
	defer sub.Close()
	require.NoError(t, env.svc.SignOut(ctx, view.RefreshToken))

	event := <-sub.Events()
	assert.Equal(t, authdomain.EventSignedOut, event.Type)
	assert.Nil(t, event.Session)

	_, err = env.svc.GetSession(ctx, view.RefreshToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionRevoked)
}

func TestExpiry(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	view, err := env.svc.SignUp(ctx, authdomain.SignUpRequest{Email: "dan@example.com", Password: "strong-password"})
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)
	_, err = env.svc.VerifyAccessToken(ctx, view.AccessToken)
	assert.ErrorIs(t, err, authdomain.ErrTokenExpired)

	env.clock.Advance(24 * time.Hour)
	_, err = env.svc.GetSession(ctx, view.RefreshToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionExpired)

	purged, err := env.svc.PurgeExpiredSessions(ctx, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestVerifyAccessTokenRejectsGarbage(t *testing.T) {
	env := newTestService(t)
	_, err := env.svc.VerifyAccessToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
	_, err = env.svc.VerifyAccessToken(context.Background(), "")
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestSignInUpgradesWeakHash(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	weak, err := password.HashWith("legacy-password", password.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	require.NoError(t, err)
	require.NoError(t, env.repo.Create(ctx, &authdomain.User{ID: 99, Email: "old@example.com", PasswordHash: &weak}))

	_, err = env.svc.SignIn(ctx, authdomain.SignInRequest{Email: "old@example.com", Password: "legacy-password"})
	require.NoError(t, err)

	user, err := env.repo.FindByID(ctx, 99)
	require.NoError(t, err)
	require.NotNil(t, user.PasswordHash)
	assert.False(t, password.NeedsRehash(*user.PasswordHash))
	assert.True(t, password.Verify("legacy-password", *user.PasswordHash))
}
