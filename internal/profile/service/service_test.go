package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/toolhub/internal/auth/domain"
	"github.com/smallbiznis/toolhub/internal/auth/events"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/profile/domain"
	"github.com/smallbiznis/toolhub/internal/profile/repository"
	"github.com/smallbiznis/toolhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock, *events.LocalBus) {
	t.Helper()

	dbConn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(&domain.Profile{}))

	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	bus := events.NewLocalBus()
	svc := New(Params{Log: zap.NewNop(), Repo: repository.New(dbConn), Clock: clk, Events: bus})
	return svc, dbConn, clk, bus
}

func TestResolveMissingIsNil(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	profile, err := svc.Resolve(context.Background(), snowflake.ID(99))
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestUpsertIsIdempotent(t *testing.T) {
	svc, dbConn, clk, _ := newTestService(t)
	ctx := context.Background()
	userID := snowflake.ID(1001)

	require.NoError(t, svc.Upsert(ctx, &domain.Profile{ID: userID, Nickname: "ada", TermsAccepted: true, Email: "ada@example.com"}))
	clk.Advance(time.Minute)
	require.NoError(t, svc.Upsert(ctx, &domain.Profile{ID: userID, Nickname: "lovelace", Name: "Ada Lovelace", TermsAccepted: true, AvatarURL: "https://cdn/ada.png"}))

	var count int64
	require.NoError(t, dbConn.Model(&domain.Profile{}).Where("id = ?", userID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err := svc.Resolve(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "lovelace", got.Nickname)
	assert.Equal(t, "Ada Lovelace", got.Name)
	assert.Equal(t, "https://cdn/ada.png", got.AvatarURL)
	assert.True(t, got.Completed())
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestUpsertRequiresNickname(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	err := svc.Upsert(context.Background(), &domain.Profile{ID: 5, Nickname: "  "})
	assert.ErrorIs(t, err, domain.ErrNicknameRequired)
}

func TestUpdatePublishesUserUpdated(t *testing.T) {
	svc, _, _, bus := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Upsert(ctx, &domain.Profile{ID: 7, Nickname: "sam", TermsAccepted: true}))

	sub := bus.Subscribe()
	defer sub.Close()

	name := "Sam Smith"
	got, err := svc.Update(ctx, 7, domain.UpdateRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Sam Smith", got.Name)

	event := <-sub.Events()
	assert.Equal(t, authdomain.EventUserUpdated, event.Type)
	assert.Equal(t, snowflake.ID(7), event.UserID)

	_, err = svc.Update(ctx, 8, domain.UpdateRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type repoMock struct {
	mock.Mock
}

func (m *repoMock) FindByID(ctx context.Context, id snowflake.ID) (*domain.Profile, error) {
	args := m.Called(ctx, id)
	profile, _ := args.Get(0).(*domain.Profile)
	return profile, args.Error(1)
}

func (m *repoMock) Upsert(ctx context.Context, profile *domain.Profile) error {
	return m.Called(ctx, profile).Error(0)
}

func (m *repoMock) Update(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	return m.Called(ctx, id, fields).Error(0)
}

func TestResolveSurfacesTransportErrors(t *testing.T) {
	repo := &repoMock{}
	boom := errors.New("connection reset")
	repo.On("FindByID", mock.Anything, snowflake.ID(3)).Return(nil, boom)

	svc := New(Params{Log: zap.NewNop(), Repo: repo, Clock: clock.SystemClock{}})
	profile, err := svc.Resolve(context.Background(), 3)

	assert.Nil(t, profile)
	assert.ErrorIs(t, err, boom)
	repo.AssertExpectations(t)
}
