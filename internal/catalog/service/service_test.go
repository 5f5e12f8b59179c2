package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/internal/catalog/domain"
	"github.com/smallbiznis/toolhub/internal/catalog/repository"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/realtime"
	"github.com/smallbiznis/toolhub/pkg/db"
	"github.com/smallbiznis/toolhub/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock, *realtime.Hub) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Tool{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	hub := realtime.NewHub()

	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.New(conn),
		Clock:   clk,
		Emitter: realtime.NewLocalEmitter(hub),
	})
	return svc.(*Service), clk, hub
}

func seedTools(t *testing.T, svc *Service, clk *clock.FakeClock) {
	t.Helper()
	tools := []*domain.Tool{
		{Name: "Image Resizer", Category: "Image Editing", Description: "resize images in bulk", IsApproved: true, Views: 30},
		{Name: "Chat Buddy", Category: "Chatbots", Description: "friendly chat assistant", IsApproved: true, Views: 50, IsFeatured: true},
		{Name: "Old Cropper", Category: "Image Editing", Description: "crop and resize photos", IsApproved: true, Views: 90,
			CreatedAt: clk.Now().Add(-60 * 24 * time.Hour)},
		{Name: "Hidden Draft", Category: "Chatbots", Description: "resize everything", IsApproved: false},
	}
	n, err := svc.Seed(context.Background(), tools)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestSeedSkipsExistingSlugs(t *testing.T) {
	svc, clk, _ := newTestService(t)
	seedTools(t, svc, clk)

	n, err := svc.Seed(context.Background(), []*domain.Tool{{Name: "Chat Buddy", Category: "Chatbots", IsApproved: true}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListPopularPaginates(t *testing.T) {
	svc, clk, _ := newTestService(t)
	seedTools(t, svc, clk)
	ctx := context.Background()

	first, err := svc.List(ctx, domain.ListRequest{Kind: domain.ListPopular, Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Tools, 2)
	assert.Equal(t, "Old Cropper", first.Tools[0].Name)
	assert.Equal(t, "Chat Buddy", first.Tools[1].Name)
	require.True(t, first.PageInfo.HasMore)

	second, err := svc.List(ctx, domain.ListRequest{Kind: domain.ListPopular, Pagination: pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Tools, 1)
	assert.Equal(t, "Image Resizer", second.Tools[0].Name)
	assert.False(t, second.PageInfo.HasMore)
}

func TestListTrendingAndFeatured(t *testing.T) {
	svc, clk, _ := newTestService(t)
	seedTools(t, svc, clk)
	ctx := context.Background()

	trending, err := svc.List(ctx, domain.ListRequest{Kind: domain.ListTrending})
	require.NoError(t, err)
	for _, tool := range trending.Tools {
		assert.NotEqual(t, "Old Cropper", tool.Name)
	}

	featured, err := svc.List(ctx, domain.ListRequest{Kind: domain.ListFeatured})
	require.NoError(t, err)
	require.Len(t, featured.Tools, 1)
	assert.Equal(t, "Chat Buddy", featured.Tools[0].Name)

	_, err = svc.List(ctx, domain.ListRequest{Kind: "weird"})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}

func TestSearchFallsBackToSubstring(t *testing.T) {
	svc, clk, _ := newTestService(t)
	seedTools(t, svc, clk)

	got, err := svc.Search(context.Background(), "resize images", 10)
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, tool := range got {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"Image Resizer", "Old Cropper"}, names)

	_, err = svc.Search(context.Background(), "  ", 10)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)

	for _, wildcard := range []string{"%", "_", "image%"} {
		got, err := svc.Search(context.Background(), wildcard, 10)
		require.NoError(t, err)
		assert.Empty(t, got, wildcard)
	}
}

func TestGetByIDOrSlugHidesUnapproved(t *testing.T) {
	svc, clk, _ := newTestService(t)
	seedTools(t, svc, clk)
	ctx := context.Background()

	bySlug, err := svc.Get(ctx, "chat-buddy")
	require.NoError(t, err)
	byID, err := svc.Get(ctx, bySlug.ID.String())
	require.NoError(t, err)
	assert.Equal(t, bySlug.ID, byID.ID)

	_, err = svc.Get(ctx, "hidden-draft")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmitGeneratesUniqueSlug(t *testing.T) {
	svc, clk, _ := newTestService(t)
	seedTools(t, svc, clk)
	ctx := context.Background()

	tool, err := svc.Submit(ctx, nil, domain.SubmitRequest{Name: "Chat Buddy", Category: "Chatbots", WebsiteURL: "https://buddy.example"})
	require.NoError(t, err)
	assert.Equal(t, "chat-buddy-2", tool.Slug)
	assert.False(t, tool.IsApproved)

	_, err = svc.Submit(ctx, nil, domain.SubmitRequest{Name: "X", Category: "Y", WebsiteURL: "ftp://nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidURL)
	_, err = svc.Submit(ctx, nil, domain.SubmitRequest{Name: "  ", Category: "Y"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestApproveEmitsChangeAndClearsPending(t *testing.T) {
	svc, clk, hub := newTestService(t)
	seedTools(t, svc, clk)
	ctx := context.Background()

	pending, err := svc.ListPending(ctx, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, pending.Tools, 1)

	sub, err := hub.Subscribe(realtime.TableTools)
	require.NoError(t, err)
	defer sub.Close()

	approved, err := svc.Approve(ctx, pending.Tools[0].ID)
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)

	change := <-sub.Events()
	var row domain.Tool
	require.NoError(t, json.Unmarshal(change.Record, &row))
	assert.Equal(t, approved.ID, row.ID)

	_, err = svc.Approve(ctx, approved.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyApproved)

	pending, err = svc.ListPending(ctx, pagination.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, pending.Tools)
}

func TestCategoriesAreCached(t *testing.T) {
	svc, clk, _ := newTestService(t)
	seedTools(t, svc, clk)
	ctx := context.Background()

	cats, err := svc.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, domain.Category{Name: "Image Editing", Count: 2}, cats[0])

	_, err = svc.Submit(ctx, nil, domain.SubmitRequest{Name: "New Bot", Category: "Writing"})
	require.NoError(t, err)
	again, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, cats, again)
}

func TestRecordView(t *testing.T) {
	svc, clk, _ := newTestService(t)
	seedTools(t, svc, clk)
	ctx := context.Background()

	tool, err := svc.Get(ctx, "image-resizer")
	require.NoError(t, err)
	require.NoError(t, svc.RecordView(ctx, tool.ID))
	after, err := svc.Get(ctx, "image-resizer")
	require.NoError(t, err)
	assert.Equal(t, tool.Views+1, after.Views)

	assert.ErrorIs(t, svc.RecordView(ctx, snowflake.ID(1)), domain.ErrNotFound)
}
