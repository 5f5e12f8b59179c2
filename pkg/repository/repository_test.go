package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/toolhub/pkg/db"
	"github.com/smallbiznis/toolhub/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID        int64 `gorm:"primaryKey"`
	Topic     string
	CreatedAt time.Time
}

func newTestStore(t *testing.T) Repository[note] {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&note{}))
	return ProvideStore[note](conn)
}

func TestStoreReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, n := range []*note{
		{ID: 1, Topic: "general"},
		{ID: 2, Topic: "general"},
		{ID: 3, Topic: "support"},
	} {
		require.NoError(t, store.Create(ctx, n))
	}

	found, err := store.Find(ctx, &note{Topic: "general"}, option.WithOrder("id desc"), option.WithLimit(1))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(2), found[0].ID)

	count, err := store.Count(ctx, &note{Topic: "general"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	all, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all)

	missing, err := store.FindOne(ctx, &note{Topic: "sales"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	one, err := store.FindOne(ctx, &note{ID: 3})
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "support", one.Topic)

	empty, err := store.Find(ctx, &note{Topic: "sales"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
