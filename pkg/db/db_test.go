package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uniqueRow struct {
	ID   int64  `gorm:"primaryKey"`
	Slug string `gorm:"uniqueIndex"`
}

func TestNewTestIsolated(t *testing.T) {
	first, err := NewTest()
	require.NoError(t, err)
	second, err := NewTest()
	require.NoError(t, err)

	require.NoError(t, first.AutoMigrate(&uniqueRow{}))
	assert.True(t, first.Migrator().HasTable(&uniqueRow{}))
	assert.False(t, second.Migrator().HasTable(&uniqueRow{}))
}

func TestIsDuplicateKeyErr(t *testing.T) {
	conn, err := NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&uniqueRow{}))

	require.NoError(t, conn.Create(&uniqueRow{ID: 1, Slug: "chatgpt"}).Error)
	err = conn.Create(&uniqueRow{ID: 2, Slug: "chatgpt"}).Error

	assert.True(t, IsDuplicateKeyErr(err))
	assert.False(t, IsDuplicateKeyErr(nil))
}
