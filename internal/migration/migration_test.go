package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/toolhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAutoMigratesSQLite(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, Run(conn))
	require.NoError(t, Run(conn))

	for _, table := range []string{"users", "sessions", "profiles", "ai_tools", "chat_conversations", "chat_messages", "contact_messages"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
}

func TestInitMigrationNotifiesChanges(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	require.NoError(t, err)
	sql := string(body)
	assert.Contains(t, sql, "pg_notify('toolhub_changes'")
	assert.Contains(t, sql, "trg_chat_messages_notify")
	assert.Contains(t, sql, "search_vector")
}
