package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenSQLiteAppliesSchemaIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickets.db")

	first, err := OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Ping(ctx))
	first.Close()

	second, err := OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer second.Close()

	var count int
	require.NoError(t, second.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('tickets','ticket_updates','counters','daily_reports','inbound_messages')`,
	).Scan(&count))
	assert.Equal(t, 5, count)
}

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_init.sql", names[0])
}
