package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("INGEST_ALLOWED_DOMAINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, CounterBackendStore, cfg.Storage.CounterBackend)
	assert.Equal(t, "tickets", cfg.Sequence.Namespace)
	assert.Equal(t, "TCK", cfg.Sequence.Prefix)
	assert.Equal(t, 1000, cfg.Sequence.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Ingestion.DedupWindow())
	assert.Equal(t, "X-Ticket-ID", cfg.Ingestion.CorrelationHeader)
	assert.False(t, cfg.Ingestion.ReopenByMail)
	assert.Equal(t, ClosedBucketCreated, cfg.Report.ClosedBucket)
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("INGEST_ALLOWED_DOMAINS", "@gmail.com, @example.org ,")
	t.Setenv("STORAGE_DRIVER", "SQLite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"@gmail.com", "@example.org"}, cfg.Ingestion.AllowedDomains)
	assert.Equal(t, StorageDriverSQLite, cfg.Storage.Driver)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRedisCounterRequiresRedis(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("COUNTER_BACKEND", "redis")
	t.Setenv("REDIS_ENABLED", "false")

	_, err := Load()
	assert.Error(t, err)
}
