package sqlite

import (
	"context"
	"database/sql"
)

type counterRepository struct {
	db *sql.DB
}

// Increment is a single autocommit statement. Busy and locked errors are
// raised before it writes, so a retried call never advances the counter
// twice and the allocator sees exactly one reservation per call.
func (r *counterRepository) Increment(ctx context.Context, name string, delta int64) (int64, error) {
	const query = `
		INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value
		RETURNING value`
	var value int64
	err := retryOnContention(ctx, func() error {
		return r.db.QueryRowContext(ctx, query, name, delta).Scan(&value)
	})
	return value, err
}
