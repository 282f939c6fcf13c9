package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepository provides atomic increment-and-fetch on named counters.
type CounterRepository interface {
	// Increment adds delta to the named counter, creating it at zero first
	// if needed, and returns the new value.
	Increment(ctx context.Context, name string, delta int64) (int64, error)
}

type counterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository returns a Postgres-backed implementation.
func NewCounterRepository(pool *pgxpool.Pool) CounterRepository {
	return &counterRepository{pool: pool}
}

func (r *counterRepository) Increment(ctx context.Context, name string, delta int64) (int64, error) {
	const query = `
        INSERT INTO counters (name, value) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET value = counters.value + EXCLUDED.value
        RETURNING value`
	var value int64
	if err := r.pool.QueryRow(ctx, query, name, delta).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}
