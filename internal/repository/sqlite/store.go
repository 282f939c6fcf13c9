// Package sqlite implements the repository contracts on an embedded SQLite
// database (modernc.org/sqlite) for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/deskflow/ticket-ingest/internal/repository"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const dayLayout = "2006-01-02"

// NewSet builds every repository on top of one database handle.
func NewSet(db *sql.DB) repository.Set {
	return repository.Set{
		Counters: &counterRepository{db: db},
		Tickets:  &ticketRepository{db: db},
		Updates:  &updateRepository{db: db},
		History:  &historyRepository{db: db},
		Users:    &userRepository{db: db},
		Reports:  &reportRepository{db: db},
		Inbox:    &inboundRepository{db: db},
	}
}

var (
	_ repository.CounterRepository       = (*counterRepository)(nil)
	_ repository.TicketRepository        = (*ticketRepository)(nil)
	_ repository.TicketUpdateRepository  = (*updateRepository)(nil)
	_ repository.TicketHistoryRepository = (*historyRepository)(nil)
	_ repository.UserRepository          = (*userRepository)(nil)
	_ repository.ReportRepository        = (*reportRepository)(nil)
	_ repository.InboundRepository       = (*inboundRepository)(nil)
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// retryConfig controls retry behavior for transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// isTransientErr reports lock contention errors that succeed on retry even
// with busy_timeout set.
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOnContention runs fn with exponential backoff and jitter while it
// fails with a transient error and ctx is live.
func retryOnContention(ctx context.Context, fn func() error) error {
	cfg := defaultRetryConfig
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransientErr(lastErr) {
			return lastErr
		}
		if attempt == cfg.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(cfg, attempt)):
		}
	}
	return lastErr
}

func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(cfg.baseDelay)))
}

// withTx runs fn in a write transaction, retrying the whole transaction on
// lock contention.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	return retryOnContention(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
