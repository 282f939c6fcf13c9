// Package repository defines the persistence contracts of the ticket engine
// and their Postgres implementations. SQLite and in-memory implementations
// live in sub-packages.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Set bundles the repositories of one storage backend.
type Set struct {
	Counters CounterRepository
	Tickets  TicketRepository
	Updates  TicketUpdateRepository
	History  TicketHistoryRepository
	Users    UserRepository
	Reports  ReportRepository
	Inbox    InboundRepository
}

// NewPostgresSet builds every repository on top of one pgx pool.
func NewPostgresSet(pool *pgxpool.Pool) Set {
	return Set{
		Counters: NewCounterRepository(pool),
		Tickets:  NewTicketRepository(pool),
		Updates:  NewTicketUpdateRepository(pool),
		History:  NewTicketHistoryRepository(pool),
		Users:    NewUserRepository(pool),
		Reports:  NewReportRepository(pool),
		Inbox:    NewInboundRepository(pool),
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
