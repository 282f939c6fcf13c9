package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// TicketUpdateRepository manages the append-only update thread of tickets.
type TicketUpdateRepository interface {
	// Append locks the ticket, assigns the next Seq, clamps CreatedAt so
	// timestamps never go backwards and bumps the ticket's updated_at.
	// It returns ErrNotFound for missing or soft-deleted tickets and
	// ErrDuplicateUpdate when the external message id was already recorded.
	Append(ctx context.Context, update *domain.TicketUpdate) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketUpdate, error)
	// FindByExternalID returns the earliest update carrying externalID on
	// any ticket, or ErrNotFound.
	FindByExternalID(ctx context.Context, externalID string) (*domain.TicketUpdate, error)
}

const updateColumns = `id, ticket_id, seq, message, author_id, attachments, origin, external_message_id, fingerprint, created_at`

type ticketUpdateRepository struct {
	pool *pgxpool.Pool
}

// NewTicketUpdateRepository builds repository.
func NewTicketUpdateRepository(pool *pgxpool.Pool) TicketUpdateRepository {
	return &ticketUpdateRepository{pool: pool}
}

func (r *ticketUpdateRepository) Append(ctx context.Context, update *domain.TicketUpdate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var deleted bool
	if err := tx.QueryRow(ctx,
		`SELECT is_deleted FROM tickets WHERE id=$1 FOR UPDATE`, update.TicketID,
	).Scan(&deleted); err != nil {
		return mapNoRows(err)
	}
	if deleted {
		return ErrNotFound
	}

	var (
		lastSeq int
		lastAt  *time.Time
	)
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0), MAX(created_at) FROM ticket_updates WHERE ticket_id=$1`, update.TicketID,
	).Scan(&lastSeq, &lastAt); err != nil {
		return err
	}
	update.Seq = lastSeq + 1
	if lastAt != nil && update.CreatedAt.Before(*lastAt) {
		update.CreatedAt = *lastAt
	}

	if err := insertUpdate(ctx, tx, update); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE tickets SET updated_at=GREATEST(updated_at, $1) WHERE id=$2`, update.CreatedAt, update.TicketID,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketUpdateRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketUpdate, error) {
	return listUpdates(ctx, r.pool, ticketID)
}

func (r *ticketUpdateRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.TicketUpdate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+updateColumns+` FROM ticket_updates WHERE external_message_id=$1 ORDER BY created_at ASC LIMIT 1`, externalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	updates, err := scanUpdates(rows)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, ErrNotFound
	}
	return &updates[0], nil
}

func insertUpdate(ctx context.Context, q querier, update *domain.TicketUpdate) error {
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	attachments, err := marshalAttachments(update.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	const query = `
        INSERT INTO ticket_updates (` + updateColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (ticket_id, external_message_id) WHERE external_message_id IS NOT NULL DO NOTHING`
	cmd, err := q.Exec(ctx, query,
		update.ID,
		update.TicketID,
		update.Seq,
		update.Message,
		update.AuthorID,
		attachments,
		update.Origin,
		update.ExternalMessageID,
		update.Fingerprint,
		update.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUpdate
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateUpdate
	}
	return nil
}

func listUpdates(ctx context.Context, q querier, ticketID string) ([]domain.TicketUpdate, error) {
	rows, err := q.Query(ctx,
		`SELECT `+updateColumns+` FROM ticket_updates WHERE ticket_id=$1 ORDER BY seq ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUpdates(rows)
}

// attachUpdates loads the updates of several tickets in one round trip.
func attachUpdates(ctx context.Context, q querier, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	ids := make([]string, len(tickets))
	index := make(map[string]int, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
		index[tickets[i].ID] = i
	}
	rows, err := q.Query(ctx,
		`SELECT `+updateColumns+` FROM ticket_updates WHERE ticket_id = ANY($1::uuid[]) ORDER BY ticket_id, seq ASC`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	updates, err := scanUpdates(rows)
	if err != nil {
		return err
	}
	for _, u := range updates {
		i := index[u.TicketID]
		tickets[i].Updates = append(tickets[i].Updates, u)
	}
	return nil
}

func scanUpdates(rows pgx.Rows) ([]domain.TicketUpdate, error) {
	var result []domain.TicketUpdate
	for rows.Next() {
		var (
			update      domain.TicketUpdate
			attachments []byte
		)
		if err := rows.Scan(
			&update.ID,
			&update.TicketID,
			&update.Seq,
			&update.Message,
			&update.AuthorID,
			&attachments,
			&update.Origin,
			&update.ExternalMessageID,
			&update.Fingerprint,
			&update.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &update.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments: %w", err)
			}
		}
		result = append(result, update)
	}
	return result, rows.Err()
}
