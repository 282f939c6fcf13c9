package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

const updateColumns = `id, ticket_id, seq, message, author_id, attachments, origin, external_message_id, fingerprint, created_at`

type updateRepository struct {
	db *sql.DB
}

// Append runs in an immediate transaction, which holds the database write
// lock for its whole duration and so serializes appends.
func (r *updateRepository) Append(ctx context.Context, update *domain.TicketUpdate) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var deleted int
		if err := tx.QueryRowContext(ctx,
			`SELECT is_deleted FROM tickets WHERE id = ?`, update.TicketID,
		).Scan(&deleted); err != nil {
			return mapNoRows(err)
		}
		if deleted != 0 {
			return repository.ErrNotFound
		}

		var (
			lastSeq int
			lastAt  sql.NullString
		)
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0), MAX(created_at) FROM ticket_updates WHERE ticket_id = ?`, update.TicketID,
		).Scan(&lastSeq, &lastAt); err != nil {
			return err
		}
		update.Seq = lastSeq + 1
		last, err := parseNullTime(lastAt)
		if err != nil {
			return err
		}
		if last != nil && update.CreatedAt.Before(*last) {
			update.CreatedAt = *last
		}

		if err := insertUpdate(ctx, tx, update); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE tickets SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
			formatTime(update.CreatedAt), update.TicketID)
		return err
	})
}

func (r *updateRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketUpdate, error) {
	return listUpdates(ctx, r.db, ticketID)
}

func insertUpdate(ctx context.Context, q queryer, update *domain.TicketUpdate) error {
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	attachments, err := encodeAttachments(update.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO ticket_updates (`+updateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticket_id, external_message_id) WHERE external_message_id IS NOT NULL DO NOTHING`,
		update.ID, update.TicketID, update.Seq, update.Message, update.AuthorID, attachments,
		string(update.Origin), nullString(update.ExternalMessageID), update.Fingerprint,
		formatTime(update.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateUpdate
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrDuplicateUpdate
	}
	return nil
}

func (r *updateRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.TicketUpdate, error) {
	updates, err := queryUpdates(ctx, r.db,
		`SELECT `+updateColumns+` FROM ticket_updates WHERE external_message_id = ? ORDER BY created_at ASC LIMIT 1`, externalID)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, repository.ErrNotFound
	}
	return &updates[0], nil
}

func listUpdates(ctx context.Context, q queryer, ticketID string) ([]domain.TicketUpdate, error) {
	return queryUpdates(ctx, q,
		`SELECT `+updateColumns+` FROM ticket_updates WHERE ticket_id = ? ORDER BY seq ASC`, ticketID)
}

func queryUpdates(ctx context.Context, q queryer, query string, args ...any) ([]domain.TicketUpdate, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketUpdate
	for rows.Next() {
		var (
			u                   domain.TicketUpdate
			attachments, origin string
			externalID          sql.NullString
			createdAt           string
		)
		if err := rows.Scan(&u.ID, &u.TicketID, &u.Seq, &u.Message, &u.AuthorID, &attachments,
			&origin, &externalID, &u.Fingerprint, &createdAt); err != nil {
			return nil, err
		}
		u.Origin = domain.UpdateOrigin(origin)
		u.ExternalMessageID = stringPtr(externalID)
		if err := json.Unmarshal([]byte(attachments), &u.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
		if len(u.Attachments) == 0 {
			u.Attachments = nil
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
