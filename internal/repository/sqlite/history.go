package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

type historyRepository struct {
	db *sql.DB
}

func (r *historyRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	oldValue, err := encodeMap(history.OldValue)
	if err != nil {
		return err
	}
	newValue, err := encodeMap(history.NewValue)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO ticket_history (id, ticket_id, actor_type, changed_by_id, change_type, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	return retryOnContention(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query,
			history.ID, history.TicketID, string(history.ActorType), nullString(history.ChangedByID),
			string(history.ChangeType), oldValue, newValue, formatTime(history.CreatedAt))
		return err
	})
}

func (r *historyRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_id, actor_type, changed_by_id, change_type, old_value, new_value, created_at
		FROM ticket_history WHERE ticket_id = ? ORDER BY created_at ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var (
			h                  domain.TicketHistory
			actorType, change  string
			changedBy          sql.NullString
			oldValue, newValue string
			created            string
		)
		if err := rows.Scan(&h.ID, &h.TicketID, &actorType, &changedBy, &change, &oldValue, &newValue, &created); err != nil {
			return nil, err
		}
		h.ActorType = domain.ActorType(actorType)
		h.ChangeType = domain.TicketChangeType(change)
		h.ChangedByID = stringPtr(changedBy)
		if err := json.Unmarshal([]byte(oldValue), &h.OldValue); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(newValue), &h.NewValue); err != nil {
			return nil, err
		}
		if h.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func encodeMap(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	raw, err := json.Marshal(m)
	return string(raw), err
}
