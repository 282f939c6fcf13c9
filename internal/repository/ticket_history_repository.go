package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	oldValue, err := json.Marshal(nonNilMap(history.OldValue))
	if err != nil {
		return err
	}
	newValue, err := json.Marshal(nonNilMap(history.NewValue))
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_history (id, ticket_id, actor_type, changed_by_id, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = r.pool.Exec(ctx, query,
		history.ID,
		history.TicketID,
		history.ActorType,
		history.ChangedByID,
		history.ChangeType,
		oldValue,
		newValue,
		history.CreatedAt,
	)
	return err
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, actor_type, changed_by_id, change_type, old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var (
			history          domain.TicketHistory
			oldValue, newVal []byte
		)
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.ActorType,
			&history.ChangedByID,
			&history.ChangeType,
			&oldValue,
			&newVal,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(oldValue, &history.OldValue); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(newVal, &history.NewValue); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
