package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

type inboundRepository struct {
	db *sql.DB
}

func (r *inboundRepository) Enqueue(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("encode inbound message: %w", err)
	}
	var inserted bool
	err = retryOnContention(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO inbound_messages (external_id, payload, received_at) VALUES (?, ?, ?)
			ON CONFLICT(external_id) DO NOTHING`,
			msg.ExternalID, string(payload), formatTime(msg.ReceivedAt))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n > 0
		return err
	})
	return inserted, err
}

func (r *inboundRepository) FetchUnconsumed(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM inbound_messages
		WHERE consumed_at IS NULL
		ORDER BY received_at ASC, external_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.InboundMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var msg domain.InboundMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("decode inbound message: %w", err)
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *inboundRepository) MarkConsumed(ctx context.Context, externalID string, at time.Time) error {
	return retryOnContention(ctx, func() error {
		res, err := r.db.ExecContext(ctx,
			`UPDATE inbound_messages SET consumed_at = COALESCE(consumed_at, ?) WHERE external_id = ?`,
			formatTime(at), externalID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}
