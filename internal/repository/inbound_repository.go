package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// InboundRepository is the durable inbox filled by the webhook and drained
// by the ingestion pipeline.
type InboundRepository interface {
	// Enqueue stores the message unless its external id is already known.
	// It reports whether the message was newly stored.
	Enqueue(ctx context.Context, msg domain.InboundMessage) (bool, error)
	FetchUnconsumed(ctx context.Context, limit int) ([]domain.InboundMessage, error)
	MarkConsumed(ctx context.Context, externalID string, at time.Time) error
}

type inboundRepository struct {
	pool *pgxpool.Pool
}

// NewInboundRepository builds repository.
func NewInboundRepository(pool *pgxpool.Pool) InboundRepository {
	return &inboundRepository{pool: pool}
}

func (r *inboundRepository) Enqueue(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("encode inbound message: %w", err)
	}
	const query = `
        INSERT INTO inbound_messages (external_id, payload, received_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (external_id) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query, msg.ExternalID, payload, msg.ReceivedAt)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *inboundRepository) FetchUnconsumed(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
        SELECT payload FROM inbound_messages
        WHERE consumed_at IS NULL
        ORDER BY received_at ASC, external_id ASC
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.InboundMessage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var msg domain.InboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("decode inbound message: %w", err)
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *inboundRepository) MarkConsumed(ctx context.Context, externalID string, at time.Time) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE inbound_messages SET consumed_at=$1 WHERE external_id=$2 AND consumed_at IS NULL`, at, externalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM inbound_messages WHERE external_id=$1)`, externalID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}
