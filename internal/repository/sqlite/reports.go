package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

type reportRepository struct {
	db *sql.DB
}

func (r *reportRepository) Upsert(ctx context.Context, report *domain.DailyReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	const query = `
		INSERT INTO daily_reports (day, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	return retryOnContention(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query,
			domain.DayStart(report.Day).Format(dayLayout), string(payload), formatTime(time.Now()))
		return err
	})
}

func (r *reportRepository) GetByDay(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	var payload string
	if err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM daily_reports WHERE day = ?`, domain.DayStart(day).Format(dayLayout),
	).Scan(&payload); err != nil {
		return nil, mapNoRows(err)
	}
	return decodeReport(payload)
}

func (r *reportRepository) ListRange(ctx context.Context, from, to time.Time) ([]domain.DailyReport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payload FROM daily_reports WHERE day >= ? AND day <= ? ORDER BY day ASC`,
		domain.DayStart(from).Format(dayLayout), domain.DayStart(to).Format(dayLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DailyReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		report, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, *report)
	}
	return result, rows.Err()
}

func decodeReport(payload string) (*domain.DailyReport, error) {
	var report domain.DailyReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
