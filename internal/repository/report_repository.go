package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// ReportRepository stores derived daily reports keyed by UTC day.
type ReportRepository interface {
	// Upsert replaces the report for its day.
	Upsert(ctx context.Context, report *domain.DailyReport) error
	GetByDay(ctx context.Context, day time.Time) (*domain.DailyReport, error)
	// ListRange returns stored reports for days in [from, to], ordered by day.
	ListRange(ctx context.Context, from, to time.Time) ([]domain.DailyReport, error)
}

type reportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository builds repository.
func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &reportRepository{pool: pool}
}

func (r *reportRepository) Upsert(ctx context.Context, report *domain.DailyReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	const query = `
        INSERT INTO daily_reports (day, payload, updated_at) VALUES ($1, $2, NOW())
        ON CONFLICT (day) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`
	_, err = r.pool.Exec(ctx, query, domain.DayStart(report.Day), payload)
	return err
}

func (r *reportRepository) GetByDay(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	var payload []byte
	if err := r.pool.QueryRow(ctx,
		`SELECT payload FROM daily_reports WHERE day=$1`, domain.DayStart(day),
	).Scan(&payload); err != nil {
		return nil, mapNoRows(err)
	}
	return decodeReport(payload)
}

func (r *reportRepository) ListRange(ctx context.Context, from, to time.Time) ([]domain.DailyReport, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT payload FROM daily_reports WHERE day >= $1 AND day <= $2 ORDER BY day ASC`,
		domain.DayStart(from), domain.DayStart(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DailyReport
	for rows.Next() {
		var payload []byte
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

func decodeReport(payload []byte) (*domain.DailyReport, error) {
	var report domain.DailyReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
