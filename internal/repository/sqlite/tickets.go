package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

const ticketColumns = `id, code, subject, description, status_id, priority_id, impact_id, department_id,
	type_id, source_id, requester_id, assignee_id, closed_at, closed_by, is_deleted, deleted_at,
	created_at, updated_at`

type ticketRepository struct {
	db *sql.DB
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if len(ticket.Updates) == 0 {
		return fmt.Errorf("ticket %s: first update required", ticket.Code)
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO tickets (id, code, subject, description, status_id, priority_id, impact_id, department_id,
			type_id, source_id, requester_id, assignee_id, closed_at, closed_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query,
			ticket.ID, ticket.Code, ticket.Subject, ticket.Description,
			ticket.StatusID, ticket.PriorityID, ticket.ImpactID, ticket.DepartmentID,
			ticket.TypeID, ticket.SourceID, ticket.RequesterID, nullString(ticket.AssigneeID),
			formatTimePtr(ticket.ClosedAt), nullString(ticket.ClosedBy),
			formatTime(ticket.CreatedAt), formatTime(ticket.UpdatedAt),
		); err != nil {
			return err
		}
		first := &ticket.Updates[0]
		first.TicketID = ticket.ID
		first.Seq = 1
		return insertUpdate(ctx, tx, first)
	})
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
		UPDATE tickets SET subject = ?, description = ?, status_id = ?, priority_id = ?, impact_id = ?,
			department_id = ?, type_id = ?, source_id = ?, assignee_id = ?, closed_at = ?, closed_by = ?,
			updated_at = ?
		WHERE id = ? AND is_deleted = 0`
	return retryOnContention(ctx, func() error {
		res, err := r.db.ExecContext(ctx, query,
			ticket.Subject, ticket.Description, ticket.StatusID, ticket.PriorityID, ticket.ImpactID,
			ticket.DepartmentID, ticket.TypeID, ticket.SourceID, nullString(ticket.AssigneeID),
			formatTimePtr(ticket.ClosedAt), nullString(ticket.ClosedBy), formatTime(ticket.UpdatedAt),
			ticket.ID,
		)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

func (r *ticketRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return retryOnContention(ctx, func() error {
		res, err := r.db.ExecContext(ctx,
			`UPDATE tickets SET is_deleted = 1, deleted_at = ?, updated_at = ? WHERE id = ? AND is_deleted = 0`,
			formatTime(at), formatTime(at), id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE code = ?`, code)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, repository.ErrNotFound
	}
	ticket := &tickets[0]
	if ticket.Updates, err = listUpdates(ctx, r.db, ticket.ID); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if !filter.IncludeDeleted {
		clauses = append(clauses, "is_deleted = 0")
	}
	if filter.RequesterID != nil {
		clauses = append(clauses, "requester_id = ?")
		args = append(args, *filter.RequesterID)
	}
	if filter.AssigneeID != nil {
		clauses = append(clauses, "assignee_id = ?")
		args = append(args, *filter.AssigneeID)
	}
	if filter.DepartmentID != nil {
		clauses = append(clauses, "department_id = ?")
		args = append(args, *filter.DepartmentID)
	}
	if len(filter.StatusIDs) > 0 {
		placeholders := make([]string, len(filter.StatusIDs))
		for i, status := range filter.StatusIDs {
			placeholders[i] = "?"
			args = append(args, status)
		}
		clauses = append(clauses, fmt.Sprintf("status_id IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, formatTime(*filter.CreatedTo))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		clauses = append(clauses, "(LOWER(subject) LIKE ? OR LOWER(code) LIKE ?)")
		args = append(args, search, search)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanTickets(rows)
}

func (r *ticketRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error) {
	return r.listWithUpdates(ctx, `SELECT `+ticketColumns+` FROM tickets
		WHERE is_deleted = 0 AND created_at >= ? AND created_at < ? ORDER BY created_at ASC`,
		formatTime(from), formatTime(to))
}

func (r *ticketRepository) ListClosedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error) {
	return r.listWithUpdates(ctx, `SELECT `+ticketColumns+` FROM tickets
		WHERE is_deleted = 0 AND closed_at IS NOT NULL AND closed_at >= ? AND closed_at < ? ORDER BY closed_at ASC`,
		formatTime(from), formatTime(to))
}

func (r *ticketRepository) listWithUpdates(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		if tickets[i].Updates, err = listUpdates(ctx, r.db, tickets[i].ID); err != nil {
			return nil, err
		}
	}
	return tickets, nil
}

func (r *ticketRepository) CreationDays(ctx context.Context) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT substr(created_at, 1, 10) AS day FROM tickets WHERE is_deleted = 0 ORDER BY day ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		day, err := time.Parse(dayLayout, raw)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// scanTickets drains and closes rows.
func scanTickets(rows *sql.Rows) ([]domain.Ticket, error) {
	defer rows.Close()
	var result []domain.Ticket
	for rows.Next() {
		var (
			t                    domain.Ticket
			assignee, closedBy   sql.NullString
			closedAt, deletedAt  sql.NullString
			deleted              int
			createdAt, updatedAt string
		)
		if err := rows.Scan(
			&t.ID, &t.Code, &t.Subject, &t.Description,
			&t.StatusID, &t.PriorityID, &t.ImpactID, &t.DepartmentID,
			&t.TypeID, &t.SourceID, &t.RequesterID, &assignee,
			&closedAt, &closedBy, &deleted, &deletedAt,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}
		t.AssigneeID = stringPtr(assignee)
		t.ClosedBy = stringPtr(closedBy)
		t.IsDeleted = deleted != 0
		var err error
		if t.ClosedAt, err = parseNullTime(closedAt); err != nil {
			return nil, err
		}
		if t.DeletedAt, err = parseNullTime(deletedAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func encodeAttachments(attachments []domain.Attachment) (string, error) {
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	raw, err := json.Marshal(attachments)
	return string(raw), err
}
