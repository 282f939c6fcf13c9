package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// Create stores the ticket together with its first update atomically.
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes scalar fields and closure bookkeeping. Soft-deleted
	// tickets yield ErrNotFound.
	Update(ctx context.Context, ticket *domain.Ticket) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// GetByID and GetByCode return soft-deleted tickets too, with updates.
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByCode(ctx context.Context, code string) (*domain.Ticket, error)
	List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error)
	// ListCreatedBetween returns live tickets created in [from, to), with updates.
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error)
	// ListClosedBetween returns live tickets closed in [from, to), with updates.
	ListClosedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error)
	// CreationDays lists the distinct UTC days on which live tickets were created.
	CreationDays(ctx context.Context) ([]time.Time, error)
}

const ticketColumns = `id, code, subject, description, status_id, priority_id, impact_id, department_id,
               type_id, source_id, requester_id, assignee_id, closed_at, closed_by, is_deleted, deleted_at,
               created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if len(ticket.Updates) == 0 {
		return fmt.Errorf("ticket %s: first update required", ticket.Code)
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO tickets (id, code, subject, description, status_id, priority_id, impact_id, department_id,
            type_id, source_id, requester_id, assignee_id, closed_at, closed_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	if _, err := tx.Exec(ctx, query,
		ticket.ID,
		ticket.Code,
		ticket.Subject,
		ticket.Description,
		ticket.StatusID,
		ticket.PriorityID,
		ticket.ImpactID,
		ticket.DepartmentID,
		ticket.TypeID,
		ticket.SourceID,
		ticket.RequesterID,
		ticket.AssigneeID,
		ticket.ClosedAt,
		ticket.ClosedBy,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	); err != nil {
		return err
	}

	first := &ticket.Updates[0]
	first.TicketID = ticket.ID
	first.Seq = 1
	if err := insertUpdate(ctx, tx, first); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET subject=$1, description=$2, status_id=$3, priority_id=$4, impact_id=$5,
            department_id=$6, type_id=$7, source_id=$8, assignee_id=$9, closed_at=$10, closed_by=$11,
            updated_at=$12
        WHERE id=$13 AND NOT is_deleted`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Subject,
		ticket.Description,
		ticket.StatusID,
		ticket.PriorityID,
		ticket.ImpactID,
		ticket.DepartmentID,
		ticket.TypeID,
		ticket.SourceID,
		ticket.AssigneeID,
		ticket.ClosedAt,
		ticket.ClosedBy,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE tickets SET is_deleted=TRUE, deleted_at=$1, updated_at=$1
        WHERE id=$2 AND NOT is_deleted`
	cmd, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE code=$1`, code)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapNoRows(err)
	}
	updates, err := listUpdates(ctx, r.pool, ticket.ID)
	if err != nil {
		return nil, err
	}
	ticket.Updates = updates
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if !filter.IncludeDeleted {
		clauses = append(clauses, "NOT is_deleted")
	}
	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if len(filter.StatusIDs) > 0 {
		placeholders := make([]string, len(filter.StatusIDs))
		for i, status := range filter.StatusIDs {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status_id IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(code) LIKE %s)", placeholder, placeholder))
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

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE NOT is_deleted AND created_at >= $1 AND created_at < $2 ORDER BY created_at ASC`
	return r.listWithUpdates(ctx, query, from, to)
}

func (r *ticketRepository) ListClosedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE NOT is_deleted AND closed_at >= $1 AND closed_at < $2 ORDER BY closed_at ASC`
	return r.listWithUpdates(ctx, query, from, to)
}

func (r *ticketRepository) listWithUpdates(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	tickets, err := scanTickets(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if err := attachUpdates(ctx, r.pool, tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *ticketRepository) CreationDays(ctx context.Context) ([]time.Time, error) {
	const query = `
        SELECT DISTINCT (created_at AT TIME ZONE 'UTC')::date AS day
        FROM tickets WHERE NOT is_deleted ORDER BY day ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, domain.DayStart(day))
	}
	return days, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Code,
		&ticket.Subject,
		&ticket.Description,
		&ticket.StatusID,
		&ticket.PriorityID,
		&ticket.ImpactID,
		&ticket.DepartmentID,
		&ticket.TypeID,
		&ticket.SourceID,
		&ticket.RequesterID,
		&ticket.AssigneeID,
		&ticket.ClosedAt,
		&ticket.ClosedBy,
		&ticket.IsDeleted,
		&ticket.DeletedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func marshalAttachments(attachments []domain.Attachment) ([]byte, error) {
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	return json.Marshal(attachments)
}
