package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

type userRepository struct {
	db *sql.DB
}

const userColumns = `id, name, email, created_at, updated_at`

func (r *userRepository) FindOrCreateByEmail(ctx context.Context, email, name string) (*domain.User, error) {
	now := formatTime(time.Now())
	const query = `
		INSERT INTO users (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET email = excluded.email
		RETURNING ` + userColumns
	var user *domain.User
	err := retryOnContention(ctx, func() error {
		var err error
		user, err = scanUser(r.db.QueryRowContext(ctx, query,
			uuid.NewString(), name, domain.NormalizeEmail(email), now, now))
		return err
	})
	return user, err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	return user, mapNoRows(err)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, domain.NormalizeEmail(email)))
	return user, mapNoRows(err)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		user               domain.User
		created, updatedAt string
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &created, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if user.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}
