package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a record does not exist, or exists but is
	// soft-deleted and the operation is a mutation.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateUpdate is returned when an update with the same external
	// message id was already appended to the ticket.
	ErrDuplicateUpdate = errors.New("repository: duplicate external message id")
)

const uniqueViolation = "23505"

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
