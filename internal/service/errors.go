package service

import (
	"errors"
	"net/http"

	"github.com/deskflow/ticket-ingest/internal/repository"
	"github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

// mapRepoError translates repository sentinels into domain errors. The
// original error stays reachable through errors.Is.
func mapRepoError(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return &errorutil.DomainError{
			Code:       errorutil.CodeNotFound,
			Message:    resource + " not found",
			HTTPStatus: http.StatusNotFound,
			Details:    map[string]any{},
			Err:        err,
		}
	case errors.Is(err, repository.ErrDuplicateUpdate):
		return &errorutil.DomainError{
			Code:       errorutil.CodeConflict,
			Message:    "update already recorded",
			HTTPStatus: http.StatusConflict,
			Err:        err,
		}
	default:
		return err
	}
}
