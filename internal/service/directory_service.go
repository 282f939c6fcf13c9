package service

import (
	"context"
	"strings"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/port"
	"github.com/deskflow/ticket-ingest/internal/repository"
	"github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

// DirectoryService resolves parties by address.
type DirectoryService struct {
	users repository.UserRepository
}

var _ port.PartyDirectory = (*DirectoryService)(nil)

// NewDirectoryService constructs the service.
func NewDirectoryService(users repository.UserRepository) *DirectoryService {
	return &DirectoryService{users: users}
}

// FindOrCreateRequester returns the user owning email, registering it with
// the local part of the address as name on first contact.
func (d *DirectoryService) FindOrCreateRequester(ctx context.Context, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, errorutil.NewValidationError("invalid requester", map[string]any{"email": "invalid"})
	}
	return d.users.FindOrCreateByEmail(ctx, email, domain.NameFromEmail(email))
}

func (d *DirectoryService) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := d.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, mapRepoError(err, "user")
	}
	return user, nil
}
