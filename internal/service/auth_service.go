package service

import (
	"context"
	"time"

	"github.com/deskflow/ticket-ingest/internal/auth"
	"github.com/deskflow/ticket-ingest/internal/port"
)

// AuthService issues bearer tokens identifying directory users.
type AuthService struct {
	directory port.PartyDirectory
	tokenMgr  *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(directory port.PartyDirectory, tokens *auth.TokenManager) *AuthService {
	return &AuthService{directory: directory, tokenMgr: tokens}
}

// IssueToken signs a token for the user owning email.
func (s *AuthService) IssueToken(ctx context.Context, email string) (string, time.Time, error) {
	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokenMgr.GenerateToken(user.ID, user.Email)
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
