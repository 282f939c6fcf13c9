package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/ticket-ingest/internal/api/dto"
	"github.com/deskflow/ticket-ingest/internal/service"
	apperrors "github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

// AuthHandler issues bearer tokens for directory users.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	token, exp, err := h.auth.IssueToken(c.UserContext(), req.Email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewUnauthorized("unknown user")
		}
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{Token: token, ExpiresAt: exp}})
}
