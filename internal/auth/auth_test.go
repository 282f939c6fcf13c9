package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/ticket-ingest/internal/repository/memory"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expires, err := tm.GenerateToken("u-1", "agent@example.com")
	require.NoError(t, err)
	assert.False(t, expires.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "agent@example.com", claims.Email)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestMiddlewareLoadsPrincipal(t *testing.T) {
	users := memory.NewStore().Set().Users
	user, err := users.FindOrCreateByEmail(context.Background(), "agent@example.com", "agent")
	require.NoError(t, err)
	tm := NewTokenManager("secret", 5)
	token, _, err := tm.GenerateToken(user.ID, user.Email)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(fiber.StatusUnauthorized)
		},
	})
	app.Get("/me", NewAuthMiddleware(tm, users).Handle, func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		return c.SendString(p.Actor().ID)
	})

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
