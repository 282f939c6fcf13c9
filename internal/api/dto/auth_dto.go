package dto

import "time"

// TokenRequest asks for a bearer token for a directory user.
type TokenRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
