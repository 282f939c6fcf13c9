package domain

import (
	"strings"
	"time"
)

// User is a party known to the directory: requesters and agents alike.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NameFromEmail derives a display name from the local part of an address.
func NameFromEmail(email string) string {
	local, _, _ := strings.Cut(NormalizeEmail(email), "@")
	return local
}
