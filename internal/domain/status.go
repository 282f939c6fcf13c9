package domain

import "fmt"

// StatusValue is the structural meaning of a ticket status, independent of
// the identifiers the pick-list catalog assigns to it.
type StatusValue string

const (
	StatusOpen    StatusValue = "open"
	StatusPending StatusValue = "pending"
	StatusClosed  StatusValue = "closed"
)

// ParseStatusValue validates a raw status value.
func ParseStatusValue(raw string) (StatusValue, error) {
	switch v := StatusValue(raw); v {
	case StatusOpen, StatusPending, StatusClosed:
		return v, nil
	default:
		return "", fmt.Errorf("unknown status value %q", raw)
	}
}

// IsTerminal reports whether the status closes the ticket.
func (s StatusValue) IsTerminal() bool {
	return s == StatusClosed
}
