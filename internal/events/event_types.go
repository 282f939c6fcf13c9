package events

import (
	"time"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketUpdateAdded   EventType = "ticket_update_added"
	EventTicketFieldsChanged EventType = "ticket_fields_changed"
	EventTicketDeleted       EventType = "ticket_deleted"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.ActorType `json:"type"`
	ID   string           `json:"id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	TicketID   string      `json:"ticket_id"`
	TicketCode string      `json:"ticket_code"`
	Actor      Actor       `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Subject        string              `json:"subject"`
	RequesterID    string              `json:"requester_id"`
	RequesterEmail string              `json:"requester_email,omitempty"`
	DepartmentID   string              `json:"department_id"`
	Origin         domain.UpdateOrigin `json:"origin"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.StatusValue `json:"old_status"`
	NewStatus domain.StatusValue `json:"new_status"`
	Reopened  bool               `json:"reopened,omitempty"`
}

// TicketUpdateAddedPayload payload.
type TicketUpdateAddedPayload struct {
	UpdateID    string              `json:"update_id"`
	Seq         int                 `json:"seq"`
	Origin      domain.UpdateOrigin `json:"origin"`
	AuthorID    string              `json:"author_id"`
	BodyPreview string              `json:"body_preview"`
}

// TicketFieldsChangedPayload lists the names of the changed fields.
type TicketFieldsChangedPayload struct {
	Fields []string `json:"fields"`
}
