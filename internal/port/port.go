// Package port declares the collaborators the ticket engine reaches through
// narrow interfaces: where messages come from, who the parties are and how
// requesters are told about their tickets.
package port

import (
	"context"
	"time"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// MessageSource yields unread inbound messages. A message stays unread
// until MarkConsumed succeeds, so a crash between processing and
// acknowledgement leads to redelivery.
type MessageSource interface {
	FetchUnread(ctx context.Context, limit int) ([]domain.InboundMessage, error)
	MarkConsumed(ctx context.Context, externalID string) error
}

// PartyDirectory resolves sender addresses to directory users.
type PartyDirectory interface {
	FindOrCreateRequester(ctx context.Context, email string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Notification is an outbound message addressed to a requester.
type Notification struct {
	TicketID   string            `json:"ticket_id"`
	TicketCode string            `json:"ticket_code"`
	To         string            `json:"to"`
	From       string            `json:"from"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Notifier delivers notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
