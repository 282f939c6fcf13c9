// Package inbox adapts the stored inbound queue to the pipeline's message
// source. Webhooks enqueue; the poller fetches and acknowledges.
package inbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/port"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

// ErrMissingSender is returned for messages without a From address.
var ErrMissingSender = errors.New("inbox: message has no sender")

// Source is a port.MessageSource over an InboundRepository.
type Source struct {
	repo repository.InboundRepository
	now  func() time.Time
}

var _ port.MessageSource = (*Source)(nil)

// NewSource builds a Source.
func NewSource(repo repository.InboundRepository) *Source {
	return &Source{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue stores msg for the next poll. An empty external id gets a
// generated one; the origin defaults to email. It reports whether the
// message was new.
func (s *Source) Enqueue(ctx context.Context, msg domain.InboundMessage) (domain.InboundMessage, bool, error) {
	if strings.TrimSpace(msg.From) == "" {
		return msg, false, ErrMissingSender
	}
	if msg.ExternalID == "" {
		msg.ExternalID = uuid.NewString()
	}
	if msg.Origin == "" {
		msg.Origin = domain.OriginEmail
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}
	inserted, err := s.repo.Enqueue(ctx, msg)
	return msg, inserted, err
}

func (s *Source) FetchUnread(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	return s.repo.FetchUnconsumed(ctx, limit)
}

func (s *Source) MarkConsumed(ctx context.Context, externalID string) error {
	return s.repo.MarkConsumed(ctx, externalID, s.now())
}
