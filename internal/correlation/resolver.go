// Package correlation decides whether an inbound message continues an
// existing ticket or should open a new one.
package correlation

import (
	"context"
	"errors"
	"fmt"

	"github.com/deskflow/ticket-ingest/internal/catalog"
	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

// Reasons attached to a Result that asks for a new ticket.
const (
	ReasonNoReference = "no_reference"
	ReasonUnknownCode = "unknown_code"
	ReasonDeleted     = "ticket_deleted"
	ReasonClosed      = "ticket_closed"
)

// Result is the outcome of correlating one message.
type Result struct {
	Ticket   *domain.Ticket
	Code     string
	Strategy string
	New      bool
	Reason   string
}

// Resolver runs strategies in order; the first one that yields a code wins.
type Resolver struct {
	strategies   []Strategy
	tickets      repository.TicketRepository
	catalog      *catalog.Catalog
	reopenByMail bool
}

// NewResolver builds a resolver.
func NewResolver(strategies []Strategy, tickets repository.TicketRepository, cat *catalog.Catalog, reopenByMail bool) *Resolver {
	return &Resolver{
		strategies:   strategies,
		tickets:      tickets,
		catalog:      cat,
		reopenByMail: reopenByMail,
	}
}

// Resolve finds the ticket msg refers to. A reference to a missing, deleted
// or (without reopen-by-mail) closed ticket yields a New result rather than
// an error. Only storage failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, msg domain.InboundMessage) (Result, error) {
	for _, s := range r.strategies {
		code, ok := s.Match(msg)
		if !ok {
			continue
		}
		res := Result{Code: code, Strategy: s.Name()}

		ticket, err := r.tickets.GetByCode(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			res.New, res.Reason = true, ReasonUnknownCode
			return res, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("lookup ticket %s: %w", code, err)
		}
		if ticket.IsDeleted {
			res.New, res.Reason = true, ReasonDeleted
			return res, nil
		}
		if !r.reopenByMail && r.isClosed(ticket) {
			res.New, res.Reason = true, ReasonClosed
			return res, nil
		}
		res.Ticket = ticket
		return res, nil
	}
	return Result{New: true, Reason: ReasonNoReference}, nil
}

func (r *Resolver) isClosed(ticket *domain.Ticket) bool {
	value, err := r.catalog.StatusValue(ticket.StatusID)
	if err != nil {
		return ticket.ClosedAt != nil
	}
	return value.IsTerminal()
}
