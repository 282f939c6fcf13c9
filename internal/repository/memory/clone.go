package memory

import (
	"errors"
	"time"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

var (
	errFirstUpdate = errors.New("memory: first update required")
	errCodeTaken   = errors.New("memory: ticket code already used")
)

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	c.AssigneeID = cloneString(t.AssigneeID)
	c.ClosedAt = cloneTime(t.ClosedAt)
	c.ClosedBy = cloneString(t.ClosedBy)
	c.DeletedAt = cloneTime(t.DeletedAt)
	if t.Updates != nil {
		c.Updates = make([]domain.TicketUpdate, len(t.Updates))
		for i := range t.Updates {
			c.Updates[i] = cloneUpdate(t.Updates[i])
		}
	}
	return &c
}

func cloneUpdate(u domain.TicketUpdate) domain.TicketUpdate {
	c := u
	c.ExternalMessageID = cloneString(u.ExternalMessageID)
	if u.Attachments != nil {
		c.Attachments = append([]domain.Attachment(nil), u.Attachments...)
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
