package dedup

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

func ticketWith(updates ...domain.TicketUpdate) *domain.Ticket {
	return &domain.Ticket{Code: "TCK-0001", Updates: updates}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hola mundo & más", Normalize("<p>Hola   <b>MUNDO</b></p>\n\t&amp; más "))
}

func TestDuplicateByExternalID(t *testing.T) {
	g := NewGuard(5*time.Minute, 200)
	ext := "<abc@mail>"
	old := time.Now().Add(-48 * time.Hour)
	ticket := ticketWith(
		domain.TicketUpdate{Message: "first", ExternalMessageID: &ext, CreatedAt: old},
		domain.TicketUpdate{Message: "second", CreatedAt: old},
	)

	assert.True(t, g.IsDuplicate(ticket, Candidate{ExternalMessageID: ext, Message: "different", ReceivedAt: time.Now()}))
}

func TestDuplicateByContentWithinWindow(t *testing.T) {
	g := NewGuard(5*time.Minute, 200)
	now := time.Now()
	ticket := ticketWith(domain.TicketUpdate{Message: "<div>The printer is  BROKEN</div>", CreatedAt: now.Add(-2 * time.Minute)})

	assert.True(t, g.IsDuplicate(ticket, Candidate{Message: "the printer is broken", ReceivedAt: now}))
	assert.False(t, g.IsDuplicate(ticket, Candidate{Message: "the printer works now", ReceivedAt: now}))
	assert.False(t, g.IsDuplicate(ticket, Candidate{Message: "the printer is broken", ReceivedAt: now.Add(10 * time.Minute)}))
}

func TestOnlyMostRecentUpdateCompared(t *testing.T) {
	g := NewGuard(5*time.Minute, 200)
	now := time.Now()
	ticket := ticketWith(
		domain.TicketUpdate{Message: "same text", CreatedAt: now.Add(-time.Minute)},
		domain.TicketUpdate{Message: "other text", CreatedAt: now.Add(-30 * time.Second)},
	)

	assert.False(t, g.IsDuplicate(ticket, Candidate{Message: "same text", ReceivedAt: now}))
}

func TestPrefixComparison(t *testing.T) {
	g := NewGuard(time.Minute, 10)
	now := time.Now()
	ticket := ticketWith(domain.TicketUpdate{Message: "0123456789 tail A", CreatedAt: now})

	assert.True(t, g.IsDuplicate(ticket, Candidate{Message: "0123456789 tail B", ReceivedAt: now}))
}

func TestStoredFingerprintUsed(t *testing.T) {
	g := NewGuard(time.Minute, 200)
	now := time.Now()
	body := strings.Repeat("x", 50)
	ticket := ticketWith(domain.TicketUpdate{Message: "ignored", Fingerprint: g.Fingerprint(body), CreatedAt: now})

	assert.True(t, g.IsDuplicate(ticket, Candidate{Message: body, ReceivedAt: now}))
}

func TestNoUpdatesNotDuplicate(t *testing.T) {
	g := NewGuard(time.Minute, 200)
	assert.False(t, g.IsDuplicate(ticketWith(), Candidate{Message: "x", ReceivedAt: time.Now()}))
	assert.False(t, g.IsDuplicate(nil, Candidate{Message: "x"}))
}
