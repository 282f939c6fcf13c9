package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

func TestTicketCopiesAreIsolated(t *testing.T) {
	set := NewStore().Set()
	ctx := context.Background()
	now := time.Now().UTC()
	ticket := &domain.Ticket{Code: "TCK-0001", Subject: "s", RequesterID: "u", CreatedAt: now, UpdatedAt: now,
		Updates: []domain.TicketUpdate{{Message: "m", Origin: domain.OriginWeb, CreatedAt: now}}}
	require.NoError(t, set.Tickets.Create(ctx, ticket))

	got, err := set.Tickets.GetByCode(ctx, "TCK-0001")
	require.NoError(t, err)
	got.Subject = "mutated"
	got.Updates[0].Message = "mutated"

	again, err := set.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "s", again.Subject)
	assert.Equal(t, "m", again.Updates[0].Message)
}

func TestDuplicateCodeRejected(t *testing.T) {
	set := NewStore().Set()
	ctx := context.Background()
	mk := func() *domain.Ticket {
		return &domain.Ticket{Code: "TCK-0001", Updates: []domain.TicketUpdate{{Message: "m"}}}
	}
	require.NoError(t, set.Tickets.Create(ctx, mk()))
	assert.Error(t, set.Tickets.Create(ctx, mk()))
}

func TestAppendDuplicateExternalID(t *testing.T) {
	set := NewStore().Set()
	ctx := context.Background()
	ext := "x-1"
	ticket := &domain.Ticket{Code: "TCK-0001", Updates: []domain.TicketUpdate{{Message: "m", ExternalMessageID: &ext}}}
	require.NoError(t, set.Tickets.Create(ctx, ticket))

	err := set.Updates.Append(ctx, &domain.TicketUpdate{TicketID: ticket.ID, Message: "m", ExternalMessageID: &ext})
	assert.ErrorIs(t, err, repository.ErrDuplicateUpdate)
}

func TestOpeningExternalIDOpensOneTicket(t *testing.T) {
	set := NewStore().Set()
	ctx := context.Background()
	ext := "x-1"
	first := &domain.Ticket{Code: "TCK-0001", Updates: []domain.TicketUpdate{{Message: "m", ExternalMessageID: &ext}}}
	require.NoError(t, set.Tickets.Create(ctx, first))

	again := &domain.Ticket{Code: "TCK-0002", Updates: []domain.TicketUpdate{{Message: "m", ExternalMessageID: &ext}}}
	assert.ErrorIs(t, set.Tickets.Create(ctx, again), repository.ErrDuplicateUpdate)
	_, err := set.Tickets.GetByCode(ctx, "TCK-0002")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	other := &domain.Ticket{Code: "TCK-0003", Updates: []domain.TicketUpdate{{Message: "m"}}}
	require.NoError(t, set.Tickets.Create(ctx, other))
	require.NoError(t, set.Updates.Append(ctx, &domain.TicketUpdate{TicketID: other.ID, Message: "m", ExternalMessageID: &ext}))
}

func TestFailCounter(t *testing.T) {
	store := NewStore()
	store.FailCounter = errors.New("down")
	_, err := store.Set().Counters.Increment(context.Background(), "tickets", 1000)
	assert.Error(t, err)
}

func TestInboxOrderAndConsume(t *testing.T) {
	set := NewStore().Set()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		ok, err := set.Inbox.Enqueue(ctx, domain.InboundMessage{ExternalID: id})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	require.NoError(t, set.Inbox.MarkConsumed(ctx, "a", time.Now()))

	pending, err := set.Inbox.FetchUnconsumed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ExternalID)
}
