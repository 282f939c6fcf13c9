package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

func TestNotificationsForClosureAndAgentReplies(t *testing.T) {
	h := newHarness(t)
	NewNotificationService(h.dispatcher, h.scheduler, h.repos, zap.NewNop(), h.cfg.Notification, "X-Ticket-ID").RegisterHandlers()

	ticket := h.openTicket(t, "ana@example.org", "Shared drive")
	agent, err := h.directory.FindOrCreateRequester(h.ctx, "luis@example.com")
	require.NoError(t, err)

	_, err = h.tickets.AppendUpdate(h.ctx, ticket.ID, UpdateInput{Message: "more details", AuthorID: ticket.RequesterID}, domain.UserActor(ticket.RequesterID))
	require.NoError(t, err)
	assert.Empty(t, h.scheduler.all(), "requester's own updates are not echoed")

	_, err = h.tickets.AppendUpdate(h.ctx, ticket.ID, UpdateInput{Message: "Permissions fixed.", AuthorID: agent.ID}, domain.UserActor(agent.ID))
	require.NoError(t, err)

	_, err = h.tickets.Transition(h.ctx, ticket.ID, domain.StatusClosed, domain.UserActor(agent.ID))
	require.NoError(t, err)

	sent := h.scheduler.all()
	require.Len(t, sent, 2)
	assert.Equal(t, "ana@example.org", sent[0].To)
	assert.Equal(t, "Permissions fixed.", sent[0].Body)
	assert.Equal(t, "[TCK-0001] Shared drive", sent[0].Subject)
	assert.Equal(t, "[TCK-0001] Ticket cerrado", sent[1].Subject)
	assert.Equal(t, "TCK-0001", sent[1].Headers["X-Ticket-ID"])
	assert.Equal(t, "soporte@example.com", sent[1].From)
}

func TestEmailUpdatesAreNotForwarded(t *testing.T) {
	h := newHarness(t)
	NewNotificationService(h.dispatcher, h.scheduler, h.repos, zap.NewNop(), h.cfg.Notification, "X-Ticket-ID").RegisterHandlers()

	ticket := h.openTicket(t, "ana@example.org", "Shared drive")
	_, err := h.tickets.AppendUpdate(h.ctx, ticket.ID, UpdateInput{
		Message:  "reply by mail",
		AuthorID: "someone-else",
		Origin:   domain.OriginEmail,
	}, domain.UserActor("someone-else"))
	require.NoError(t, err)
	assert.Empty(t, h.scheduler.all())
}
