package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/events"
	"github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

func TestCreateStoresFirstUpdate(t *testing.T) {
	h := newHarness(t)
	ticket := h.openTicket(t, "ana@example.org", "Printer jammed")

	assert.Equal(t, "TCK-0001", ticket.Code)
	assert.Equal(t, "status-open", ticket.StatusID)
	assert.Nil(t, ticket.ClosedAt)

	updates, err := h.tickets.ListUpdates(h.ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, 1, updates[0].Seq)
	assert.Equal(t, ticket.RequesterID, updates[0].AuthorID)
	assert.NotEmpty(t, updates[0].Fingerprint)

	history, err := h.tickets.History(h.ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypeCreated, history[0].ChangeType)
}

func TestCreateValidatesInput(t *testing.T) {
	h := newHarness(t)
	classification, err := h.catalog.DefaultClassification(domain.OriginWeb)
	require.NoError(t, err)
	classification.PriorityID = "priority-urgent"

	_, err = h.tickets.Create(h.ctx, CreateTicketInput{
		Code:           "TCK-0009",
		Subject:        "  ",
		RequesterID:    "someone",
		Classification: classification,
		First:          UpdateInput{Message: "body"},
	})
	require.Error(t, err)
	assert.True(t, errorutil.IsValidation(err))

	de := errorutil.ToDomainError(err)
	assert.Equal(t, "required", de.Details["subject"])
	assert.Equal(t, "unknown", de.Details["priority_id"])
}

func TestCreateRejectsClosedStatus(t *testing.T) {
	h := newHarness(t)
	classification, err := h.catalog.DefaultClassification(domain.OriginWeb)
	require.NoError(t, err)
	classification.StatusID = "status-closed"

	_, err = h.tickets.Create(h.ctx, CreateTicketInput{
		Code:           "TCK-0009",
		Subject:        "Closed from birth",
		RequesterID:    "someone",
		Classification: classification,
		First:          UpdateInput{Message: "body"},
	})
	assert.True(t, errorutil.IsValidation(err))
}

func TestTransitionClosureBookkeeping(t *testing.T) {
	h := newHarness(t)
	ticket := h.openTicket(t, "ana@example.org", "VPN down")
	agent := domain.UserActor("agent-1")

	h.clock.Advance(2 * time.Hour)
	closed, err := h.tickets.Transition(h.ctx, ticket.ID, domain.StatusClosed, agent)
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	require.NotNil(t, closed.ClosedBy)
	firstClosure := *closed.ClosedAt
	assert.Equal(t, "agent-1", *closed.ClosedBy)
	assert.Equal(t, "status-closed", closed.StatusID)

	h.clock.Advance(time.Hour)
	again, err := h.tickets.Transition(h.ctx, ticket.ID, domain.StatusClosed, domain.UserActor("agent-2"))
	require.NoError(t, err)
	assert.Equal(t, firstClosure, *again.ClosedAt)
	assert.Equal(t, "agent-1", *again.ClosedBy)

	reopened, err := h.tickets.Transition(h.ctx, ticket.ID, domain.StatusOpen, agent)
	require.NoError(t, err)
	assert.Nil(t, reopened.ClosedAt)
	assert.Nil(t, reopened.ClosedBy)

	stored, err := h.tickets.Get(h.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ClosedAt)
	assert.Equal(t, "status-open", stored.StatusID)

	pending, err := h.tickets.Transition(h.ctx, ticket.ID, domain.StatusPending, agent)
	require.NoError(t, err)
	assert.Nil(t, pending.ClosedAt)

	history, err := h.tickets.History(h.ctx, ticket.ID)
	require.NoError(t, err)
	statusChanges := 0
	for _, entry := range history {
		if entry.ChangeType == domain.ChangeTypeStatus {
			statusChanges++
		}
	}
	assert.Equal(t, 3, statusChanges)
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	ticket := h.openTicket(t, "ana@example.org", "VPN down")

	_, err := h.tickets.Transition(h.ctx, ticket.ID, domain.StatusValue("archived"), domain.UserActor("agent-1"))
	assert.True(t, errorutil.IsValidation(err))
}

func TestUpdateFieldsLeavesStatusAlone(t *testing.T) {
	h := newHarness(t)
	ticket := h.openTicket(t, "ana@example.org", "Laptop slow")

	priority := "priority-alta"
	subject := "Laptop very slow"
	assignee := "agent-7"
	updated, err := h.tickets.UpdateFields(h.ctx, ticket.ID, FieldChanges{
		Subject:    &subject,
		PriorityID: &priority,
		AssigneeID: &assignee,
	}, domain.UserActor("agent-1"))
	require.NoError(t, err)

	assert.Equal(t, subject, updated.Subject)
	assert.Equal(t, priority, updated.PriorityID)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, assignee, *updated.AssigneeID)
	assert.Equal(t, ticket.StatusID, updated.StatusID)

	cleared, err := h.tickets.UpdateFields(h.ctx, ticket.ID, FieldChanges{ClearAssignee: true}, domain.UserActor("agent-1"))
	require.NoError(t, err)
	assert.Nil(t, cleared.AssigneeID)

	history, err := h.tickets.History(h.ctx, ticket.ID)
	require.NoError(t, err)
	// created + subject + priority + assignee + unassign
	assert.Len(t, history, 5)
}

func TestUpdateFieldsRejectsUnknownIDs(t *testing.T) {
	h := newHarness(t)
	ticket := h.openTicket(t, "ana@example.org", "Laptop slow")

	department := "department-legal"
	_, err := h.tickets.UpdateFields(h.ctx, ticket.ID, FieldChanges{DepartmentID: &department}, domain.UserActor("agent-1"))
	assert.True(t, errorutil.IsValidation(err))
}

func TestAppendUpdateAssignsSeq(t *testing.T) {
	h := newHarness(t)
	ticket := h.openTicket(t, "ana@example.org", "Mail quota")

	h.clock.Advance(time.Minute)
	update, err := h.tickets.AppendUpdate(h.ctx, ticket.ID, UpdateInput{Message: "any news?", AuthorID: ticket.RequesterID}, domain.UserActor(ticket.RequesterID))
	require.NoError(t, err)
	assert.Equal(t, 2, update.Seq)
	assert.Equal(t, domain.OriginWeb, update.Origin)

	_, err = h.tickets.AppendUpdate(h.ctx, ticket.ID, UpdateInput{Message: "   "}, domain.UserActor(ticket.RequesterID))
	assert.True(t, errorutil.IsValidation(err))

	_, err = h.tickets.AppendUpdate(h.ctx, "missing", UpdateInput{Message: "hello"}, domain.UserActor(ticket.RequesterID))
	assert.True(t, errorutil.IsNotFound(err))
}

func TestSoftDeleteFreezesTicket(t *testing.T) {
	h := newHarness(t)
	ticket := h.openTicket(t, "ana@example.org", "Old request")

	require.NoError(t, h.tickets.SoftDelete(h.ctx, ticket.ID, domain.UserActor("agent-1")))

	stored, err := h.tickets.Get(h.ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.NotNil(t, stored.DeletedAt)

	_, err = h.tickets.AppendUpdate(h.ctx, ticket.ID, UpdateInput{Message: "still there?"}, domain.UserActor(ticket.RequesterID))
	assert.True(t, errorutil.IsNotFound(err))
	_, err = h.tickets.Transition(h.ctx, ticket.ID, domain.StatusClosed, domain.UserActor("agent-1"))
	assert.True(t, errorutil.IsNotFound(err))
	assert.True(t, errorutil.IsNotFound(h.tickets.SoftDelete(h.ctx, ticket.ID, domain.UserActor("agent-1"))))

	listed, err := h.tickets.List(h.ctx, domain.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestGetByCodeIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	ticket := h.openTicket(t, "ana@example.org", "Badge reader")

	found, err := h.tickets.GetByCode(h.ctx, " tck-0001 ")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, found.ID)

	_, err = h.tickets.GetByCode(h.ctx, "TCK-9999")
	assert.True(t, errorutil.IsNotFound(err))
}

func TestMutationsPublishEvents(t *testing.T) {
	h := newHarness(t)
	var seen []events.EventType
	h.dispatcher.Subscribe(events.EventTicketStatusChanged, func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Type)
		payload, ok := e.Payload.(events.TicketStatusChangedPayload)
		require.True(t, ok)
		assert.Equal(t, domain.StatusClosed, payload.NewStatus)
		return nil
	})

	ticket := h.openTicket(t, "ana@example.org", "Projector")
	_, err := h.tickets.Transition(h.ctx, ticket.ID, domain.StatusClosed, domain.UserActor("agent-1"))
	require.NoError(t, err)

	assert.Equal(t, []events.EventType{events.EventTicketStatusChanged}, seen)
}

type failingDispatcher struct{}

func (failingDispatcher) Publish(context.Context, events.Event) error {
	return errors.New("bus unavailable")
}

func (failingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func TestPublishFailureIsLogged(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zapcore.ErrorLevel)
	h.tickets.dispatcher = failingDispatcher{}
	h.tickets.logger = zap.New(core)

	ticket := h.openTicket(t, "ana@example.org", "Printer jammed")

	entries := logs.FilterMessage("publish ticket event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, ticket.ID, fields["ticket_id"])
	assert.Equal(t, string(events.EventTicketCreated), fields["event_type"])
	assert.Equal(t, "bus unavailable", fields["error"])
}
