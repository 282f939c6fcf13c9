package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/catalog"
	"github.com/deskflow/ticket-ingest/internal/dedup"
	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/events"
	"github.com/deskflow/ticket-ingest/internal/repository"
	"github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

// RollupTrigger is told about every ticket mutation. previousClosedAt is
// the closure time before the mutation, so a reopened ticket can be removed
// from its old closure bucket.
type RollupTrigger interface {
	TicketChanged(ctx context.Context, ticket *domain.Ticket, previousClosedAt *time.Time)
}

// TicketService owns the ticket lifecycle.
type TicketService struct {
	tickets    repository.TicketRepository
	updates    repository.TicketUpdateRepository
	history    repository.TicketHistoryRepository
	catalog    *catalog.Catalog
	guard      *dedup.Guard
	dispatcher events.Dispatcher
	rollup     RollupTrigger
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Repos      repository.Set
	Catalog    *catalog.Catalog
	Guard      *dedup.Guard
	Dispatcher events.Dispatcher
	Rollup     RollupTrigger
	Logger     *zap.Logger
	Clock      func() time.Time
}

// UpdateInput describes one update to append.
type UpdateInput struct {
	Message           string
	AuthorID          string
	Attachments       []domain.Attachment
	Origin            domain.UpdateOrigin
	ExternalMessageID string
}

// CreateTicketInput describes a new ticket and its opening update.
type CreateTicketInput struct {
	Code           string
	Subject        string
	Description    string
	RequesterID    string
	AssigneeID     *string
	Classification catalog.Classification
	First          UpdateInput
	Actor          domain.Actor
}

// FieldChanges lists the scalar fields to modify. Nil pointers are left
// untouched; ClearAssignee unassigns the ticket.
type FieldChanges struct {
	Subject       *string
	Description   *string
	AssigneeID    *string
	ClearAssignee bool
	PriorityID    *string
	ImpactID      *string
	DepartmentID  *string
	TypeID        *string
	SourceID      *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &TicketService{
		tickets:    deps.Repos.Tickets,
		updates:    deps.Repos.Updates,
		history:    deps.Repos.History,
		catalog:    deps.Catalog,
		guard:      deps.Guard,
		dispatcher: deps.Dispatcher,
		rollup:     deps.Rollup,
		logger:     logger,
		now:        clock,
	}
}

// Create stores a new ticket together with its first update.
func (s *TicketService) Create(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	details := map[string]any{}
	if strings.TrimSpace(input.Code) == "" {
		details["code"] = "required"
	}
	if subject == "" {
		details["subject"] = "required"
	}
	if input.RequesterID == "" {
		details["requester_id"] = "required"
	}
	if err := s.checkClassification(input.Classification, details); err != nil {
		return nil, err
	}
	if len(details) > 0 {
		return nil, errorutil.NewValidationError("invalid ticket", details)
	}
	status, err := s.catalog.StatusValue(input.Classification.StatusID)
	if err != nil {
		return nil, errorutil.NewValidationError("invalid ticket", map[string]any{"status_id": "unknown"})
	}
	if status.IsTerminal() {
		return nil, errorutil.NewValidationError("invalid ticket", map[string]any{"status_id": "new tickets cannot start closed"})
	}

	now := s.now()
	first := s.buildUpdate(input.First, now)
	if strings.TrimSpace(first.Message) == "" {
		first.Message = strings.TrimSpace(input.Description)
		first.Fingerprint = s.fingerprint(first.Message)
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = first.Message
	}

	c := input.Classification
	ticket := &domain.Ticket{
		Code:         input.Code,
		Subject:      subject,
		Description:  description,
		StatusID:     c.StatusID,
		PriorityID:   c.PriorityID,
		ImpactID:     c.ImpactID,
		DepartmentID: c.DepartmentID,
		TypeID:       c.TypeID,
		SourceID:     c.SourceID,
		RequesterID:  input.RequesterID,
		AssigneeID:   input.AssigneeID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Updates:      []domain.TicketUpdate{first},
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket %s: %w", input.Code, mapRepoError(err, "ticket"))
	}

	s.recordHistory(ctx, input.Actor, ticket.ID, domain.ChangeTypeCreated, nil, map[string]any{
		"code":   ticket.Code,
		"status": string(status),
	})
	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketCreated,
		TicketID:   ticket.ID,
		TicketCode: ticket.Code,
		Actor:      eventActor(input.Actor),
		Payload: events.TicketCreatedPayload{
			Subject:      ticket.Subject,
			RequesterID:  ticket.RequesterID,
			DepartmentID: ticket.DepartmentID,
			Origin:       first.Origin,
		},
	})
	s.triggerRollup(ctx, ticket, nil)
	return ticket, nil
}

// AppendUpdate adds an update to a live ticket.
func (s *TicketService) AppendUpdate(ctx context.Context, ticketID string, input UpdateInput, actor domain.Actor) (*domain.TicketUpdate, error) {
	if strings.TrimSpace(input.Message) == "" && len(input.Attachments) == 0 {
		return nil, errorutil.NewValidationError("invalid update", map[string]any{"message": "required"})
	}
	ticket, err := s.liveTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	update := s.buildUpdate(input, s.now())
	update.TicketID = ticket.ID
	if err := s.updates.Append(ctx, &update); err != nil {
		return nil, mapRepoError(err, "ticket")
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketUpdateAdded,
		TicketID:   ticket.ID,
		TicketCode: ticket.Code,
		Actor:      eventActor(actor),
		Payload: events.TicketUpdateAddedPayload{
			UpdateID:    update.ID,
			Seq:         update.Seq,
			Origin:      update.Origin,
			AuthorID:    update.AuthorID,
			BodyPreview: stringPreview(update.Message, 120),
		},
	})
	ticket.Updates = append(ticket.Updates, update)
	ticket.UpdatedAt = update.CreatedAt
	s.triggerRollup(ctx, ticket, ticket.ClosedAt)
	return &update, nil
}

// Transition moves the ticket to target. Closing records the actor and
// time; reopening clears both; re-closing keeps the first closure.
func (s *TicketService) Transition(ctx context.Context, ticketID string, target domain.StatusValue, actor domain.Actor) (*domain.Ticket, error) {
	targetID, err := s.catalog.StatusID(target)
	if err != nil {
		return nil, errorutil.NewValidationError("invalid status", map[string]any{"status": string(target)})
	}
	ticket, err := s.liveTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	current, err := s.catalog.StatusValue(ticket.StatusID)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	if current == target {
		return ticket, nil
	}

	previousClosedAt := ticket.ClosedAt
	now := s.now()
	if target.IsTerminal() {
		ticket.MarkClosed(actor.ID, now)
	} else {
		ticket.ClearClosure()
	}
	ticket.StatusID = targetID
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapRepoError(err, "ticket")
	}

	s.recordHistory(ctx, actor, ticket.ID, domain.ChangeTypeStatus,
		map[string]any{"status": string(current)},
		map[string]any{"status": string(target)})
	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketStatusChanged,
		TicketID:   ticket.ID,
		TicketCode: ticket.Code,
		Actor:      eventActor(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: current,
			NewStatus: target,
			Reopened:  current.IsTerminal(),
		},
	})
	s.triggerRollup(ctx, ticket, previousClosedAt)
	return ticket, nil
}

// UpdateFields changes scalar fields. Status is never touched here.
func (s *TicketService) UpdateFields(ctx context.Context, ticketID string, changes FieldChanges, actor domain.Actor) (*domain.Ticket, error) {
	details := map[string]any{}
	s.checkID(catalog.KindPriority, changes.PriorityID, "priority_id", details)
	s.checkID(catalog.KindImpact, changes.ImpactID, "impact_id", details)
	s.checkID(catalog.KindDepartment, changes.DepartmentID, "department_id", details)
	s.checkID(catalog.KindType, changes.TypeID, "type_id", details)
	s.checkID(catalog.KindSource, changes.SourceID, "source_id", details)
	if changes.Subject != nil && strings.TrimSpace(*changes.Subject) == "" {
		details["subject"] = "required"
	}
	if len(details) > 0 {
		return nil, errorutil.NewValidationError("invalid ticket changes", details)
	}

	ticket, err := s.liveTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	var entries []historyChange
	var fields []string
	track := func(changeType domain.TicketChangeType, field string, old, updated any) {
		entries = append(entries, historyChange{
			changeType: changeType,
			old:        map[string]any{field: old},
			new:        map[string]any{field: updated},
		})
		fields = append(fields, field)
	}
	setString := func(changeType domain.TicketChangeType, field string, target *string, value *string) {
		if value == nil {
			return
		}
		v := strings.TrimSpace(*value)
		if v == *target {
			return
		}
		track(changeType, field, *target, v)
		*target = v
	}

	setString(domain.ChangeTypeContent, "subject", &ticket.Subject, changes.Subject)
	setString(domain.ChangeTypeContent, "description", &ticket.Description, changes.Description)
	setString(domain.ChangeTypePriority, "priority_id", &ticket.PriorityID, changes.PriorityID)
	setString(domain.ChangeTypeDepartment, "department_id", &ticket.DepartmentID, changes.DepartmentID)
	setString(domain.ChangeTypeClassification, "impact_id", &ticket.ImpactID, changes.ImpactID)
	setString(domain.ChangeTypeClassification, "type_id", &ticket.TypeID, changes.TypeID)
	setString(domain.ChangeTypeClassification, "source_id", &ticket.SourceID, changes.SourceID)

	switch {
	case changes.ClearAssignee && ticket.AssigneeID != nil:
		track(domain.ChangeTypeAssignee, "assignee_id", *ticket.AssigneeID, nil)
		ticket.AssigneeID = nil
	case changes.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *changes.AssigneeID):
		var old any
		if ticket.AssigneeID != nil {
			old = *ticket.AssigneeID
		}
		assignee := *changes.AssigneeID
		track(domain.ChangeTypeAssignee, "assignee_id", old, assignee)
		ticket.AssigneeID = &assignee
	}

	if len(entries) == 0 {
		return ticket, nil
	}
	ticket.UpdatedAt = s.now()
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	for _, e := range entries {
		s.recordHistory(ctx, actor, ticket.ID, e.changeType, e.old, e.new)
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketFieldsChanged,
		TicketID:   ticket.ID,
		TicketCode: ticket.Code,
		Actor:      eventActor(actor),
		Payload:    events.TicketFieldsChangedPayload{Fields: fields},
	})
	s.triggerRollup(ctx, ticket, ticket.ClosedAt)
	return ticket, nil
}

// SoftDelete hides the ticket from listings and reports. Its code stays
// reserved.
func (s *TicketService) SoftDelete(ctx context.Context, ticketID string, actor domain.Actor) error {
	ticket, err := s.liveTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	now := s.now()
	if err := s.tickets.SoftDelete(ctx, ticket.ID, now); err != nil {
		return mapRepoError(err, "ticket")
	}
	ticket.IsDeleted = true
	ticket.DeletedAt = &now
	ticket.UpdatedAt = now

	s.recordHistory(ctx, actor, ticket.ID, domain.ChangeTypeDeleted, nil, map[string]any{"deleted": true})
	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketDeleted,
		TicketID:   ticket.ID,
		TicketCode: ticket.Code,
		Actor:      eventActor(actor),
	})
	s.triggerRollup(ctx, ticket, ticket.ClosedAt)
	return nil
}

// Get returns a ticket by id, including soft-deleted ones.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	return ticket, nil
}

// GetByCode returns a ticket by its human-readable code.
func (s *TicketService) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	return ticket, nil
}

// List returns tickets matching filter.
func (s *TicketService) List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.tickets.List(ctx, filter)
}

// ListUpdates returns the update thread in Seq order.
func (s *TicketService) ListUpdates(ctx context.Context, ticketID string) ([]domain.TicketUpdate, error) {
	if _, err := s.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.updates.ListByTicket(ctx, ticketID)
}

// History returns the audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, ticketID)
}

// fingerprint is empty when no guard is wired.
func (s *TicketService) fingerprint(message string) string {
	if s.guard == nil {
		return ""
	}
	return s.guard.Fingerprint(message)
}

func (s *TicketService) buildUpdate(input UpdateInput, at time.Time) domain.TicketUpdate {
	origin := input.Origin
	if !origin.Valid() {
		origin = domain.OriginWeb
	}
	update := domain.TicketUpdate{
		ID:          uuid.NewString(),
		Message:     strings.TrimSpace(input.Message),
		AuthorID:    input.AuthorID,
		Attachments: input.Attachments,
		Origin:      origin,
		CreatedAt:   at,
	}
	if input.ExternalMessageID != "" {
		ext := input.ExternalMessageID
		update.ExternalMessageID = &ext
	}
	update.Fingerprint = s.fingerprint(update.Message)
	return update
}

func (s *TicketService) liveTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	if ticket.IsDeleted {
		return nil, errorutil.NewNotFound("ticket", map[string]any{"ticket_id": ticketID, "deleted": true})
	}
	return ticket, nil
}

func (s *TicketService) checkClassification(c catalog.Classification, details map[string]any) error {
	if s.catalog == nil {
		return errorutil.NewInternalError(fmt.Errorf("catalog not configured"))
	}
	for _, f := range []struct {
		kind  catalog.Kind
		id    string
		field string
	}{
		{catalog.KindStatus, c.StatusID, "status_id"},
		{catalog.KindPriority, c.PriorityID, "priority_id"},
		{catalog.KindImpact, c.ImpactID, "impact_id"},
		{catalog.KindDepartment, c.DepartmentID, "department_id"},
		{catalog.KindType, c.TypeID, "type_id"},
		{catalog.KindSource, c.SourceID, "source_id"},
	} {
		if !s.catalog.Has(f.kind, f.id) {
			details[f.field] = "unknown"
		}
	}
	return nil
}

func (s *TicketService) checkID(kind catalog.Kind, id *string, field string, details map[string]any) {
	if id != nil && !s.catalog.Has(kind, strings.TrimSpace(*id)) {
		details[field] = "unknown"
	}
}

type historyChange struct {
	changeType domain.TicketChangeType
	old        map[string]any
	new        map[string]any
}

// recordHistory writes an audit entry. The mutation it describes is already
// stored, so a failure is logged rather than returned.
func (s *TicketService) recordHistory(ctx context.Context, actor domain.Actor, ticketID string, changeType domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ActorType:  actor.Type,
		ChangeType: changeType,
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  s.now(),
	}
	if entry.ActorType == "" {
		entry.ActorType = domain.ActorTypeSystem
	}
	if actor.ID != "" {
		id := actor.ID
		entry.ChangedByID = &id
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(changeType)),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("publish ticket event",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (s *TicketService) triggerRollup(ctx context.Context, ticket *domain.Ticket, previousClosedAt *time.Time) {
	if s.rollup == nil {
		return
	}
	s.rollup.TicketChanged(ctx, ticket, previousClosedAt)
}

func eventActor(actor domain.Actor) events.Actor {
	t := actor.Type
	if t == "" {
		t = domain.ActorTypeSystem
	}
	return events.Actor{Type: t, ID: actor.ID}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
