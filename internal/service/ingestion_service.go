package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/catalog"
	"github.com/deskflow/ticket-ingest/internal/config"
	"github.com/deskflow/ticket-ingest/internal/correlation"
	"github.com/deskflow/ticket-ingest/internal/dedup"
	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/notify"
	"github.com/deskflow/ticket-ingest/internal/observability"
	"github.com/deskflow/ticket-ingest/internal/port"
	"github.com/deskflow/ticket-ingest/internal/repository"
	"github.com/deskflow/ticket-ingest/internal/sequence"
	"github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

// Action is what the pipeline did with one message.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionDuplicate Action = "duplicate"
	ActionIgnored   Action = "ignored"
	ActionRejected  Action = "rejected"
	ActionFailed    Action = "failed"
)

// ErrPollInProgress is returned when a poll is already running.
var ErrPollInProgress = errors.New("ingestion: poll already in progress")

const defaultSubject = "Sin asunto"

// Outcome reports the processing of one message.
type Outcome struct {
	ExternalID string `json:"external_id"`
	Action     Action `json:"action"`
	TicketID   string `json:"ticket_id,omitempty"`
	TicketCode string `json:"ticket_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Err        error  `json:"-"`
}

// Acknowledge reports whether the message should be marked consumed.
// Failed messages stay unread so the source redelivers them.
func (o Outcome) Acknowledge() bool {
	return o.Action != ActionFailed
}

// BatchResult aggregates the outcomes of a batch.
type BatchResult struct {
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Duplicates int       `json:"duplicates"`
	Ignored    int       `json:"ignored"`
	Rejected   int       `json:"rejected"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
}

func (r *BatchResult) add(o Outcome) {
	switch o.Action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionDuplicate:
		r.Duplicates++
	case ActionIgnored:
		r.Ignored++
	case ActionRejected:
		r.Rejected++
	case ActionFailed:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Locker guards a poll across processes.
type Locker interface {
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

// NotificationScheduler queues a notification for asynchronous delivery.
type NotificationScheduler interface {
	Schedule(n port.Notification)
}

// IngestionDependencies bundles collaborators for the pipeline.
type IngestionDependencies struct {
	Source        port.MessageSource
	Directory     port.PartyDirectory
	Tickets       *TicketService
	Updates       repository.TicketUpdateRepository
	Allocator     *sequence.Allocator
	Resolver      *correlation.Resolver
	Classifier    *correlation.Classifier
	Guard         *dedup.Guard
	Catalog       *catalog.Catalog
	Notifications NotificationScheduler
	Lock          Locker
	Validate      *validator.Validate
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Config        config.IngestionConfig
	SystemAddress string
	Clock         func() time.Time
}

// IngestionService turns inbound messages into ticket creations and updates.
type IngestionService struct {
	deps    IngestionDependencies
	logger  *zap.Logger
	now     func() time.Time
	polling atomic.Bool
}

// newTicketRequest is validated before a message may open a ticket.
type newTicketRequest struct {
	From    string `validate:"required,email"`
	Subject string `validate:"required,max=500"`
	Body    string `validate:"max=1000000"`
	Origin  string `validate:"required,oneof=email web system"`
}

// NewIngestionService constructs the pipeline.
func NewIngestionService(deps IngestionDependencies) *IngestionService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validate == nil {
		deps.Validate = validator.New()
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &IngestionService{deps: deps, logger: deps.Logger, now: deps.Clock}
}

// Poll fetches up to limit unread messages and processes them. Only one
// poll runs at a time in a process, and across processes when a lock is
// configured.
func (s *IngestionService) Poll(ctx context.Context, limit int) (BatchResult, error) {
	if !s.polling.CompareAndSwap(false, true) {
		return BatchResult{}, ErrPollInProgress
	}
	defer s.polling.Store(false)

	if s.deps.Lock != nil {
		release, acquired, err := s.deps.Lock.Acquire(ctx)
		if err != nil {
			return BatchResult{}, errorutil.NewUnavailable("acquire poll lock", err)
		}
		if !acquired {
			return BatchResult{}, ErrPollInProgress
		}
		defer release()
	}

	if limit <= 0 {
		limit = s.deps.Config.BatchSize
	}
	msgs, err := s.deps.Source.FetchUnread(ctx, limit)
	if err != nil {
		return BatchResult{}, errorutil.NewUnavailable("fetch inbound messages", err)
	}
	result := s.ProcessBatch(ctx, msgs)
	if len(msgs) > 0 {
		s.logger.Info("poll finished",
			zap.Int("messages", len(msgs)),
			zap.Int("created", result.Created),
			zap.Int("updated", result.Updated),
			zap.Int("duplicates", result.Duplicates),
			zap.Int("ignored", result.Ignored),
			zap.Int("rejected", result.Rejected),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

// Polling reports whether a poll is running in this process.
func (s *IngestionService) Polling() bool {
	return s.polling.Load()
}

// ProcessBatch processes msgs in order, acknowledging every message that did
// not fail. One failing message never stops the batch.
func (s *IngestionService) ProcessBatch(ctx context.Context, msgs []domain.InboundMessage) BatchResult {
	result := BatchResult{Outcomes: make([]Outcome, 0, len(msgs))}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			result.add(Outcome{ExternalID: msg.ExternalID, Action: ActionFailed, Reason: "cancelled", Err: ctx.Err()})
			continue
		}
		outcome := s.ProcessOne(ctx, msg)
		if outcome.Acknowledge() && s.deps.Source != nil {
			if err := s.deps.Source.MarkConsumed(ctx, msg.ExternalID); err != nil {
				s.logger.Warn("acknowledge message",
					zap.String("external_id", msg.ExternalID),
					zap.Error(err))
			}
		}
		result.add(outcome)
	}
	return result
}

// ProcessOne runs the pipeline for a single message under the per-message
// timeout. It does not acknowledge the message.
func (s *IngestionService) ProcessOne(ctx context.Context, msg domain.InboundMessage) Outcome {
	if timeout := s.deps.Config.MessageTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg = s.normalize(msg)
	outcome := s.process(ctx, msg)
	outcome.ExternalID = msg.ExternalID

	s.deps.Metrics.RecordIngestion(string(outcome.Action))
	fields := []zap.Field{
		zap.String("external_id", msg.ExternalID),
		zap.String("action", string(outcome.Action)),
		zap.String("ticket_code", outcome.TicketCode),
	}
	if outcome.Reason != "" {
		fields = append(fields, zap.String("reason", outcome.Reason))
	}
	switch outcome.Action {
	case ActionFailed:
		s.logger.Error("inbound message failed", append(fields, zap.Error(outcome.Err))...)
	case ActionRejected:
		s.logger.Warn("inbound message rejected", append(fields, zap.Error(outcome.Err))...)
	default:
		s.logger.Info("inbound message processed", fields...)
	}
	return outcome
}

func (s *IngestionService) normalize(msg domain.InboundMessage) domain.InboundMessage {
	msg.From = domain.NormalizeEmail(msg.From)
	msg.Subject = strings.TrimSpace(msg.Subject)
	if msg.Origin == "" {
		msg.Origin = domain.OriginEmail
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}
	return msg
}

func (s *IngestionService) process(ctx context.Context, msg domain.InboundMessage) Outcome {
	if s.deps.Classifier != nil {
		if c := s.deps.Classifier.Classify(msg); c.Drop() {
			return Outcome{Action: ActionIgnored, Reason: c.Reason}
		}
	}

	res, err := s.deps.Resolver.Resolve(ctx, msg)
	if err != nil {
		return failed(err)
	}
	if res.Ticket != nil {
		return s.appendToTicket(ctx, res.Ticket, msg)
	}
	return s.openTicket(ctx, msg, res)
}

func (s *IngestionService) appendToTicket(ctx context.Context, ticket *domain.Ticket, msg domain.InboundMessage) Outcome {
	out := Outcome{TicketID: ticket.ID, TicketCode: ticket.Code}
	if s.deps.Guard.IsDuplicate(ticket, dedup.Candidate{
		ExternalMessageID: msg.ExternalID,
		Message:           msg.Body,
		ReceivedAt:        msg.ReceivedAt,
	}) {
		out.Action = ActionDuplicate
		return out
	}

	author, err := s.deps.Directory.FindOrCreateRequester(ctx, msg.From)
	if err != nil {
		if errorutil.IsValidation(err) {
			out.Action, out.Err, out.Reason = ActionRejected, err, "invalid_sender"
			return out
		}
		return withTicket(failed(err), ticket)
	}

	actor := domain.UserActor(author.ID)
	_, err = s.deps.Tickets.AppendUpdate(ctx, ticket.ID, UpdateInput{
		Message:           msg.Body,
		AuthorID:          author.ID,
		Attachments:       msg.Attachments,
		Origin:            msg.Origin,
		ExternalMessageID: msg.ExternalID,
	}, actor)
	switch {
	case errors.Is(err, repository.ErrDuplicateUpdate):
		out.Action = ActionDuplicate
		return out
	case err != nil:
		return withTicket(failed(err), ticket)
	}

	if s.isClosed(ticket) {
		if _, err := s.deps.Tickets.Transition(ctx, ticket.ID, domain.StatusOpen, domain.SystemActor("")); err != nil {
			s.logger.Error("reopen ticket by mail", zap.String("ticket_code", ticket.Code), zap.Error(err))
		} else {
			out.Reason = "reopened"
		}
	}
	out.Action = ActionUpdated
	return out
}

func (s *IngestionService) openTicket(ctx context.Context, msg domain.InboundMessage, res correlation.Result) Outcome {
	if out, found := s.alreadyIngested(ctx, msg.ExternalID); found {
		return out
	}

	if msg.Subject == "" && msg.Origin == domain.OriginEmail {
		msg.Subject = defaultSubject
	}
	req := newTicketRequest{From: msg.From, Subject: msg.Subject, Body: msg.Body, Origin: string(msg.Origin)}
	if err := s.deps.Validate.Struct(req); err != nil {
		return Outcome{Action: ActionRejected, Reason: "validation", Err: validationError(err)}
	}

	requester, err := s.deps.Directory.FindOrCreateRequester(ctx, msg.From)
	if err != nil {
		if errorutil.IsValidation(err) {
			return Outcome{Action: ActionRejected, Reason: "invalid_sender", Err: err}
		}
		return failed(err)
	}
	classification, err := s.deps.Catalog.DefaultClassification(msg.Origin)
	if err != nil {
		return failed(err)
	}
	assignee := s.defaultAssignee(ctx)

	code, err := s.deps.Allocator.Allocate(ctx)
	if err != nil {
		return failed(err)
	}
	ticket, err := s.deps.Tickets.Create(ctx, CreateTicketInput{
		Code:           code,
		Subject:        msg.Subject,
		Description:    msg.Body,
		RequesterID:    requester.ID,
		AssigneeID:     assignee,
		Classification: classification,
		First: UpdateInput{
			Message:           msg.Body,
			AuthorID:          requester.ID,
			Attachments:       msg.Attachments,
			Origin:            msg.Origin,
			ExternalMessageID: msg.ExternalID,
		},
		Actor: domain.UserActor(requester.ID),
	})
	if err != nil {
		if errorutil.IsValidation(err) {
			return Outcome{Action: ActionRejected, Reason: "validation", Err: err}
		}
		// Another poller opened a ticket from this message first.
		if errors.Is(err, repository.ErrDuplicateUpdate) {
			if out, found := s.alreadyIngested(ctx, msg.ExternalID); found {
				return out
			}
		}
		return failed(err)
	}

	if s.deps.Notifications != nil {
		s.deps.Notifications.Schedule(notify.Acknowledgement(ticket, requester.Email, s.deps.SystemAddress, s.deps.Config.CorrelationHeader))
	}
	out := Outcome{Action: ActionCreated, TicketID: ticket.ID, TicketCode: ticket.Code}
	if res.Reason != correlation.ReasonNoReference {
		out.Reason = res.Reason
	}
	return out
}

// alreadyIngested looks up a ticket opened earlier from externalID. A
// lookup failure is returned as a failed outcome with found set.
func (s *IngestionService) alreadyIngested(ctx context.Context, externalID string) (Outcome, bool) {
	if externalID == "" || s.deps.Updates == nil {
		return Outcome{}, false
	}
	prior, err := s.deps.Updates.FindByExternalID(ctx, externalID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return Outcome{}, false
	case err != nil:
		return failed(err), true
	}
	out := Outcome{Action: ActionDuplicate, TicketID: prior.TicketID, Reason: "already_ingested"}
	if t, err := s.deps.Tickets.Get(ctx, prior.TicketID); err == nil {
		out.TicketCode = t.Code
	}
	return out, true
}

func (s *IngestionService) defaultAssignee(ctx context.Context) *string {
	email := strings.TrimSpace(s.deps.Config.DefaultAssigneeEmail)
	if email == "" {
		return nil
	}
	agent, err := s.deps.Directory.FindByEmail(ctx, email)
	if err != nil {
		s.logger.Warn("default assignee unavailable", zap.String("email", email), zap.Error(err))
		return nil
	}
	return &agent.ID
}

func (s *IngestionService) isClosed(ticket *domain.Ticket) bool {
	value, err := s.deps.Catalog.StatusValue(ticket.StatusID)
	return err == nil && value.IsTerminal()
}

func failed(err error) Outcome {
	return Outcome{Action: ActionFailed, Err: err}
}

func withTicket(o Outcome, ticket *domain.Ticket) Outcome {
	o.TicketID, o.TicketCode = ticket.ID, ticket.Code
	return o
}

func validationError(err error) error {
	details := map[string]any{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[strings.ToLower(fe.Field())] = fe.Tag()
		}
	} else {
		details["message"] = err.Error()
	}
	return errorutil.NewValidationError("invalid inbound message", details)
}
