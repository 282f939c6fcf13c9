package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/config"
	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/events"
	"github.com/deskflow/ticket-ingest/internal/port"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

// NotificationService turns domain events into requester notifications:
// agent replies are forwarded and closures announced. Acknowledgements of
// new tickets are scheduled by the ingestion pipeline.
type NotificationService struct {
	dispatcher events.Dispatcher
	scheduler  NotificationScheduler
	tickets    repository.TicketRepository
	users      repository.UserRepository
	logger     *zap.Logger
	from       string
	header     string
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, scheduler NotificationScheduler, repos repository.Set, logger *zap.Logger, cfg config.NotificationConfig, header string) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		scheduler:  scheduler,
		tickets:    repos.Tickets,
		users:      repos.Users,
		logger:     logger,
		from:       cfg.SystemAddress,
		header:     header,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.scheduler == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketUpdateAdded, n.handleTicketUpdateAdded)
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok || payload.NewStatus != domain.StatusClosed {
		return nil
	}
	return n.notifyRequester(ctx, event.TicketID, func(t *domain.Ticket) (string, string) {
		return fmt.Sprintf("[%s] Ticket cerrado", t.Code),
			fmt.Sprintf("Su ticket %s ha sido cerrado. Si el problema persiste, responda a este correo.", t.Code)
	})
}

func (n *NotificationService) handleTicketUpdateAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketUpdateAddedPayload)
	if !ok || payload.Origin == domain.OriginEmail {
		return nil
	}
	return n.notifyRequester(ctx, event.TicketID, func(t *domain.Ticket) (string, string) {
		if payload.AuthorID == t.RequesterID {
			return "", ""
		}
		for _, u := range t.Updates {
			if u.ID == payload.UpdateID {
				return fmt.Sprintf("[%s] %s", t.Code, t.Subject), u.Message
			}
		}
		return "", ""
	})
}

func (n *NotificationService) notifyRequester(ctx context.Context, ticketID string, compose func(*domain.Ticket) (subject, body string)) error {
	ticket, err := n.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	subject, body := compose(ticket)
	if subject == "" {
		return nil
	}
	requester, err := n.users.GetByID(ctx, ticket.RequesterID)
	if err != nil {
		return fmt.Errorf("load requester of %s: %w", ticket.Code, err)
	}
	n.scheduler.Schedule(port.Notification{
		TicketID:   ticket.ID,
		TicketCode: ticket.Code,
		To:         requester.Email,
		From:       n.from,
		Subject:    subject,
		Body:       body,
		Headers:    map[string]string{n.header: ticket.Code, "Auto-Submitted": "auto-generated"},
		CreatedAt:  time.Now().UTC(),
	})
	n.logger.Debug("notification scheduled", zap.String("ticket_code", ticket.Code), zap.String("subject", subject))
	return nil
}
