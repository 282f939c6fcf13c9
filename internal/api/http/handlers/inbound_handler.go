package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/ticket-ingest/internal/api/dto"
	"github.com/deskflow/ticket-ingest/internal/inbox"
	"github.com/deskflow/ticket-ingest/internal/service"
	apperrors "github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

// InboundHandler receives email webhooks and manual poll requests.
type InboundHandler struct {
	source    *inbox.Source
	ingestion *service.IngestionService
}

// NewInboundHandler constructs handler.
func NewInboundHandler(source *inbox.Source, ingestion *service.IngestionService) *InboundHandler {
	return &InboundHandler{source: source, ingestion: ingestion}
}

// ReceiveEmail handles POST /inbound/email. The message is queued for the
// next poll; a repeated external id is accepted without queueing twice.
func (h *InboundHandler) ReceiveEmail(c *fiber.Ctx) error {
	var req dto.InboundEmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	msg, queued, err := h.source.Enqueue(c.UserContext(), req.Message())
	if err != nil {
		if errors.Is(err, inbox.ErrMissingSender) {
			return apperrors.NewValidationError("invalid payload", map[string]any{"from": "required"})
		}
		return apperrors.NewUnavailable("enqueue inbound message", err)
	}

	status := fiber.StatusAccepted
	if !queued {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.InboundAccepted{ExternalID: msg.ExternalID, Queued: queued}})
}

// RunIngestion handles POST /ingestion/run.
func (h *InboundHandler) RunIngestion(c *fiber.Ctx) error {
	var req dto.IngestionRunRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}

	result, err := h.ingestion.Poll(c.UserContext(), req.Limit)
	if err != nil {
		if errors.Is(err, service.ErrPollInProgress) {
			return apperrors.NewConflict("ingestion already running", nil)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}
