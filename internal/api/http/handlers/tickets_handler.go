package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/ticket-ingest/internal/api/dto"
	"github.com/deskflow/ticket-ingest/internal/auth"
	"github.com/deskflow/ticket-ingest/internal/catalog"
	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/service"
	apperrors "github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	tickets   *service.TicketService
	ingestion *service.IngestionService
	catalog   *catalog.Catalog
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, ingestion *service.IngestionService, cat *catalog.Catalog) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, ingestion: ingestion, catalog: cat}
}

// Submit handles POST /tickets. Web submissions run through the same
// pipeline as email so references, dedup and defaults behave the same.
func (h *TicketsHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitTicketRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	outcome := h.ingestion.ProcessOne(c.UserContext(), req.Message())
	switch outcome.Action {
	case service.ActionFailed:
		return apperrors.MapError(outcome.Err)
	case service.ActionRejected:
		if outcome.Err != nil {
			return outcome.Err
		}
		return apperrors.NewValidationError("submission rejected", map[string]any{"reason": outcome.Reason})
	case service.ActionIgnored:
		return apperrors.NewValidationError("submission ignored", map[string]any{"reason": outcome.Reason})
	}

	ticket, err := h.tickets.Get(c.UserContext(), outcome.TicketID)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if outcome.Action == service.ActionCreated {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": fiber.Map{
		"outcome": outcome,
		"ticket":  h.response(ticket),
	}})
}

// List handles GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.tickets.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, h.response(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetByCode handles GET /tickets/:code.
func (h *TicketsHandler) GetByCode(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetByCode(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.response(ticket)})
}

// History handles GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	entries, err := h.tickets.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(entries)})
}

// AddUpdate handles POST /tickets/:id/updates.
func (h *TicketsHandler) AddUpdate(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AddUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	update, err := h.tickets.AppendUpdate(c.UserContext(), c.Params("id"), service.UpdateInput{
		Message:     req.Message,
		AuthorID:    principal.User.ID,
		Attachments: dto.Attachments(req.Attachments),
		Origin:      domain.OriginWeb,
	}, principal.Actor())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketUpdateResponse(update)})
}

// Transition handles POST /tickets/:id/transition.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ticket, err := h.tickets.Transition(c.UserContext(), c.Params("id"), domain.StatusValue(req.Status), principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.response(ticket)})
}

// Patch handles PATCH /tickets/:id.
func (h *TicketsHandler) Patch(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PatchTicketRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ticket, err := h.tickets.UpdateFields(c.UserContext(), c.Params("id"), service.FieldChanges{
		Subject:       req.Subject,
		Description:   req.Description,
		AssigneeID:    req.AssigneeID,
		ClearAssignee: req.ClearAssignee,
		PriorityID:    req.PriorityID,
		ImpactID:      req.ImpactID,
		DepartmentID:  req.DepartmentID,
		TypeID:        req.TypeID,
		SourceID:      req.SourceID,
	}, principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.response(ticket)})
}

// Delete handles DELETE /tickets/:id.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.tickets.SoftDelete(c.UserContext(), c.Params("id"), principal.Actor()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TicketsHandler) response(ticket *domain.Ticket) dto.TicketResponse {
	status, _ := h.catalog.StatusValue(ticket.StatusID)
	return dto.NewTicketResponse(ticket, status)
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return principal, nil
}

func parseTicketQuery(c *fiber.Ctx) domain.TicketFilter {
	filter := domain.TicketFilter{}
	if statusStr := c.Query("status_id"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.StatusIDs = append(filter.StatusIDs, part)
			}
		}
	}
	if v := c.Query("requester_id"); v != "" {
		filter.RequesterID = &v
	}
	if v := c.Query("assignee_id"); v != "" {
		filter.AssigneeID = &v
	}
	if v := c.Query("department_id"); v != "" {
		filter.DepartmentID = &v
	}
	if v := strings.TrimSpace(c.Query("q")); v != "" {
		filter.SearchTerm = &v
	}
	filter.CreatedFrom = parseTime(c.Query("created_from"))
	filter.CreatedTo = parseTime(c.Query("created_to"))
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
