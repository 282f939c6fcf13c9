package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/ticket-ingest/internal/service"
	apperrors "github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

const dayLayout = "2006-01-02"

// ReportsHandler exposes the daily rollups.
type ReportsHandler struct {
	reports *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reports *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reports: reports}
}

// Day handles GET /reports/daily/:day.
func (h *ReportsHandler) Day(c *fiber.Ctx) error {
	day, err := parseDay("day", c.Params("day"))
	if err != nil {
		return err
	}
	report, err := h.reports.GetDay(c.UserContext(), day)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Recompute handles POST /reports/daily/:day/recompute.
func (h *ReportsHandler) Recompute(c *fiber.Ctx) error {
	day, err := parseDay("day", c.Params("day"))
	if err != nil {
		return err
	}
	report, err := h.reports.RecomputeDay(c.UserContext(), day)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Range handles GET /reports/range?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *ReportsHandler) Range(c *fiber.Ctx) error {
	from, err := parseDay("from", c.Query("from"))
	if err != nil {
		return err
	}
	to, err := parseDay("to", c.Query("to"))
	if err != nil {
		return err
	}
	summary, err := h.reports.Range(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

// LastWeek handles GET /reports/last7.
func (h *ReportsHandler) LastWeek(c *fiber.Ctx) error {
	summary, err := h.reports.LastDays(c.UserContext(), 7)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

func parseDay(field, raw string) (time.Time, error) {
	day, err := time.Parse(dayLayout, raw)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("invalid day", map[string]any{field: "expected YYYY-MM-DD"})
	}
	return day, nil
}
