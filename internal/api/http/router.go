package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/ticket-ingest/internal/api/http/handlers"
	"github.com/deskflow/ticket-ingest/internal/auth"
)

// RouteConfig bundles dependencies for route registration. Auth is optional;
// without it no token endpoint is exposed.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Inbound        *handlers.InboundHandler
	Tickets        *handlers.TicketsHandler
	Reports        *handlers.ReportsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Auth != nil {
		app.Post("/auth/token", cfg.Auth.IssueToken)
	}

	app.Post("/inbound/email", cfg.Inbound.ReceiveEmail)
	app.Post("/ingestion/run", cfg.Inbound.RunIngestion)

	tickets := app.Group("/tickets")
	tickets.Post("/", cfg.Tickets.Submit)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/:code", cfg.Tickets.GetByCode)
	tickets.Get("/:id/history", cfg.Tickets.History)

	protected := tickets.Group("", cfg.AuthMiddleware.Handle)
	protected.Post("/:id/updates", cfg.Tickets.AddUpdate)
	protected.Post("/:id/transition", cfg.Tickets.Transition)
	protected.Patch("/:id", cfg.Tickets.Patch)
	protected.Delete("/:id", cfg.Tickets.Delete)

	reports := app.Group("/reports")
	reports.Get("/daily/:day", cfg.Reports.Day)
	reports.Post("/daily/:day/recompute", cfg.Reports.Recompute)
	reports.Get("/range", cfg.Reports.Range)
	reports.Get("/last7", cfg.Reports.LastWeek)
}
