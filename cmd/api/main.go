package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/deskflow/ticket-ingest/internal/api/http"
	"github.com/deskflow/ticket-ingest/internal/api/http/handlers"
	"github.com/deskflow/ticket-ingest/internal/app"
	"github.com/deskflow/ticket-ingest/internal/auth"
	"github.com/deskflow/ticket-ingest/internal/config"
	"github.com/deskflow/ticket-ingest/internal/observability"
	"github.com/deskflow/ticket-ingest/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer c.Close()

	server := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, logger, c.Metrics, cfg.App.RequestTimeout())

	routes := httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthChecks(c)),
		Inbound:        handlers.NewInboundHandler(c.Inbox, c.Ingestion),
		Tickets:        handlers.NewTicketsHandler(c.Tickets, c.Ingestion, c.Catalog),
		Reports:        handlers.NewReportsHandler(c.Reports),
		AuthMiddleware: auth.NewAuthMiddleware(c.Tokens, c.Repos.Users),
	}
	if cfg.App.Env != "production" {
		routes.Auth = handlers.NewAuthHandler(c.Auth)
	}
	httptransport.RegisterRoutes(server, routes)

	var wg sync.WaitGroup
	poller := worker.NewPoller(c.Ingestion.Poll, cfg.Ingestion.PollInterval(), cfg.Ingestion.BatchSize, logger.Named("poller"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("storage", cfg.Storage.Driver))

	waitForShutdown(logger)

	cancel()
	if err := server.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	wg.Wait()
}

func healthChecks(c *app.Container) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if c.Postgres != nil {
		checks["postgres"] = c.Postgres
	}
	if c.SQLite != nil {
		checks["sqlite"] = c.SQLite
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	return checks
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
