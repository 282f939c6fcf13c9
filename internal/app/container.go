// Package app builds the service graph shared by the HTTP server and the
// ingest command.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/auth"
	"github.com/deskflow/ticket-ingest/internal/catalog"
	"github.com/deskflow/ticket-ingest/internal/config"
	"github.com/deskflow/ticket-ingest/internal/correlation"
	"github.com/deskflow/ticket-ingest/internal/dedup"
	"github.com/deskflow/ticket-ingest/internal/events"
	"github.com/deskflow/ticket-ingest/internal/inbox"
	"github.com/deskflow/ticket-ingest/internal/notify"
	"github.com/deskflow/ticket-ingest/internal/observability"
	"github.com/deskflow/ticket-ingest/internal/persistence"
	"github.com/deskflow/ticket-ingest/internal/port"
	"github.com/deskflow/ticket-ingest/internal/repository"
	"github.com/deskflow/ticket-ingest/internal/repository/memory"
	"github.com/deskflow/ticket-ingest/internal/repository/sqlite"
	"github.com/deskflow/ticket-ingest/internal/sequence"
	"github.com/deskflow/ticket-ingest/internal/service"
	"github.com/deskflow/ticket-ingest/internal/worker"
)

const pollLockKey = "ticket-ingest:poll-lock"

// Container holds the wired services and the resources they own.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Catalog   *catalog.Catalog
	Repos     repository.Set
	Postgres  *persistence.Postgres
	SQLite    *persistence.SQLite
	Redis     *persistence.Redis
	Events    events.Dispatcher
	Inbox     *inbox.Source
	Directory *service.DirectoryService
	Tickets   *service.TicketService
	Reports   *service.ReportService
	Ingestion *service.IngestionService
	Auth      *service.AuthService
	Tokens    *auth.TokenManager

	notifications *notify.Dispatcher
	amqp          *notify.Client
}

// New opens storage, builds the services and subscribes event handlers.
// Close must be called to release what New opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	c.Catalog = cat

	if err := c.openStorage(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.openNotifications(); err != nil {
		c.Close()
		return nil, err
	}
	c.build()
	return c, nil
}

func loadCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if cfg.Path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.Path, err)
	}
	return cat, nil
}

func (c *Container) openStorage(ctx context.Context) error {
	cfg := c.Config
	c.Redis = persistence.NewRedis(ctx, cfg.Redis, c.Logger)

	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, c.Logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		c.Postgres = pg
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, c.Logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		c.Repos = repository.NewPostgresSet(pg.Pool)
	case config.StorageDriverSQLite:
		db, err := persistence.OpenSQLite(ctx, cfg.SQLite.Path, c.Logger)
		if err != nil {
			return err
		}
		c.SQLite = db
		c.Repos = sqlite.NewSet(db.DB)
	case config.StorageDriverMemory:
		c.Logger.Warn("using in-memory storage; data is lost on exit")
		c.Repos = memory.NewStore().Set()
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Storage.CounterBackend == config.CounterBackendRedis {
		if c.Redis == nil {
			return fmt.Errorf("redis counter backend requires redis")
		}
		c.Repos.Counters = repository.NewRedisCounterRepository(c.Redis.Handle())
	}
	return nil
}

func (c *Container) openNotifications() error {
	cfg := c.Config.Notification
	var notifier port.Notifier = notify.NewLogNotifier(c.Logger)
	if cfg.AMQPURL != "" {
		client, err := notify.NewClient(cfg.AMQPURL, c.Logger)
		if err != nil {
			return err
		}
		if err := client.DeclareExchange(cfg.Exchange); err != nil {
			_ = client.Close()
			return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
		}
		c.amqp = client
		notifier = notify.NewAMQPNotifier(client, cfg.Exchange, cfg.RoutingKey, c.Logger)
	}
	c.notifications = notify.NewDispatcher(notifier, cfg.Delay(), cfg.Timeout(), c.Logger)
	return nil
}

func (c *Container) build() {
	cfg := c.Config
	ing := cfg.Ingestion
	guard := dedup.NewGuard(ing.DedupWindow(), ing.DedupPrefixLength)

	c.Events = events.NewInMemoryDispatcher(c.Logger)
	c.Reports = service.NewReportService(c.Repos, c.Catalog, cfg.Report, c.Logger, nil)
	c.Tickets = service.NewTicketService(service.TicketDependencies{
		Repos:      c.Repos,
		Catalog:    c.Catalog,
		Guard:      guard,
		Dispatcher: c.Events,
		Rollup:     c.Reports,
		Logger:     c.Logger,
	})
	c.Directory = service.NewDirectoryService(c.Repos.Users)
	c.Inbox = inbox.NewSource(c.Repos.Inbox)

	var lock service.Locker
	if c.Redis != nil {
		lock = worker.NewRedisLock(c.Redis.Handle(), pollLockKey, ing.LockTTL(), c.Logger)
	}

	c.Ingestion = service.NewIngestionService(service.IngestionDependencies{
		Source:    c.Inbox,
		Directory: c.Directory,
		Tickets:   c.Tickets,
		Updates:   c.Repos.Updates,
		Allocator: sequence.NewAllocator(c.Repos.Counters, cfg.Sequence),
		Resolver: correlation.NewResolver(
			correlation.DefaultStrategies(ing.CorrelationHeader, ing.MatchBody),
			c.Repos.Tickets, c.Catalog, ing.ReopenByMail),
		Classifier: correlation.NewClassifier(
			[]string{cfg.Notification.SystemAddress}, ing.AllowedDomains, ing.BoilerplateMarkers),
		Guard:         guard,
		Catalog:       c.Catalog,
		Notifications: c.notifications,
		Lock:          lock,
		Metrics:       c.Metrics,
		Logger:        c.Logger.Named("ingestion"),
		Config:        ing,
		SystemAddress: cfg.Notification.SystemAddress,
	})

	service.NewNotificationService(c.Events, c.notifications, c.Repos, c.Logger, cfg.Notification, ing.CorrelationHeader).RegisterHandlers()

	c.Tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	c.Auth = service.NewAuthService(c.Directory, c.Tokens)
}

// Close flushes pending notifications and releases connections.
func (c *Container) Close() {
	if c.notifications != nil {
		c.notifications.Close()
	}
	if c.amqp != nil {
		if err := c.amqp.Close(); err != nil {
			c.Logger.Warn("close amqp client", zap.Error(err))
		}
	}
	c.Redis.Close()
	c.SQLite.Close()
	c.Postgres.Close()
}
