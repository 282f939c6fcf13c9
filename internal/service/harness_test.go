package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/catalog"
	"github.com/deskflow/ticket-ingest/internal/config"
	"github.com/deskflow/ticket-ingest/internal/correlation"
	"github.com/deskflow/ticket-ingest/internal/dedup"
	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/events"
	"github.com/deskflow/ticket-ingest/internal/inbox"
	"github.com/deskflow/ticket-ingest/internal/observability"
	"github.com/deskflow/ticket-ingest/internal/port"
	"github.com/deskflow/ticket-ingest/internal/repository"
	"github.com/deskflow/ticket-ingest/internal/repository/memory"
	"github.com/deskflow/ticket-ingest/internal/sequence"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingScheduler struct {
	mu   sync.Mutex
	sent []port.Notification
}

func (r *recordingScheduler) Schedule(n port.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingScheduler) all() []port.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]port.Notification(nil), r.sent...)
}

type harness struct {
	ctx        context.Context
	cfg        *config.Config
	store      *memory.Store
	repos      repository.Set
	catalog    *catalog.Catalog
	clock      *fakeClock
	dispatcher events.Dispatcher
	scheduler  *recordingScheduler
	metrics    *observability.Metrics
	allocator  *sequence.Allocator
	directory  *DirectoryService
	source     *inbox.Source
	tickets    *TicketService
	reports    *ReportService
	ingest     *IngestionService
}

func testConfig() *config.Config {
	return &config.Config{
		Notification: config.NotificationConfig{SystemAddress: "soporte@example.com"},
		Ingestion: config.IngestionConfig{
			BatchSize:             20,
			MessageTimeoutSeconds: 5,
			CorrelationHeader:     "X-Ticket-ID",
			DedupWindowSeconds:    300,
			DedupPrefixLength:     200,
			BoilerplateMarkers:    []string{"este es un mensaje automático"},
		},
		Sequence: config.SequenceConfig{Namespace: "tickets", Prefix: "TCK", Width: 4, BatchSize: 1},
		Report:   config.ReportConfig{ClosedBucket: config.ClosedBucketCreated},
	}
}

func newHarness(t *testing.T, opts ...func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	h := &harness{
		ctx:        context.Background(),
		cfg:        cfg,
		store:      memory.NewStore(),
		catalog:    catalog.Default(),
		clock:      &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)},
		dispatcher: events.NewInMemoryDispatcher(nil),
		scheduler:  &recordingScheduler{},
		metrics:    observability.NewMetrics(),
	}
	h.repos = h.store.Set()
	guard := dedup.NewGuard(cfg.Ingestion.DedupWindow(), cfg.Ingestion.DedupPrefixLength)

	h.reports = NewReportService(h.repos, h.catalog, cfg.Report, zap.NewNop(), h.clock.Now)
	h.tickets = NewTicketService(TicketDependencies{
		Repos:      h.repos,
		Catalog:    h.catalog,
		Guard:      guard,
		Dispatcher: h.dispatcher,
		Rollup:     h.reports,
		Clock:      h.clock.Now,
	})
	h.directory = NewDirectoryService(h.repos.Users)
	h.source = inbox.NewSource(h.repos.Inbox)
	h.allocator = sequence.NewAllocator(h.repos.Counters, cfg.Sequence)
	h.ingest = NewIngestionService(IngestionDependencies{
		Source:    h.source,
		Directory: h.directory,
		Tickets:   h.tickets,
		Updates:   h.repos.Updates,
		Allocator: h.allocator,
		Resolver: correlation.NewResolver(
			correlation.DefaultStrategies(cfg.Ingestion.CorrelationHeader, cfg.Ingestion.MatchBody),
			h.repos.Tickets, h.catalog, cfg.Ingestion.ReopenByMail),
		Classifier: correlation.NewClassifier(
			[]string{cfg.Notification.SystemAddress}, cfg.Ingestion.AllowedDomains, cfg.Ingestion.BoilerplateMarkers),
		Guard:         guard,
		Catalog:       h.catalog,
		Notifications: h.scheduler,
		Metrics:       h.metrics,
		Config:        cfg.Ingestion,
		SystemAddress: cfg.Notification.SystemAddress,
		Clock:         h.clock.Now,
	})
	return h
}

// openTicket creates a ticket through the lifecycle service directly.
func (h *harness) openTicket(t *testing.T, requesterEmail, subject string) *domain.Ticket {
	t.Helper()
	requester, err := h.directory.FindOrCreateRequester(h.ctx, requesterEmail)
	require.NoError(t, err)
	code, err := h.allocator.Allocate(h.ctx)
	require.NoError(t, err)
	classification, err := h.catalog.DefaultClassification(domain.OriginWeb)
	require.NoError(t, err)
	ticket, err := h.tickets.Create(h.ctx, CreateTicketInput{
		Code:           code,
		Subject:        subject,
		RequesterID:    requester.ID,
		Classification: classification,
		First:          UpdateInput{Message: subject + " details", AuthorID: requester.ID, Origin: domain.OriginWeb},
		Actor:          domain.UserActor(requester.ID),
	})
	require.NoError(t, err)
	return ticket
}

func (h *harness) enqueue(t *testing.T, msg domain.InboundMessage) {
	t.Helper()
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = h.clock.Now()
	}
	_, _, err := h.source.Enqueue(h.ctx, msg)
	require.NoError(t, err)
}
