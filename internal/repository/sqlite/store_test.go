package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/persistence"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

func newTestSet(t *testing.T) repository.Set {
	t.Helper()
	db, err := persistence.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return NewSet(db.DB)
}

func seedTicket(t *testing.T, set repository.Set, code string, createdAt time.Time) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	user, err := set.Users.FindOrCreateByEmail(ctx, "a@x.com", "a")
	require.NoError(t, err)
	ticket := &domain.Ticket{
		Code:         code,
		Subject:      "Printer broken",
		StatusID:     "status-open",
		PriorityID:   "priority-media",
		ImpactID:     "impact-persona",
		DepartmentID: "department-soporte_ti",
		TypeID:       "type-incidente",
		SourceID:     "source-email",
		RequesterID:  user.ID,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		Updates: []domain.TicketUpdate{{
			Message:   "help",
			AuthorID:  user.ID,
			Origin:    domain.OriginEmail,
			CreatedAt: createdAt,
		}},
	}
	require.NoError(t, set.Tickets.Create(ctx, ticket))
	return ticket
}

func TestCounterIncrementIsAtomic(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := set.Counters.Increment(ctx, "tickets", 1000)
			assert.NoError(t, err)
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int64]bool{}
	for v := range results {
		assert.False(t, seen[v], "value %d returned twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, 20)
	assert.True(t, seen[20000])
}

func TestTicketCreateAndGet(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ticket := seedTicket(t, set, "TCK-0001", created)

	byCode, err := set.Tickets.GetByCode(ctx, "TCK-0001")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, byCode.ID)
	require.Len(t, byCode.Updates, 1)
	assert.Equal(t, 1, byCode.Updates[0].Seq)
	assert.True(t, created.Equal(byCode.CreatedAt))
	assert.Nil(t, byCode.ClosedAt)

	_, err = set.Tickets.GetByCode(ctx, "TCK-9999")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAppendAssignsSeqAndClampsTime(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ticket := seedTicket(t, set, "TCK-0001", created)

	earlier := &domain.TicketUpdate{
		TicketID:  ticket.ID,
		Message:   "clock skew",
		AuthorID:  ticket.RequesterID,
		Origin:    domain.OriginEmail,
		CreatedAt: created.Add(-time.Hour),
	}
	require.NoError(t, set.Updates.Append(ctx, earlier))
	assert.Equal(t, 2, earlier.Seq)
	assert.True(t, earlier.CreatedAt.Equal(created))

	updates, err := set.Updates.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.False(t, updates[1].CreatedAt.Before(updates[0].CreatedAt))
}

func TestAppendRejectsDuplicateExternalID(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	ticket := seedTicket(t, set, "TCK-0001", time.Now().UTC())

	ext := "<msg-1@mail>"
	first := &domain.TicketUpdate{TicketID: ticket.ID, Message: "one", AuthorID: "u", Origin: domain.OriginEmail, ExternalMessageID: &ext, CreatedAt: time.Now().UTC()}
	second := &domain.TicketUpdate{TicketID: ticket.ID, Message: "one", AuthorID: "u", Origin: domain.OriginEmail, ExternalMessageID: &ext, CreatedAt: time.Now().UTC()}

	require.NoError(t, set.Updates.Append(ctx, first))
	assert.ErrorIs(t, set.Updates.Append(ctx, second), repository.ErrDuplicateUpdate)

	updates, err := set.Updates.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, updates, 2)
}

func TestOpeningExternalIDIsUnique(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	now := time.Now().UTC()
	user, err := set.Users.FindOrCreateByEmail(ctx, "a@x.com", "a")
	require.NoError(t, err)

	ext := "<open-1@mail>"
	mk := func(code string) *domain.Ticket {
		return &domain.Ticket{
			Code: code, Subject: "Printer broken", StatusID: "status-open", RequesterID: user.ID,
			CreatedAt: now, UpdatedAt: now,
			Updates: []domain.TicketUpdate{{
				Message: "help", AuthorID: user.ID, Origin: domain.OriginEmail, ExternalMessageID: &ext, CreatedAt: now,
			}},
		}
	}
	require.NoError(t, set.Tickets.Create(ctx, mk("TCK-0001")))
	assert.ErrorIs(t, set.Tickets.Create(ctx, mk("TCK-0002")), repository.ErrDuplicateUpdate)
	_, err = set.Tickets.GetByCode(ctx, "TCK-0002")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// Later updates may still carry an id that opened another ticket.
	other := seedTicket(t, set, "TCK-0003", now)
	require.NoError(t, set.Updates.Append(ctx, &domain.TicketUpdate{
		TicketID: other.ID, Message: "fwd", AuthorID: user.ID, Origin: domain.OriginEmail, ExternalMessageID: &ext, CreatedAt: now,
	}))
}

func TestConcurrentAppendsKeepEveryEntry(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	ticket := seedTicket(t, set, "TCK-0001", time.Now().UTC())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := set.Updates.Append(ctx, &domain.TicketUpdate{
				TicketID:  ticket.ID,
				Message:   fmt.Sprintf("update %d", i),
				AuthorID:  "u",
				Origin:    domain.OriginWeb,
				CreatedAt: time.Now().UTC(),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	updates, err := set.Updates.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, updates, 11)
	for i, u := range updates {
		assert.Equal(t, i+1, u.Seq)
	}
}

func TestSoftDeleteBlocksMutationButStaysReadable(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	ticket := seedTicket(t, set, "TCK-0001", time.Now().UTC())

	require.NoError(t, set.Tickets.SoftDelete(ctx, ticket.ID, time.Now().UTC()))
	assert.ErrorIs(t, set.Tickets.SoftDelete(ctx, ticket.ID, time.Now().UTC()), repository.ErrNotFound)
	assert.ErrorIs(t, set.Tickets.Update(ctx, ticket), repository.ErrNotFound)
	assert.ErrorIs(t, set.Updates.Append(ctx, &domain.TicketUpdate{TicketID: ticket.ID, Message: "x", AuthorID: "u", Origin: domain.OriginWeb, CreatedAt: time.Now().UTC()}), repository.ErrNotFound)

	got, err := set.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.NotNil(t, got.DeletedAt)

	live, err := set.Tickets.List(ctx, domain.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestListCreatedAndClosedBetween(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a := seedTicket(t, set, "TCK-0001", day.Add(2*time.Hour))
	seedTicket(t, set, "TCK-0002", day.Add(26*time.Hour))

	closedAt := day.Add(30 * time.Hour)
	closedBy := "agent"
	a.ClosedAt, a.ClosedBy, a.UpdatedAt = &closedAt, &closedBy, closedAt
	require.NoError(t, set.Tickets.Update(ctx, a))

	created, err := set.Tickets.ListCreatedBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "TCK-0001", created[0].Code)
	assert.Len(t, created[0].Updates, 1)

	closed, err := set.Tickets.ListClosedBetween(ctx, day.Add(24*time.Hour), day.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "TCK-0001", closed[0].Code)

	days, err := set.Tickets.CreationDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day, day.Add(24 * time.Hour)}, days)
}

func TestUserFindOrCreateIsIdempotent(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()

	first, err := set.Users.FindOrCreateByEmail(ctx, "A@X.com", "a")
	require.NoError(t, err)
	second, err := set.Users.FindOrCreateByEmail(ctx, "a@x.com", "other")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "a", second.Name)
	assert.Equal(t, "a@x.com", second.Email)
}

func TestReportUpsertReplacesDay(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, set.Reports.Upsert(ctx, &domain.DailyReport{Day: day, TotalTickets: 1}))
	require.NoError(t, set.Reports.Upsert(ctx, &domain.DailyReport{Day: day, TotalTickets: 3}))

	got, err := set.Reports.GetByDay(ctx, day.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalTickets)

	all, err := set.Reports.ListRange(ctx, day, day)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInboxEnqueueFetchConsume(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	msg := domain.InboundMessage{ExternalID: "m1", From: "a@x.com", Subject: "hi", ReceivedAt: time.Now().UTC(), Origin: domain.OriginEmail}

	inserted, err := set.Inbox.Enqueue(ctx, msg)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = set.Inbox.Enqueue(ctx, msg)
	require.NoError(t, err)
	assert.False(t, inserted)

	pending, err := set.Inbox.FetchUnconsumed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a@x.com", pending[0].From)

	require.NoError(t, set.Inbox.MarkConsumed(ctx, "m1", time.Now().UTC()))
	pending, err = set.Inbox.FetchUnconsumed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.ErrorIs(t, set.Inbox.MarkConsumed(ctx, "missing", time.Now().UTC()), repository.ErrNotFound)
}

func TestIsTransientErr(t *testing.T) {
	assert.True(t, isTransientErr(fmt.Errorf("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isTransientErr(fmt.Errorf("UNIQUE constraint failed")))
	assert.False(t, isTransientErr(nil))
}

func TestRetryOnContentionRetriesOnlyTransientErrors(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := retryOnContention(ctx, func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retryOnContention(ctx, func() error {
		calls++
		return fmt.Errorf("UNIQUE constraint failed: counters.name")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFindUpdateByExternalID(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()
	ticket := seedTicket(t, set, "TCK-0001", time.Now().UTC())

	_, err := set.Updates.FindByExternalID(ctx, "<m1@mail>")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	ext := "<m1@mail>"
	require.NoError(t, set.Updates.Append(ctx, &domain.TicketUpdate{
		TicketID: ticket.ID, Message: "reply", Origin: domain.OriginEmail,
		ExternalMessageID: &ext, CreatedAt: time.Now().UTC(),
	}))

	found, err := set.Updates.FindByExternalID(ctx, ext)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, found.TicketID)
	assert.Equal(t, 2, found.Seq)
}
