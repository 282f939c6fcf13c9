// Package memory implements the repository contracts in process memory.
// It backs STORAGE_DRIVER=memory and serves as the fake in service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/repository"
)

// Store holds every aggregate behind one mutex.
type Store struct {
	mu       sync.Mutex
	counters map[string]int64
	tickets  map[string]*domain.Ticket
	codes    map[string]string
	history  map[string][]domain.TicketHistory
	users    map[string]*domain.User
	emails   map[string]string
	reports  map[string]domain.DailyReport
	inbox    map[string]*domain.InboxEntry
	order    []string

	// FailCounter, when set, is returned by counter increments.
	FailCounter error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		counters: map[string]int64{},
		tickets:  map[string]*domain.Ticket{},
		codes:    map[string]string{},
		history:  map[string][]domain.TicketHistory{},
		users:    map[string]*domain.User{},
		emails:   map[string]string{},
		reports:  map[string]domain.DailyReport{},
		inbox:    map[string]*domain.InboxEntry{},
	}
}

// Set exposes the store through the repository contracts.
func (s *Store) Set() repository.Set {
	return repository.Set{
		Counters: counterRepo{s},
		Tickets:  ticketRepo{s},
		Updates:  updateRepo{s},
		History:  historyRepo{s},
		Users:    userRepo{s},
		Reports:  reportRepo{s},
		Inbox:    inboxRepo{s},
	}
}

var (
	_ repository.CounterRepository       = counterRepo{}
	_ repository.TicketRepository        = ticketRepo{}
	_ repository.TicketUpdateRepository  = updateRepo{}
	_ repository.TicketHistoryRepository = historyRepo{}
	_ repository.UserRepository          = userRepo{}
	_ repository.ReportRepository        = reportRepo{}
	_ repository.InboundRepository       = inboxRepo{}
)

type counterRepo struct{ s *Store }

func (r counterRepo) Increment(ctx context.Context, name string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailCounter != nil {
		return 0, r.s.FailCounter
	}
	r.s.counters[name] += delta
	return r.s.counters[name], nil
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ticket.Updates) == 0 {
		return errFirstUpdate
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.codes[ticket.Code]; taken {
		return errCodeTaken
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	first := &ticket.Updates[0]
	if first.ExternalMessageID != nil && r.s.opensTicket(*first.ExternalMessageID) {
		return repository.ErrDuplicateUpdate
	}
	if first.ID == "" {
		first.ID = uuid.NewString()
	}
	first.TicketID = ticket.ID
	first.Seq = 1
	ticket.Updates = ticket.Updates[:1]
	r.s.tickets[ticket.ID] = cloneTicket(ticket)
	r.s.codes[ticket.Code] = ticket.ID
	return nil
}

// opensTicket reports whether externalID is the opening update of a stored
// ticket. Callers hold s.mu.
func (s *Store) opensTicket(externalID string) bool {
	for _, t := range s.tickets {
		if len(t.Updates) == 0 || t.Updates[0].ExternalMessageID == nil {
			continue
		}
		if *t.Updates[0].ExternalMessageID == externalID {
			return true
		}
	}
	return false
}

func (r ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tickets[ticket.ID]
	if !ok || stored.IsDeleted {
		return repository.ErrNotFound
	}
	stored.Subject = ticket.Subject
	stored.Description = ticket.Description
	stored.StatusID = ticket.StatusID
	stored.PriorityID = ticket.PriorityID
	stored.ImpactID = ticket.ImpactID
	stored.DepartmentID = ticket.DepartmentID
	stored.TypeID = ticket.TypeID
	stored.SourceID = ticket.SourceID
	stored.AssigneeID = cloneString(ticket.AssigneeID)
	stored.ClosedAt = cloneTime(ticket.ClosedAt)
	stored.ClosedBy = cloneString(ticket.ClosedBy)
	stored.UpdatedAt = ticket.UpdatedAt
	return nil
}

func (r ticketRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tickets[id]
	if !ok || stored.IsDeleted {
		return repository.ErrNotFound
	}
	stored.IsDeleted = true
	stored.DeletedAt = &at
	stored.UpdatedAt = at
	return nil
}

func (r ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTicket(stored), nil
}

func (r ticketRepo) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	id, ok := r.s.codes[code]
	r.s.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r ticketRepo) List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	statuses := map[string]bool{}
	for _, id := range filter.StatusIDs {
		statuses[id] = true
	}
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		switch {
		case t.IsDeleted && !filter.IncludeDeleted:
		case filter.RequesterID != nil && t.RequesterID != *filter.RequesterID:
		case filter.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *filter.AssigneeID):
		case filter.DepartmentID != nil && t.DepartmentID != *filter.DepartmentID:
		case len(statuses) > 0 && !statuses[t.StatusID]:
		case filter.CreatedFrom != nil && t.CreatedAt.Before(*filter.CreatedFrom):
		case filter.CreatedTo != nil && !t.CreatedAt.Before(*filter.CreatedTo):
		case filter.SearchTerm != nil && !matchesSearch(t, *filter.SearchTerm):
		default:
			c := cloneTicket(t)
			c.Updates = nil
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Code > out[j].Code
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r ticketRepo) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error) {
	return r.selectLive(ctx, func(t *domain.Ticket) *time.Time { return &t.CreatedAt }, from, to)
}

func (r ticketRepo) ListClosedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error) {
	return r.selectLive(ctx, func(t *domain.Ticket) *time.Time { return t.ClosedAt }, from, to)
}

func (r ticketRepo) selectLive(ctx context.Context, key func(*domain.Ticket) *time.Time, from, to time.Time) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		at := key(t)
		if t.IsDeleted || at == nil || at.Before(from) || !at.Before(to) {
			continue
		}
		out = append(out, *cloneTicket(t))
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := key(&out[i]), key(&out[j])
		if ai.Equal(*aj) {
			return out[i].Code < out[j].Code
		}
		return ai.Before(*aj)
	})
	return out, nil
}

func (r ticketRepo) CreationDays(ctx context.Context) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[time.Time]bool{}
	var days []time.Time
	for _, t := range r.s.tickets {
		if t.IsDeleted {
			continue
		}
		day := domain.DayStart(t.CreatedAt)
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

type updateRepo struct{ s *Store }

func (r updateRepo) Append(ctx context.Context, update *domain.TicketUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tickets[update.TicketID]
	if !ok || stored.IsDeleted {
		return repository.ErrNotFound
	}
	if update.ExternalMessageID != nil && stored.HasExternalMessage(*update.ExternalMessageID) {
		return repository.ErrDuplicateUpdate
	}
	if last := stored.LastUpdate(); last != nil && update.CreatedAt.Before(last.CreatedAt) {
		update.CreatedAt = last.CreatedAt
	}
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	update.Seq = len(stored.Updates) + 1
	stored.Updates = append(stored.Updates, cloneUpdate(*update))
	if update.CreatedAt.After(stored.UpdatedAt) {
		stored.UpdatedAt = update.CreatedAt
	}
	return nil
}

func (r updateRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tickets[ticketID]
	if !ok {
		return nil, nil
	}
	return cloneTicket(stored).Updates, nil
}

func (r updateRepo) FindByExternalID(ctx context.Context, externalID string) (*domain.TicketUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *domain.TicketUpdate
	for _, t := range r.s.tickets {
		for i := range t.Updates {
			u := &t.Updates[i]
			if u.ExternalMessageID == nil || *u.ExternalMessageID != externalID {
				continue
			}
			if found == nil || u.CreatedAt.Before(found.CreatedAt) {
				found = u
			}
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	c := cloneUpdate(*found)
	return &c, nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	r.s.history[history.TicketID] = append(r.s.history[history.TicketID], *history)
	return nil
}

func (r historyRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.TicketHistory(nil), r.s.history[ticketID]...), nil
}

type userRepo struct{ s *Store }

func (r userRepo) FindOrCreateByEmail(ctx context.Context, email, name string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = domain.NormalizeEmail(email)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.emails[email]; ok {
		u := *r.s.users[id]
		return &u, nil
	}
	now := time.Now().UTC()
	u := &domain.User{ID: uuid.NewString(), Name: name, Email: email, CreatedAt: now, UpdatedAt: now}
	r.s.users[u.ID] = u
	r.s.emails[email] = u.ID
	out := *u
	return &out, nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	id, ok := r.s.emails[domain.NormalizeEmail(email)]
	r.s.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

type reportRepo struct{ s *Store }

func (r reportRepo) Upsert(ctx context.Context, report *domain.DailyReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reports[dayKey(report.Day)] = *report
	return nil
}

func (r reportRepo) GetByDay(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.reports[dayKey(day)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &report, nil
}

func (r reportRepo) ListRange(ctx context.Context, from, to time.Time) ([]domain.DailyReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lo, hi := dayKey(from), dayKey(to)
	var out []domain.DailyReport
	for key, report := range r.s.reports {
		if key >= lo && key <= hi {
			out = append(out, report)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

type inboxRepo struct{ s *Store }

func (r inboxRepo) Enqueue(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.inbox[msg.ExternalID]; ok {
		return false, nil
	}
	r.s.inbox[msg.ExternalID] = &domain.InboxEntry{Message: msg, ReceivedAt: msg.ReceivedAt}
	r.s.order = append(r.s.order, msg.ExternalID)
	return true, nil
}

func (r inboxRepo) FetchUnconsumed(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.InboundMessage
	for _, id := range r.s.order {
		entry := r.s.inbox[id]
		if entry.ConsumedAt != nil {
			continue
		}
		out = append(out, entry.Message)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r inboxRepo) MarkConsumed(ctx context.Context, externalID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry, ok := r.s.inbox[externalID]
	if !ok {
		return repository.ErrNotFound
	}
	if entry.ConsumedAt == nil {
		entry.ConsumedAt = &at
	}
	return nil
}

func dayKey(t time.Time) string {
	return domain.DayStart(t).Format("2006-01-02")
}

func matchesSearch(t *domain.Ticket, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	return term == "" ||
		strings.Contains(strings.ToLower(t.Subject), term) ||
		strings.Contains(strings.ToLower(t.Code), term)
}
