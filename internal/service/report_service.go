package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/catalog"
	"github.com/deskflow/ticket-ingest/internal/config"
	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/repository"
	"github.com/deskflow/ticket-ingest/pkg/util/errorutil"
)

// ReportService maintains the daily rollups.
type ReportService struct {
	tickets repository.TicketRepository
	reports repository.ReportRepository
	catalog *catalog.Catalog
	bucket  string
	logger  *zap.Logger
	now     func() time.Time
}

var _ RollupTrigger = (*ReportService)(nil)

// NewReportService constructs the service.
func NewReportService(repos repository.Set, cat *catalog.Catalog, cfg config.ReportConfig, logger *zap.Logger, clock func() time.Time) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	bucket := cfg.ClosedBucket
	if bucket == "" {
		bucket = config.ClosedBucketCreated
	}
	return &ReportService{
		tickets: repos.Tickets,
		reports: repos.Reports,
		catalog: cat,
		bucket:  bucket,
		logger:  logger,
		now:     clock,
	}
}

// RecomputeDay rebuilds the report of the UTC day containing day from the
// live tickets and stores it.
func (s *ReportService) RecomputeDay(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	start := domain.DayStart(day)
	end := start.AddDate(0, 0, 1)

	created, err := s.tickets.ListCreatedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load tickets created on %s: %w", start.Format(dayLayout), err)
	}
	var closed []domain.Ticket
	if s.bucket == config.ClosedBucketClosed {
		if closed, err = s.tickets.ListClosedBetween(ctx, start, end); err != nil {
			return nil, fmt.Errorf("load tickets closed on %s: %w", start.Format(dayLayout), err)
		}
	}

	report := buildDailyReport(start, created, closed, s.bucket, s.pendingStatusID())
	if err := s.reports.Upsert(ctx, report); err != nil {
		return nil, fmt.Errorf("store report %s: %w", start.Format(dayLayout), err)
	}
	return report, nil
}

// GetDay returns the stored report for day, computing it when absent.
func (s *ReportService) GetDay(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	report, err := s.reports.GetByDay(ctx, day)
	if errors.Is(err, repository.ErrNotFound) {
		return s.RecomputeDay(ctx, day)
	}
	return report, err
}

// Range sums stored reports for [from, to]. Averages are weighted by the
// number of tickets each day contributed.
func (s *ReportService) Range(ctx context.Context, from, to time.Time) (*domain.RangeReport, error) {
	from, to = domain.DayStart(from), domain.DayStart(to)
	if to.Before(from) {
		return nil, errorutil.NewValidationError("invalid range", map[string]any{"to": "must not be before from"})
	}
	days, err := s.reports.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return summarize(from, to, days), nil
}

// LastDays summarizes the n days ending today.
func (s *ReportService) LastDays(ctx context.Context, n int) (*domain.RangeReport, error) {
	if n <= 0 {
		n = 7
	}
	today := domain.DayStart(s.now())
	return s.Range(ctx, today.AddDate(0, 0, -(n-1)), today)
}

// Rebuild recomputes every day that has tickets. Under the closure-day
// policy every day from the first ticket until today is recomputed, since
// closures may land on days without creations.
func (s *ReportService) Rebuild(ctx context.Context) (int, error) {
	days, err := s.tickets.CreationDays(ctx)
	if err != nil {
		return 0, fmt.Errorf("list creation days: %w", err)
	}
	if s.bucket == config.ClosedBucketClosed && len(days) > 0 {
		days = contiguousDays(days[0], domain.DayStart(s.now()))
	}
	for i, day := range days {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := s.RecomputeDay(ctx, day); err != nil {
			return i, err
		}
	}
	s.logger.Info("reports rebuilt", zap.Int("days", len(days)))
	return len(days), nil
}

// TicketChanged recomputes the days a ticket contributes to. Errors are
// logged: the ticket mutation has already been stored and the report can
// be rebuilt later.
func (s *ReportService) TicketChanged(ctx context.Context, ticket *domain.Ticket, previousClosedAt *time.Time) {
	for _, day := range s.affectedDays(ticket, previousClosedAt) {
		if _, err := s.RecomputeDay(ctx, day); err != nil {
			s.logger.Error("daily rollup failed",
				zap.String("ticket_code", ticket.Code),
				zap.String("day", day.Format(dayLayout)),
				zap.Error(err))
		}
	}
}

func (s *ReportService) affectedDays(ticket *domain.Ticket, previousClosedAt *time.Time) []time.Time {
	days := []time.Time{domain.DayStart(ticket.CreatedAt)}
	if s.bucket != config.ClosedBucketClosed {
		return days
	}
	for _, at := range []*time.Time{ticket.ClosedAt, previousClosedAt} {
		if at == nil {
			continue
		}
		day := domain.DayStart(*at)
		dup := false
		for _, d := range days {
			if d.Equal(day) {
				dup = true
				break
			}
		}
		if !dup {
			days = append(days, day)
		}
	}
	return days
}

func (s *ReportService) pendingStatusID() string {
	if s.catalog == nil {
		return ""
	}
	id, err := s.catalog.StatusID(domain.StatusPending)
	if err != nil {
		return ""
	}
	return id
}

const dayLayout = "2006-01-02"

// buildDailyReport is a pure function of its inputs. closed is only
// consulted under the closure-day policy.
func buildDailyReport(day time.Time, created, closed []domain.Ticket, bucket, pendingStatusID string) *domain.DailyReport {
	report := &domain.DailyReport{Day: day, TotalTickets: len(created)}

	byStatus := map[string]int{}
	byDepartment := map[string]int{}
	byPriority := map[string]int{}
	byImpact := map[string]int{}
	byType := map[string]int{}
	bySource := map[string]int{}
	byAssignee := map[string]int{}

	var firstResponse hoursAverage
	for i := range created {
		t := &created[i]
		count(byStatus, t.StatusID)
		count(byDepartment, t.DepartmentID)
		count(byPriority, t.PriorityID)
		count(byImpact, t.ImpactID)
		count(byType, t.TypeID)
		count(bySource, t.SourceID)
		if t.AssigneeID != nil {
			count(byAssignee, *t.AssigneeID)
		} else {
			report.TicketsUnassigned++
		}
		if t.ClosedAt == nil {
			report.TicketsOpen++
		}
		if pendingStatusID != "" && t.StatusID == pendingStatusID {
			report.TicketsPending++
		}
		if at := firstResponseAt(t); at != nil {
			firstResponse.add(at.Sub(t.CreatedAt))
		}
	}

	resolved := created
	if bucket == config.ClosedBucketClosed {
		resolved = closed
	}
	var resolution hoursAverage
	for i := range resolved {
		t := &resolved[i]
		if t.ClosedAt == nil {
			continue
		}
		report.TicketsClosed++
		resolution.add(t.ClosedAt.Sub(t.CreatedAt))
	}

	report.ByStatus = sortedCounts(byStatus)
	report.ByDepartment = sortedCounts(byDepartment)
	report.ByPriority = sortedCounts(byPriority)
	report.ByImpact = sortedCounts(byImpact)
	report.ByType = sortedCounts(byType)
	report.BySource = sortedCounts(bySource)
	report.ByAssignee = sortedCounts(byAssignee)
	report.AvgResolutionHours = resolution.value()
	report.FirstResponseHours = firstResponse.value()
	return report
}

// firstResponseAt is the timestamp of the earliest update on t, or nil
// when the ticket has none.
func firstResponseAt(t *domain.Ticket) *time.Time {
	var first *time.Time
	for i := range t.Updates {
		if first == nil || t.Updates[i].CreatedAt.Before(*first) {
			first = &t.Updates[i].CreatedAt
		}
	}
	return first
}

func summarize(from, to time.Time, days []domain.DailyReport) *domain.RangeReport {
	out := &domain.RangeReport{From: from, To: to, Days: days}
	if out.Days == nil {
		out.Days = []domain.DailyReport{}
	}
	var resolutionSum, responseSum float64
	var resolutionWeight, responseWeight int
	for _, d := range days {
		out.TotalTickets += d.TotalTickets
		out.TicketsClosed += d.TicketsClosed
		out.TicketsOpen += d.TicketsOpen
		out.TicketsPending += d.TicketsPending
		out.TicketsUnassigned += d.TicketsUnassigned
		if d.TicketsClosed > 0 {
			resolutionSum += d.AvgResolutionHours * float64(d.TicketsClosed)
			resolutionWeight += d.TicketsClosed
		}
		if d.TotalTickets > 0 {
			responseSum += d.FirstResponseHours * float64(d.TotalTickets)
			responseWeight += d.TotalTickets
		}
	}
	if resolutionWeight > 0 {
		out.AvgResolutionHours = resolutionSum / float64(resolutionWeight)
	}
	if responseWeight > 0 {
		out.FirstResponseHours = responseSum / float64(responseWeight)
	}
	return out
}

func contiguousDays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func count(m map[string]int, key string) {
	if key != "" {
		m[key]++
	}
}

func sortedCounts(m map[string]int) []domain.CountByKey {
	out := make([]domain.CountByKey, 0, len(m))
	for k, v := range m {
		out = append(out, domain.CountByKey{Key: k, Total: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

type hoursAverage struct {
	total time.Duration
	n     int
}

func (h *hoursAverage) add(d time.Duration) {
	h.total += d
	h.n++
}

func (h hoursAverage) value() float64 {
	if h.n == 0 {
		return 0
	}
	return h.total.Hours() / float64(h.n)
}
