package domain

import "time"

// CountByKey is one bucket of a dimension breakdown.
type CountByKey struct {
	Key   string `json:"key"`
	Total int    `json:"total"`
}

// DailyReport is the derived aggregate for one UTC day.
type DailyReport struct {
	Day                time.Time    `json:"day"`
	TotalTickets       int          `json:"total_tickets"`
	TicketsClosed      int          `json:"tickets_closed"`
	TicketsOpen        int          `json:"tickets_open"`
	TicketsPending     int          `json:"tickets_pending"`
	TicketsUnassigned  int          `json:"tickets_unassigned"`
	ByStatus           []CountByKey `json:"by_status"`
	ByDepartment       []CountByKey `json:"by_department"`
	ByPriority         []CountByKey `json:"by_priority"`
	ByImpact           []CountByKey `json:"by_impact"`
	ByType             []CountByKey `json:"by_type"`
	BySource           []CountByKey `json:"by_source"`
	ByAssignee         []CountByKey `json:"by_assignee"`
	AvgResolutionHours float64      `json:"avg_resolution_hours"`
	FirstResponseHours float64      `json:"first_response_hours"`
}

// RangeReport summarizes a span of daily reports.
type RangeReport struct {
	From               time.Time     `json:"from"`
	To                 time.Time     `json:"to"`
	TotalTickets       int           `json:"total_tickets"`
	TicketsClosed      int           `json:"tickets_closed"`
	TicketsOpen        int           `json:"tickets_open"`
	TicketsPending     int           `json:"tickets_pending"`
	TicketsUnassigned  int           `json:"tickets_unassigned"`
	AvgResolutionHours float64       `json:"avg_resolution_hours"`
	FirstResponseHours float64       `json:"first_response_hours"`
	Days               []DailyReport `json:"days"`
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
