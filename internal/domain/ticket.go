package domain

import "time"

// Ticket is the aggregate for support requests.
//
// Classification fields hold opaque catalog identifiers. ClosedAt and
// ClosedBy are either both set or both nil.
type Ticket struct {
	ID           string
	Code         string
	Subject      string
	Description  string
	StatusID     string
	PriorityID   string
	ImpactID     string
	DepartmentID string
	TypeID       string
	SourceID     string
	RequesterID  string
	AssigneeID   *string
	ClosedAt     *time.Time
	ClosedBy     *string
	IsDeleted    bool
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Updates      []TicketUpdate
}

// LastUpdate returns the most recently appended update, or nil.
func (t *Ticket) LastUpdate() *TicketUpdate {
	if len(t.Updates) == 0 {
		return nil
	}
	return &t.Updates[len(t.Updates)-1]
}

// FirstUpdate returns the update that opened the ticket, or nil.
func (t *Ticket) FirstUpdate() *TicketUpdate {
	if len(t.Updates) == 0 {
		return nil
	}
	return &t.Updates[0]
}

// HasExternalMessage reports whether any update carries the given external id.
func (t *Ticket) HasExternalMessage(externalID string) bool {
	if externalID == "" {
		return false
	}
	for i := range t.Updates {
		if id := t.Updates[i].ExternalMessageID; id != nil && *id == externalID {
			return true
		}
	}
	return false
}

// MarkClosed records closure bookkeeping. A ticket that is already closed
// keeps its original closure.
func (t *Ticket) MarkClosed(actorID string, at time.Time) {
	if t.ClosedAt != nil && t.ClosedBy != nil {
		return
	}
	closedAt := at
	closedBy := actorID
	t.ClosedAt = &closedAt
	t.ClosedBy = &closedBy
}

// ClearClosure removes closure bookkeeping on reopen.
func (t *Ticket) ClearClosure() {
	t.ClosedAt = nil
	t.ClosedBy = nil
}

// TicketFilter captures listing parameters.
type TicketFilter struct {
	RequesterID    *string
	AssigneeID     *string
	DepartmentID   *string
	StatusIDs      []string
	SearchTerm     *string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	IncludeDeleted bool
	Limit          int
	Offset         int
}
