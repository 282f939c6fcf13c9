package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCreated        TicketChangeType = "CREATED"
	ChangeTypeStatus         TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee       TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority       TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeDepartment     TicketChangeType = "DEPARTMENT_CHANGE"
	ChangeTypeClassification TicketChangeType = "CLASSIFICATION_CHANGE"
	ChangeTypeContent        TicketChangeType = "CONTENT_CHANGE"
	ChangeTypeDeleted        TicketChangeType = "DELETED"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          string
	TicketID    string
	ActorType   ActorType
	ChangedByID *string
	ChangeType  TicketChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}
