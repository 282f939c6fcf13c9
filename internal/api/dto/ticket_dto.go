package dto

import (
	"time"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// SubmitTicketRequest is a web form submission. It goes through the same
// pipeline as email.
type SubmitTicketRequest struct {
	ExternalID  string              `json:"external_id" validate:"max=255"`
	From        string              `json:"from" validate:"required,email"`
	Subject     string              `json:"subject" validate:"required,max=500"`
	Body        string              `json:"body" validate:"required"`
	Attachments []AttachmentRequest `json:"attachments" validate:"dive"`
}

// Message converts the submission to an inbound message.
func (r SubmitTicketRequest) Message() domain.InboundMessage {
	return domain.InboundMessage{
		ExternalID:  r.ExternalID,
		From:        r.From,
		Subject:     r.Subject,
		Body:        r.Body,
		Attachments: Attachments(r.Attachments),
		Origin:      domain.OriginWeb,
	}
}

// AddUpdateRequest appends to a ticket thread.
type AddUpdateRequest struct {
	Message     string              `json:"message"`
	Attachments []AttachmentRequest `json:"attachments" validate:"dive"`
}

// TransitionRequest moves a ticket to another status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=open pending closed"`
}

// PatchTicketRequest changes scalar fields. Omitted fields are untouched.
type PatchTicketRequest struct {
	Subject       *string `json:"subject" validate:"omitempty,max=500"`
	Description   *string `json:"description"`
	AssigneeID    *string `json:"assignee_id"`
	ClearAssignee bool    `json:"clear_assignee"`
	PriorityID    *string `json:"priority_id"`
	ImpactID      *string `json:"impact_id"`
	DepartmentID  *string `json:"department_id"`
	TypeID        *string `json:"type_id"`
	SourceID      *string `json:"source_id"`
}

// AttachmentRequest describes attachment metadata.
type AttachmentRequest struct {
	Name        string `json:"name"`
	FileName    string `json:"file_name" validate:"required"`
	URL         string `json:"url" validate:"omitempty,url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size" validate:"gte=0"`
}

// Attachments converts request attachments to domain metadata.
func Attachments(in []AttachmentRequest) []domain.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Attachment{
			Name:        a.Name,
			FileName:    a.FileName,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return out
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID           string                 `json:"id"`
	Code         string                 `json:"code"`
	Subject      string                 `json:"subject"`
	Description  string                 `json:"description"`
	StatusID     string                 `json:"status_id"`
	Status       string                 `json:"status"`
	PriorityID   string                 `json:"priority_id"`
	ImpactID     string                 `json:"impact_id"`
	DepartmentID string                 `json:"department_id"`
	TypeID       string                 `json:"type_id"`
	SourceID     string                 `json:"source_id"`
	RequesterID  string                 `json:"requester_id"`
	AssigneeID   *string                `json:"assignee_id"`
	ClosedAt     *time.Time             `json:"closed_at"`
	ClosedBy     *string                `json:"closed_by"`
	IsDeleted    bool                   `json:"is_deleted"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Updates      []TicketUpdateResponse `json:"updates,omitempty"`
}

// TicketUpdateResponse represents one thread entry.
type TicketUpdateResponse struct {
	ID                string              `json:"id"`
	Seq               int                 `json:"seq"`
	Message           string              `json:"message"`
	AuthorID          string              `json:"author_id"`
	Origin            domain.UpdateOrigin `json:"origin"`
	ExternalMessageID *string             `json:"external_message_id,omitempty"`
	Attachments       []domain.Attachment `json:"attachments"`
	CreatedAt         time.Time           `json:"created_at"`
}

// TicketHistoryResponse represents an audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ActorType   domain.ActorType        `json:"actor_type"`
	ChangedByID *string                 `json:"changed_by_id"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewTicketResponse maps a ticket. status is the structural value of its
// status id.
func NewTicketResponse(t *domain.Ticket, status domain.StatusValue) TicketResponse {
	resp := TicketResponse{
		ID:           t.ID,
		Code:         t.Code,
		Subject:      t.Subject,
		Description:  t.Description,
		StatusID:     t.StatusID,
		Status:       string(status),
		PriorityID:   t.PriorityID,
		ImpactID:     t.ImpactID,
		DepartmentID: t.DepartmentID,
		TypeID:       t.TypeID,
		SourceID:     t.SourceID,
		RequesterID:  t.RequesterID,
		AssigneeID:   t.AssigneeID,
		ClosedAt:     t.ClosedAt,
		ClosedBy:     t.ClosedBy,
		IsDeleted:    t.IsDeleted,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	for i := range t.Updates {
		resp.Updates = append(resp.Updates, NewTicketUpdateResponse(&t.Updates[i]))
	}
	return resp
}

// NewTicketUpdateResponse maps an update.
func NewTicketUpdateResponse(u *domain.TicketUpdate) TicketUpdateResponse {
	attachments := u.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	return TicketUpdateResponse{
		ID:                u.ID,
		Seq:               u.Seq,
		Message:           u.Message,
		AuthorID:          u.AuthorID,
		Origin:            u.Origin,
		ExternalMessageID: u.ExternalMessageID,
		Attachments:       attachments,
		CreatedAt:         u.CreatedAt,
	}
}

// NewHistoryResponses maps audit entries.
func NewHistoryResponses(entries []domain.TicketHistory) []TicketHistoryResponse {
	resp := make([]TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, TicketHistoryResponse{
			ID:          entry.ID,
			ChangeType:  entry.ChangeType,
			ActorType:   entry.ActorType,
			ChangedByID: entry.ChangedByID,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}
