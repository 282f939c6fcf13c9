package dto

import (
	"time"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// InboundEmailRequest is the webhook payload of a received email.
type InboundEmailRequest struct {
	ExternalID  string              `json:"external_id" validate:"max=255"`
	From        string              `json:"from" validate:"required"`
	Subject     string              `json:"subject" validate:"max=500"`
	Body        string              `json:"body"`
	Headers     map[string]string   `json:"headers"`
	Attachments []AttachmentRequest `json:"attachments" validate:"dive"`
	ReceivedAt  *time.Time          `json:"received_at"`
}

// Message converts the payload to an inbound message.
func (r InboundEmailRequest) Message() domain.InboundMessage {
	msg := domain.InboundMessage{
		ExternalID:  r.ExternalID,
		From:        r.From,
		Subject:     r.Subject,
		Body:        r.Body,
		Headers:     r.Headers,
		Attachments: Attachments(r.Attachments),
		Origin:      domain.OriginEmail,
	}
	if r.ReceivedAt != nil {
		msg.ReceivedAt = r.ReceivedAt.UTC()
	}
	return msg
}

// InboundAccepted acknowledges a webhook delivery.
type InboundAccepted struct {
	ExternalID string `json:"external_id"`
	Queued     bool   `json:"queued"`
}

// IngestionRunRequest tunes a manual poll.
type IngestionRunRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=500"`
}
