package domain

import (
	"net/textproto"
	"time"
)

// InboundMessage is one message observed on the external source. It is
// ephemeral: its effects live in the ticket it creates or updates.
type InboundMessage struct {
	ExternalID  string            `json:"external_id"`
	From        string            `json:"from"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
	Origin      UpdateOrigin      `json:"origin"`
}

// Header returns a header value using case-insensitive name matching.
func (m InboundMessage) Header(name string) string {
	if len(m.Headers) == 0 {
		return ""
	}
	if v, ok := m.Headers[name]; ok {
		return v
	}
	canonical := textproto.CanonicalMIMEHeaderKey(name)
	for k, v := range m.Headers {
		if textproto.CanonicalMIMEHeaderKey(k) == canonical {
			return v
		}
	}
	return ""
}

// InboxEntry is a message queued by the webhook until the pipeline consumes it.
type InboxEntry struct {
	Message    InboundMessage
	ReceivedAt time.Time
	ConsumedAt *time.Time
}
