package domain

import "time"

// UpdateOrigin tags where an update came from.
type UpdateOrigin string

const (
	OriginEmail  UpdateOrigin = "email"
	OriginWeb    UpdateOrigin = "web"
	OriginSystem UpdateOrigin = "system"
)

// Valid reports whether the origin is one of the known tags.
func (o UpdateOrigin) Valid() bool {
	switch o {
	case OriginEmail, OriginWeb, OriginSystem:
		return true
	}
	return false
}

// TicketUpdate is one append-only entry in a ticket's thread.
type TicketUpdate struct {
	ID                string
	TicketID          string
	Seq               int
	Message           string
	AuthorID          string
	Attachments       []Attachment
	Origin            UpdateOrigin
	ExternalMessageID *string
	Fingerprint       string
	CreatedAt         time.Time
}

// Attachment stores metadata only; content lives with the file store.
type Attachment struct {
	Name        string `json:"name"`
	FileName    string `json:"file_name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}
