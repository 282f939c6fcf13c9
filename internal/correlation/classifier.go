package correlation

import (
	"strings"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// Classification flags messages that must be acknowledged and dropped.
type Classification struct {
	SelfOriginated   bool
	SenderNotAllowed bool
	Reason           string
}

// Drop reports whether the message must not reach the ticket store.
func (c Classification) Drop() bool {
	return c.SelfOriginated || c.SenderNotAllowed
}

// Classifier detects the system's own mail echoes, auto-replies and senders
// outside the allowed domains.
type Classifier struct {
	systemAddresses map[string]bool
	allowedDomains  []string
	markers         []string
}

// NewClassifier builds a classifier. Domains may be given with or without
// a leading "@"; an empty list allows every sender.
func NewClassifier(systemAddresses, allowedDomains, boilerplateMarkers []string) *Classifier {
	c := &Classifier{systemAddresses: map[string]bool{}}
	for _, addr := range systemAddresses {
		if addr = domain.NormalizeEmail(addr); addr != "" {
			c.systemAddresses[addr] = true
		}
	}
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if !strings.HasPrefix(d, "@") {
			d = "@" + d
		}
		c.allowedDomains = append(c.allowedDomains, d)
	}
	for _, m := range boilerplateMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			c.markers = append(c.markers, m)
		}
	}
	return c
}

// Classify inspects msg without touching storage.
func (c *Classifier) Classify(msg domain.InboundMessage) Classification {
	from := domain.NormalizeEmail(msg.From)
	if c.systemAddresses[from] {
		return Classification{SelfOriginated: true, Reason: "system_sender"}
	}
	if v := strings.ToLower(strings.TrimSpace(msg.Header("Auto-Submitted"))); v != "" && v != "no" {
		return Classification{SelfOriginated: true, Reason: "auto_submitted"}
	}
	if len(c.markers) > 0 {
		content := strings.ToLower(msg.Subject + "\n" + msg.Body)
		for _, m := range c.markers {
			if strings.Contains(content, m) {
				return Classification{SelfOriginated: true, Reason: "boilerplate"}
			}
		}
	}
	if len(c.allowedDomains) > 0 && !c.allowed(from) {
		return Classification{SenderNotAllowed: true, Reason: "sender_domain"}
	}
	return Classification{}
}

func (c *Classifier) allowed(from string) bool {
	for _, d := range c.allowedDomains {
		if strings.HasSuffix(from, d) {
			return true
		}
	}
	return false
}
