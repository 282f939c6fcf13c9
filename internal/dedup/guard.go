// Package dedup recognises inbound content that was already recorded on a
// ticket.
package dedup

import (
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

var (
	tagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Candidate is an update about to be appended.
type Candidate struct {
	ExternalMessageID string
	Message           string
	ReceivedAt        time.Time
}

// Guard decides whether a candidate repeats a recorded update.
type Guard struct {
	window    time.Duration
	prefixLen int
}

// NewGuard builds a guard comparing the first prefixLen normalized runes of
// updates recorded within window.
func NewGuard(window time.Duration, prefixLen int) *Guard {
	if prefixLen <= 0 {
		prefixLen = 200
	}
	return &Guard{window: window, prefixLen: prefixLen}
}

// IsDuplicate checks the external id against every update on the ticket,
// then compares content with the most recent update only.
func (g *Guard) IsDuplicate(ticket *domain.Ticket, c Candidate) bool {
	if ticket == nil {
		return false
	}
	if c.ExternalMessageID != "" && ticket.HasExternalMessage(c.ExternalMessageID) {
		return true
	}
	last := ticket.LastUpdate()
	if last == nil || g.window <= 0 {
		return false
	}
	gap := c.ReceivedAt.Sub(last.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > g.window {
		return false
	}
	fp := last.Fingerprint
	if fp == "" {
		fp = g.Fingerprint(last.Message)
	}
	return fp == g.Fingerprint(c.Message)
}

// Fingerprint hashes the normalized prefix of message.
func (g *Guard) Fingerprint(message string) string {
	sum := blake2b.Sum256([]byte(g.prefix(message)))
	return hex.EncodeToString(sum[:16])
}

func (g *Guard) prefix(message string) string {
	runes := []rune(Normalize(message))
	if len(runes) > g.prefixLen {
		runes = runes[:g.prefixLen]
	}
	return string(runes)
}

// Normalize strips HTML markup, collapses whitespace and folds case.
func Normalize(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
