package correlation

import (
	"regexp"
	"strings"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// CodePattern matches ticket codes such as TCK-0001 or TCK-12345.
var CodePattern = regexp.MustCompile(`TCK-\d{4,}`)

// Strategy extracts a candidate ticket code from a message.
type Strategy interface {
	Name() string
	Match(msg domain.InboundMessage) (string, bool)
}

// HeaderStrategy reads the code stamped by the system's own outbound mail.
type HeaderStrategy struct {
	Header string
}

func (s HeaderStrategy) Name() string { return "header" }

func (s HeaderStrategy) Match(msg domain.InboundMessage) (string, bool) {
	value := strings.TrimSpace(msg.Header(s.Header))
	if value == "" {
		return "", false
	}
	if code := CodePattern.FindString(value); code != "" {
		return code, true
	}
	return "", false
}

// SubjectStrategy finds a code anywhere in the subject line.
type SubjectStrategy struct{}

func (SubjectStrategy) Name() string { return "subject" }

func (SubjectStrategy) Match(msg domain.InboundMessage) (string, bool) {
	return findCode(msg.Subject)
}

// BodyStrategy finds a code in the message body.
type BodyStrategy struct{}

func (BodyStrategy) Name() string { return "body" }

func (BodyStrategy) Match(msg domain.InboundMessage) (string, bool) {
	return findCode(msg.Body)
}

func findCode(text string) (string, bool) {
	code := CodePattern.FindString(text)
	return code, code != ""
}

// DefaultStrategies returns header then subject matching, plus body matching
// when matchBody is set.
func DefaultStrategies(header string, matchBody bool) []Strategy {
	strategies := []Strategy{HeaderStrategy{Header: header}, SubjectStrategy{}}
	if matchBody {
		strategies = append(strategies, BodyStrategy{})
	}
	return strategies
}
