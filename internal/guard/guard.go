// Package guard screens conversation text at the trust boundary: user
// input before it reaches a prompt, agent output before it reaches the
// user. PII is masked in both directions; abusive input is refused
// outright so no agent call is spent on it.
package guard

import (
	"regexp"
	"strings"
)

// Redacted replaces each masked PII match.
const Redacted = "[REDACTED]"

// RefusalMessage is returned to the user for blocked input. The turn is
// recorded but no agent is invoked.
const RefusalMessage = "I can't engage with that. Let's keep things constructive - what would you like to work on?"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// Phone numbers need at least a 3-3-4 digit shape. A looser pattern
	// would swallow bare numeric quiz answers ("1024", "2024"), which
	// must survive masking intact.
	phonePattern = regexp.MustCompile(`\+?\d{0,3}[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)

	ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

var piiPatterns = []*regexp.Regexp{emailPattern, phonePattern, ssnPattern}

// Guard screens input and output text. The zero value is not usable;
// construct with New.
type Guard struct {
	blocklist []*regexp.Regexp
}

// DefaultBlocklist is the built-in set of refused keywords.
var DefaultBlocklist = []string{"hate", "kill", "stupid", "idiot", "destroy"}

// New builds a Guard with the default blocklist plus any extra keywords.
func New(extraKeywords ...string) *Guard {
	words := append(append([]string{}, DefaultBlocklist...), extraKeywords...)
	g := &Guard{}
	for _, w := range words {
		g.blocklist = append(g.blocklist, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return g
}

// ScreenInput checks user text. Blocked text returns ok=false and the
// refusal to show instead of an agent reply. Allowed text is returned
// with PII masked.
func (g *Guard) ScreenInput(text string) (masked string, ok bool) {
	if strings.TrimSpace(text) == "" {
		return text, true
	}
	for _, p := range g.blocklist {
		if p.MatchString(text) {
			return "", false
		}
	}
	return MaskPII(text), true
}

// ScrubOutput masks PII in agent text before display. Agent output is
// never refused, only scrubbed.
func (g *Guard) ScrubOutput(text string) string {
	return MaskPII(text)
}

// MaskPII replaces email addresses, phone numbers and SSNs with the
// redaction marker.
func MaskPII(text string) string {
	out := text
	for _, p := range piiPatterns {
		out = p.ReplaceAllString(out, Redacted)
	}
	return out
}

// ContainsPII reports whether text matches any PII pattern.
func ContainsPII(text string) bool {
	for _, p := range piiPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
