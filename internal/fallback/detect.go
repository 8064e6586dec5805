// Package fallback detects unanswered replies and recovers contact details for escalation.
package fallback

import (
	"regexp"
	"strings"

	"supportbot/internal/prompt"
)

var (
	// flexiblePattern pairs an apology or negative result with a mention of the support database.
	flexiblePattern = regexp.MustCompile(`(?i)(sorry|i couldn['’]t find|no answer|not found).*?(support database|our database)`)
	emailPattern    = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)
	emailCandidate  = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
)

var lowerTrigger = strings.ToLower(prompt.TriggerPhrase)

// IsFallbackTriggered reports whether a model reply means the context held no answer.
func IsFallbackTriggered(text string) bool {
	if strings.Contains(strings.ToLower(text), lowerTrigger) {
		return true
	}
	return flexiblePattern.MatchString(text)
}

// LooksLikeEmail reports whether s is a single plausible address with no consecutive dots.
func LooksLikeEmail(s string) bool {
	return emailPattern.MatchString(s) && !strings.Contains(s, "..")
}

// FindEmail returns the first plausible address inside free text, or "".
// A clean candidate wins; otherwise punctuation glued to the front of an
// address, as in "thanks...a@b.com", is cut away.
func FindEmail(text string) string {
	candidates := emailCandidate.FindAllString(text, -1)
	for i, m := range candidates {
		m = strings.TrimRight(m, ".-")
		candidates[i] = m
		if LooksLikeEmail(m) {
			return m
		}
	}
	for _, m := range candidates {
		at := strings.Index(m, "@")
		if at < 0 {
			continue
		}
		local := m[:at]
		if i := strings.LastIndex(local, ".."); i >= 0 {
			local = local[i+2:]
		}
		local = strings.TrimLeft(local, ".-")
		if local == "" {
			continue
		}
		if e := local + m[at:]; LooksLikeEmail(e) {
			return e
		}
	}
	return ""
}
