// Package sanitize normalizes outbound chat text and rejects content that
// looks like personal data. It runs before anything reaches the crypto layer.
package sanitize

import (
	"errors"
	"regexp"
	"strings"
)

// MaxLength is the longest message we accept, counted in runes.
const MaxLength = 500

var (
	ErrEmpty     = errors.New("message is empty")
	ErrSensitive = errors.New("message looks like personal data")
)

// The patterns are a best-effort heuristic. Plenty of personal data gets
// through them and that is accepted.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{3,4}-\d{4}\b`),                   // phone number
	regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`), // email
	regexp.MustCompile(`\b\d{6}-\d{7}\b`),                           // national ID
}

// Sanitize strips C0 control characters and DEL, trims surrounding
// whitespace and truncates to MaxLength runes. An empty result means the
// message must not be sent.
func Sanitize(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r <= 0x1F || r == 0x7F {
			return -1
		}
		return r
	}, raw)
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > MaxLength {
		// Trim again so a cut in the middle of a sentence can't leave
		// trailing spaces behind. Keeps Sanitize idempotent.
		cleaned = strings.TrimSpace(string(runes[:MaxLength]))
	}
	return cleaned
}

// ContainsSensitivePattern reports whether text matches any of the phone,
// email or national-ID patterns.
func ContainsSensitivePattern(text string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Check sanitizes raw and applies the policy filter. The returned string is
// only meaningful when err is nil.
func Check(raw string) (string, error) {
	clean := Sanitize(raw)
	if clean == "" {
		return "", ErrEmpty
	}
	if ContainsSensitivePattern(clean) {
		return "", ErrSensitive
	}
	return clean, nil
}
