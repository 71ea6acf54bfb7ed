// Package policy scrubs personal data and secrets from text before it reaches
// logs or admin responses.
package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9০-৯][0-9০-৯\-() ]{7,}[0-9০-৯]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	keyPattern   = regexp.MustCompile(`\b(?:sk|pk|key)[-_][A-Za-z0-9_\-]{12,}\b`)
)

// RedactPII masks emails, card numbers, phone numbers (Latin or Bengali
// digits) and API-key shaped tokens.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, step := range []struct {
		re   *regexp.Regexp
		mark string
	}{
		{emailPattern, "[REDACTED_EMAIL]"},
		{keyPattern, "[REDACTED_KEY]"},
		// cards before phones so long digit runs are not labelled as phones
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := step.re.ReplaceAllString(out, step.mark)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// MaskSecret keeps the last four characters of a secret.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	n := utf8.RuneCountInString(secret)
	if n == 0 {
		return ""
	}
	if n <= 8 {
		return strings.Repeat("*", n)
	}
	r := []rune(secret)
	return strings.Repeat("*", 8) + string(r[n-4:])
}

// LogSafe redacts text and truncates it to max runes for log fields.
func LogSafe(text string, max int) string {
	out, _ := RedactPII(text)
	if max <= 0 || utf8.RuneCountInString(out) <= max {
		return out
	}
	r := []rune(out)
	return string(r[:max]) + "…"
}
