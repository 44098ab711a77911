package event

import (
	"regexp"
	"strings"
)

const previewMaxLen = 100

// sensitiveKeys is the case-insensitive set of field-name substrings whose
// values are redacted outright, per §4.11.
var sensitiveKeys = []string{
	"password", "passwd", "pwd", "secret", "token", "api_key", "apikey",
	"access_token", "refresh_token", "auth_token", "authorization", "bearer",
	"credit_card", "card_number", "cvv", "ssn", "social_security",
	"private_key", "privatekey", "encryption_key",
}

const redactedValue = "[REDACTED]"

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d{1,3}?[\s.\-]?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
	cardRe  = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
)

// Sanitizer applies the PII redaction rules from §4.11: preview
// truncation, sensitive-key redaction, and text-pattern substitution.
type Sanitizer struct {
	Enabled bool
}

// NewSanitizer returns a Sanitizer; a nil *Sanitizer (not this
// constructor) disables sanitization entirely at the Emitter level.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{Enabled: true}
}

// Sanitize returns a copy of e with previews truncated, sensitive fields
// redacted, and email/phone/card-like substrings replaced in text values.
func (s *Sanitizer) Sanitize(e Event) Event {
	if s == nil || !s.Enabled {
		return e
	}
	out := e
	if len(e.Fields) > 0 {
		out.Fields = sanitizeValue("", e.Fields).(map[string]any)
	}
	return out
}

// TruncatePreview truncates s to at most 100 characters, appending an
// ellipsis on truncation.
func TruncatePreview(s string) string {
	if len(s) <= previewMaxLen {
		return s
	}
	return s[:previewMaxLen] + "..."
}

// RedactText replaces email, phone, and credit-card-like substrings.
func RedactText(s string) string {
	s = emailRe.ReplaceAllString(s, "[EMAIL]")
	s = phoneRe.ReplaceAllString(s, "[PHONE]")
	s = cardRe.ReplaceAllString(s, "[CARD]")
	return s
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, needle := range sensitiveKeys {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// sanitizeValue recursively walks v, redacting sensitive keys and applying
// text substitutions to string leaves. "preview"-named keys are also
// length-truncated.
func sanitizeValue(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if isSensitiveKey(k) {
				out[k] = redactedValue
				continue
			}
			out[k] = sanitizeValue(k, inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(key, inner)
		}
		return out
	case string:
		text := RedactText(val)
		if strings.Contains(strings.ToLower(key), "preview") {
			text = TruncatePreview(text)
		}
		return text
	default:
		return v
	}
}
