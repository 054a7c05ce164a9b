package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials in log attributes.
type Redactor struct {
	patterns []redactPattern
	keys     map[string]bool
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// Redacted replaces the value of sensitive keys.
const Redacted = "***"

// NewRedactor creates a Redactor for authorization headers, bot tokens
// and webhook tokens embedded in request paths.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []redactPattern{
			{
				regex:       regexp.MustCompile(`\b(Bot|Bearer)\s+[A-Za-z0-9\-._~+/]{20,}=*`),
				replacement: "$1 ***",
			},
			{
				// /webhooks/{id}/{token}
				regex:       regexp.MustCompile(`(/webhooks/\d+/)[A-Za-z0-9\-_]+`),
				replacement: "${1}***",
			},
		},
		keys: map[string]bool{
			"authorization": true,
			"token":         true,
			"password":      true,
		},
	}
}

// Redact masks every credential found in s.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if r.keys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); s != "" {
			return slog.String(a.Key, r.Redact(s))
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.Redact(err.Error()))
		}
	}
	return a
}
