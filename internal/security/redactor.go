// Package security holds the secret-handling pieces shared by the CLI and
// the gateway: a Redactor that masks API keys in text, a slog handler that
// applies it to every log record, a JSONL audit trail for gateway
// mutations and a sliding-window rate limiter.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys whose values are secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_key|apikey|credential|authorization)`)

// Redactor masks secrets in strings and maps. It knows the memory service
// key format, bearer headers and any literal added at runtime (the
// configured API key, gateway credentials). Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an extra pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers an exact secret value. Empty and very short values
// are ignored so that redaction never shreds ordinary text.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 4 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.literals {
		if l == secret {
			return
		}
	}
	r.literals = append(r.literals, secret)
}

// Redact returns s with every known secret replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllStringFunc(s, func(m string) string {
			// Keep the scheme word of an Authorization value readable.
			if sub := p.FindStringSubmatchIndex(m); len(sub) >= 4 && sub[2] >= 0 {
				return m[:sub[3]] + RedactPlaceholder
			}
			return RedactPlaceholder
		})
	}
	return s
}

// RedactMap walks m in place, masking values under secret-looking keys and
// any embedded secret in other string values. Used before printing config.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretKeyPattern.MatchString(k) {
			if s, ok := v.(string); ok {
				if s != "" {
					m[k] = RedactPlaceholder
				}
				continue
			}
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for i, item := range val {
				switch it := item.(type) {
				case map[string]any:
					r.RedactMap(it)
				case string:
					val[i] = r.Redact(it)
				}
			}
		case string:
			m[k] = r.Redact(val)
		}
	}
}

// DefaultPatterns returns the built-in secret patterns. A pattern with a
// capture group keeps the group's text and masks the rest.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Memory service API keys.
		regexp.MustCompile(`ek_[A-Za-z0-9_\-]{16,}`),
		// Authorization header values.
		regexp.MustCompile(`(?i)(bearer |basic )[A-Za-z0-9._~+/=\-]{8,}`),
		// LLM provider keys that show up in upstream error bodies.
		regexp.MustCompile(`sk-(?:ant-)?[A-Za-z0-9\-]{20,}`),
	}
}
