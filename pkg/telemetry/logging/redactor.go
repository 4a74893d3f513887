package logging

import (
	"fmt"
	"regexp"
	"strings"

	"kiroproxy/gateway/pkg/gwconfig"
)

// Redactor redacts credential material from log fields before they
// reach the configured writer.
type Redactor struct {
	patterns map[string]*redactPattern
	enabled  bool
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Pattern names for the fixed credential-material set this gateway
// redacts (spec §9 design notes): access tokens, refresh tokens, and
// bearer Authorization headers — the only sensitive values this
// domain ever logs.
const (
	PatternAccessToken  = "access_token"
	PatternRefreshToken = "refresh_token"
	PatternBearerToken  = "bearer_token"
)

// NewRedactor creates a new Redactor with the fixed default patterns
// plus any custom patterns layered on top.
func NewRedactor(customPatterns []gwconfig.RedactPattern) *Redactor {
	r := &Redactor{
		patterns: make(map[string]*redactPattern),
		enabled:  true,
	}

	r.addDefaultPatterns()

	for _, p := range customPatterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		r.patterns[p.Name] = &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		}
	}

	return r
}

// addDefaultPatterns adds the built-in access_token/refresh_token/
// Authorization redaction patterns.
func (r *Redactor) addDefaultPatterns() {
	patterns := map[string]struct {
		regex       string
		replacement string
	}{
		PatternAccessToken: {
			regex:       `(?i)("?access_?token"?\s*[:=]\s*"?)[a-zA-Z0-9\-._~+/]+=*`,
			replacement: "${1}***",
		},
		PatternRefreshToken: {
			regex:       `(?i)("?refresh_?token"?\s*[:=]\s*"?)[a-zA-Z0-9\-._~+/]+=*`,
			replacement: "${1}***",
		},
		PatternBearerToken: {
			regex:       `(?i)(Bearer\s+|Authorization:\s*Bearer\s+)[a-zA-Z0-9\-._~+/]+=*`,
			replacement: "${1}***",
		},
	}

	for name, p := range patterns {
		regex := regexp.MustCompile(p.regex)
		r.patterns[name] = &redactPattern{
			name:        name,
			regex:       regex,
			replacement: p.replacement,
		}
	}
}

// RedactString redacts credential material from a string value.
func (r *Redactor) RedactString(value string) string {
	if !r.enabled || value == "" {
		return value
	}

	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}

	return redacted
}

// RedactArgs redacts credential material from variadic log arguments.
// Args are in the form: key1, value1, key2, value2, ...
func (r *Redactor) RedactArgs(args ...any) []any {
	if !r.enabled || len(args) == 0 {
		return args
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 1; i < len(redacted); i += 2 {
		key, ok := redacted[i-1].(string)
		if ok && r.isSensitiveKey(key) {
			redacted[i] = r.redactValue(redacted[i])
			continue
		}
		if str, ok := redacted[i].(string); ok {
			redacted[i] = r.RedactString(str)
		}
	}

	return redacted
}

// isSensitiveKey checks if a key name indicates credential material.
func (r *Redactor) isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := []string{
		"access_token", "accesstoken",
		"refresh_token", "refreshtoken",
		"authorization", "bearer",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}

	return false
}

// redactValue redacts a sensitive value completely, keeping a short
// prefix hint for debugging.
func (r *Redactor) redactValue(value any) any {
	switch v := value.(type) {
	case string:
		if v == "" {
			return ""
		}
		if len(v) <= 4 {
			return "***"
		}
		return v[:4] + "***"
	case fmt.Stringer:
		return "***"
	default:
		return "***"
	}
}
