package audit

import (
	"strings"
	"unicode/utf8"

	"github.com/davidahmann/proctor/internal/crypto"
)

type RedactionLevel string

const (
	RedactionNone     RedactionLevel = "none"
	RedactionMinimal  RedactionLevel = "minimal"
	RedactionStandard RedactionLevel = "standard"
	RedactionStrict   RedactionLevel = "strict"
)

// ParseRedactionLevel maps a policy string to a level, defaulting to
// standard for anything unrecognized.
func ParseRedactionLevel(s string) RedactionLevel {
	switch RedactionLevel(s) {
	case RedactionNone, RedactionMinimal, RedactionStandard, RedactionStrict:
		return RedactionLevel(s)
	default:
		return RedactionStandard
	}
}

// Free-text fields that may carry user or model content.
var sensitiveFields = []string{"query", "response", "message", "reasoning", "revision"}

const truncateAt = 500

// Redact applies write-time redaction to a payload copy. Redaction happens
// before hashing and storage and is irreversible. Fields carrying presented
// secrets are dropped at every level.
func Redact(payload map[string]any, level RedactionLevel) map[string]any {
	if len(payload) == 0 {
		return nil
	}

	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if isSecretField(k) {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}

	if level == RedactionNone || level == RedactionMinimal {
		return out
	}

	for _, field := range sensitiveFields {
		value, ok := out[field].(string)
		if !ok {
			continue
		}
		switch level {
		case RedactionStandard:
			if len(value) > truncateAt {
				out[field] = truncate(value) + "...[truncated]"
			}
		case RedactionStrict:
			out[field] = map[string]any{
				"redacted": true,
				"sha256":   crypto.DigestHex([]byte(value))[:16],
				"length":   len(value),
			}
		}
	}
	return out
}

// truncate cuts at the last rune boundary at or before truncateAt so the
// stored value stays valid UTF-8.
func truncate(value string) string {
	cut := truncateAt
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

func isSecretField(name string) bool {
	lower := strings.ToLower(name)
	return lower == "secret" || strings.HasSuffix(lower, "_secret") || lower == "credential"
}
