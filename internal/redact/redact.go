// Package redact scrubs secrets out of ticket text and structured
// payloads before they are persisted, logged, or shipped to a webhook.
// Substitutions use stable markers so any hash computed over redacted
// text (duplicate guards, for instance) stays the same regardless of
// when redaction ran.
package redact

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type pattern struct {
	name    string
	re      *regexp.Regexp
	marker  string
}

// Ordered so the most specific / highest-severity patterns run first;
// a PEM block should never be partially swallowed by a later generic
// hex-token rule.
var patterns = []pattern{
	{"pem_block", regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`), "***PRIVATE_KEY_REDACTED***"},
	{"openai_key", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "***API_KEY_REDACTED***"},
	{"stripe_live_key", regexp.MustCompile(`(?i)(sk|rk)_live_[A-Za-z0-9]{24}`), "***API_KEY_REDACTED***"},
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "***AWS_KEY_REDACTED***"},
	{"aws_secret_key", regexp.MustCompile(`(?i)(aws_secret_access_key|aws_secret)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{40}`), "***AWS_SECRET_REDACTED***"},
	{"github_token", regexp.MustCompile(`gh[pus]_[A-Za-z0-9_]{20,}`), "***GITHUB_TOKEN_REDACTED***"},
	{"google_api_key", regexp.MustCompile(`AIza[0-9A-Za-z_-]{30,}`), "***API_KEY_REDACTED***"},
	{"slack_token", regexp.MustCompile(`xox[baprs]-[0-9]{6,}-[0-9]{6,}-[A-Za-z0-9]{16,}`), "***SLACK_TOKEN_REDACTED***"},
	{"jwt_token", regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), "***JWT_REDACTED***"},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer ***TOKEN_REDACTED***"},
	{"url_credentials", regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://)[^:/\s]+:[^@/\s]+@`), "$1***CREDENTIALS_REDACTED***@"},
	{"hardcoded_password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]([^'"]+)['"]`), "$1=***PASSWORD_REDACTED***"},
	{"hardcoded_secret", regexp.MustCompile(`(?i)(api_secret|secret|api_key|apikey)\s*[=:]\s*['"]([A-Za-z0-9/+=\-_]{20,})['"]`), "$1=***SECRET_REDACTED***"},
	{"long_hex_token", regexp.MustCompile(`\b[A-Fa-f0-9]{32,}\b`), "***HEX_TOKEN_REDACTED***"},
	{"card_number", regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`), "***NUMBER_REDACTED***"},
	{"ssn", regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`), "***SSN_REDACTED***"},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`), "***EMAIL_REDACTED***@$1"},
}

var secretFieldCaser = cases.Fold()

// secretFieldNames are map/struct keys whose values are always redacted
// outright, regardless of shape, when walking structured payloads.
var secretFieldNames = map[string]bool{
	"password": true, "passwd": true, "pwd": true,
	"secret": true, "api_key": true, "apikey": true, "api_secret": true,
	"token": true, "access_token": true, "refresh_token": true,
	"authorization": true, "private_key": true,
}

// Redact replaces every recognised secret pattern in text with a stable
// marker.
func Redact(text string) string {
	out := text
	for _, p := range patterns {
		out = p.re.ReplaceAllString(out, p.marker)
	}
	return out
}

// RedactMap walks a JSON-like map, redacting string values whose key
// names look like a secret field outright and scanning remaining string
// values with the pattern set.
func RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = redactValue(k, v)
	}
	return out
}

// RedactSlice applies RedactMap/Redact element-wise to a slice of values.
func RedactSlice(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = redactValue("", v)
	}
	return out
}

func redactValue(key string, v any) any {
	switch val := v.(type) {
	case string:
		if key != "" && isSecretField(key) {
			return "***REDACTED***"
		}
		return Redact(val)
	case map[string]any:
		return RedactMap(val)
	case []any:
		return RedactSlice(val)
	default:
		return v
	}
}

func isSecretField(name string) bool {
	folded := strings.TrimSpace(secretFieldCaser.String(name))
	return secretFieldNames[folded]
}
