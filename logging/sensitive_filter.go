package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces anything that looks like a credential.
const RedactedPlaceholder = "[REDACTED]"

// Only the prompt-enhancement LLM carries a credential in this process, but
// base URLs and error strings from it can echo keys back.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`), // OpenAI keys, legacy and project-scoped
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(apikey\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
}

var sensitiveFieldNames = []string{
	"OPENAI_API_KEY",
	"API_KEY",
	"APIKEY",
	"SECRET",
	"TOKEN",
	"PASSWORD",
}

// RedactSensitiveData replaces every credential-looking substring of value.
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField reports whether a field name alone marks its value as
// secret, e.g. "openai_api_key".
func IsSensitiveField(fieldName string) bool {
	upper := strings.ToUpper(fieldName)
	for _, name := range sensitiveFieldNames {
		if strings.Contains(upper, name) {
			return true
		}
	}
	return false
}
