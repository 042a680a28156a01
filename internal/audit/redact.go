package audit

import (
	"regexp"
)

var (
	// credentialRegex matches key=value credential assignments in SQL or
	// connection strings, case-insensitively.
	credentialRegex = regexp.MustCompile(`(?i)\b(password|secret|token|api_key|auth)(\s*=\s*)('[^']*'|"[^"]*"|\S+)`)
)

// Redact replaces credential values with [REDACTED] before an event
// leaves the process. The key and separator are preserved.
func Redact(text string) string {
	return credentialRegex.ReplaceAllString(text, "$1$2[REDACTED]")
}

// ContainsCredentials reports whether the text carries a credential
// assignment.
func ContainsCredentials(text string) bool {
	return credentialRegex.MatchString(text)
}
