// Package safety classifies SQL operations, enforces the safety-level
// policy and blacklist, and gates risky operations behind confirmation.
package safety

import (
	"regexp"
	"strings"
)

// Blacklist holds the SQL patterns that are denied regardless of the
// active safety level.
type Blacklist struct {
	patterns []*regexp.Regexp
}

// NewBlacklist creates the default blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)DROP\s+(TABLE|DATABASE|SCHEMA|INDEX|PROCEDURE|FUNCTION|TRIGGER|VIEW)`),
			regexp.MustCompile(`(?i)\bTRUNCATE\s+`),
			regexp.MustCompile(`(?i)\b(GRANT|REVOKE)\s+`),
			regexp.MustCompile(`(?i)\bEXECUTE\s*\(`),
		},
	}
}

// Match returns the keyword of the first blacklisted pattern the SQL
// matches, or false when the SQL is clean. DELETE without a WHERE clause
// is checked structurally since RE2 has no lookahead.
func (b *Blacklist) Match(sql string) (string, bool) {
	for _, p := range b.patterns {
		if m := p.FindString(sql); m != "" {
			kw := strings.ToUpper(strings.Fields(m)[0])
			return kw, true
		}
	}
	if isDeleteWithoutWhere(sql) {
		return "DELETE", true
	}
	return "", false
}

var deleteFromRe = regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+`)

func isDeleteWithoutWhere(sql string) bool {
	if !deleteFromRe.MatchString(sql) {
		return false
	}
	return !strings.Contains(strings.ToUpper(sql), "WHERE")
}
