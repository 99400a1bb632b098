package policy

import (
	"slices"
	"strings"
)

// DomainMatcher decides whether a logon belongs to an ignored domain. Patterns are
// `*` (any domain), `*.suffix`, `prefix.*` or an exact domain, compared case-insensitively.
type DomainMatcher struct {
	patterns []string
}

func NewDomainMatcher(patterns []string) DomainMatcher {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return DomainMatcher{patterns: out}
}

// Ignored reports whether the domain of logon matches a pattern. Logons are either
// `user@domain` or `DOMAIN\user`. The pattern `*` ignores every logon, including one
// without a domain; otherwise a logon without a domain is never ignored. A logon that
// cannot be split into user and domain is always ignored.
func (m DomainMatcher) Ignored(logon string) bool {
	logon = strings.TrimSpace(logon)
	if logon == "" || len(m.patterns) == 0 {
		return false
	}
	if slices.Contains(m.patterns, "*") {
		return true
	}
	domain, ok := logonDomain(logon)
	if !ok {
		return true
	}
	if domain == "" {
		return false
	}
	for _, p := range m.patterns {
		if matchDomain(p, domain) {
			return true
		}
	}
	return false
}

// logonDomain extracts the lower-cased domain. ok is false for malformed logons.
func logonDomain(logon string) (string, bool) {
	var parts []string
	var domainIdx int
	switch {
	case strings.Contains(logon, `\`):
		parts, domainIdx = strings.Split(logon, `\`), 0
	case strings.Contains(logon, "@"):
		parts, domainIdx = strings.Split(logon, "@"), 1
	default:
		return "", true
	}
	if len(parts) != 2 || parts[domainIdx] == "" {
		return "", false
	}
	return strings.ToLower(parts[domainIdx]), true
}

func matchDomain(pattern, domain string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(domain, pattern[1:])
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(domain, pattern[:len(pattern)-1])
	default:
		return pattern == domain
	}
}
