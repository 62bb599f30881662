package nats

import (
	"strings"
)

// Subjects builds the per-host subject names
type Subjects struct {
	prefix string
	host   string
}

// NewSubjects returns the subject set for hostname under prefix
func NewSubjects(prefix, hostname string) Subjects {
	return Subjects{prefix: prefix, host: SanitizeToken(hostname)}
}

// Inventory is where report payloads are mirrored
func (s Subjects) Inventory() string {
	return s.prefix + "." + s.host + ".inventory"
}

// Command is the request/reply subject for a named command
func (s Subjects) Command(name string) string {
	return s.prefix + "." + s.host + ".cmd." + name
}

// SanitizeToken makes s usable as a single subject token. Dots, wildcards
// and whitespace would split or widen the subject, so anything outside
// [A-Za-z0-9_-] becomes an underscore.
func SanitizeToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
