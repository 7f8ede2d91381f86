package filter

import (
	"regexp"
	"strings"
)

var (
	domainToken = regexp.MustCompile(`@([a-zA-Z0-9.-]+)`)
	wordToken   = regexp.MustCompile(`\b[a-zA-Z0-9]+\b`)
)

// Query derives a coarse server-side search expression from the spec. The
// remote search surface does not understand regular expressions, so this is
// a best-effort reduction of the candidate set: the first `from` pattern
// containing an @domain token contributes a from: clause, the first
// `subject` pattern containing an alphanumeric word contributes a subject:
// clause, and a has:attachment clause is always appended. Correctness rests
// entirely on Matches; this only narrows what gets fetched.
func (s Spec) Query() string {
	var parts []string

	for _, p := range s.From {
		if m := domainToken.FindStringSubmatch(p); m != nil {
			parts = append(parts, "from:"+m[1])
			break
		}
	}

	for _, p := range s.Subject {
		if w := wordToken.FindString(p); w != "" {
			parts = append(parts, "subject:"+w)
			break
		}
	}

	parts = append(parts, "has:attachment")
	return strings.Join(parts, " ")
}
