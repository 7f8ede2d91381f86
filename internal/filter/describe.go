package filter

import (
	"fmt"
	"strings"
)

// Describe renders a deterministic human-readable summary of the filter set
// for operator-facing logs. Fields appear in fixed order: from, to, subject,
// body, then attachments.
func (s Spec) Describe() string {
	var parts []string

	for f := FieldFrom; f < numFields; f++ {
		patterns := s.field(f)
		if len(patterns) == 0 {
			continue
		}
		if len(patterns) == 1 {
			parts = append(parts, fmt.Sprintf("%s: /%s/", f, patterns[0]))
			continue
		}
		quoted := make([]string, len(patterns))
		for i, p := range patterns {
			quoted[i] = "/" + p + "/"
		}
		parts = append(parts, fmt.Sprintf("%s: (%s)", f, strings.Join(quoted, " OR ")))
	}

	if len(s.Attachments) == 1 {
		parts = append(parts, "attachments: "+s.Attachments[0])
	} else if len(s.Attachments) > 1 {
		parts = append(parts, fmt.Sprintf("attachments: (%s)", strings.Join(s.Attachments, " OR ")))
	}

	if len(parts) == 0 {
		return "No filters"
	}
	return strings.Join(parts, " AND ")
}
