package filter

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Compiled holds the pre-compiled predicates of one filter set. A nil
// pattern group means the corresponding field is unconstrained.
type Compiled struct {
	groups      [numFields][]*regexp.Regexp
	attachments []string
}

// Compile pre-compiles all patterns of the spec. Message-field patterns are
// compiled as case-insensitive regular expressions; an absent field imposes
// no constraint, while a field present with an empty list compiles to a
// group no message can satisfy. Attachment globs are validated and
// case-folded; an empty list matches every attachment.
func Compile(spec Spec) (*Compiled, error) {
	c := &Compiled{}

	for f := FieldFrom; f < numFields; f++ {
		patterns := spec.field(f)
		if patterns == nil {
			continue
		}
		if len(patterns) == 0 {
			c.groups[f] = []*regexp.Regexp{}
			continue
		}
		group := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("compiling %s pattern %q: %w", f, p, err)
			}
			group = append(group, re)
		}
		c.groups[f] = group
	}

	for _, g := range spec.Attachments {
		folded := strings.ToLower(g)
		if _, err := path.Match(folded, ""); err != nil {
			return nil, fmt.Errorf("compiling attachment glob %q: %w", g, err)
		}
		c.attachments = append(c.attachments, folded)
	}

	return c, nil
}

// Matches reports whether the message satisfies every constrained field.
// Within a field any one pattern may match (OR); across fields all must
// match (AND). A message with no constrained fields always matches.
func (c *Compiled) Matches(m Message) bool {
	for f := FieldFrom; f < numFields; f++ {
		group := c.groups[f]
		if group == nil {
			continue
		}

		value := m.field(f)
		matched := false
		for _, re := range group {
			if re.MatchString(value) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// MatchesAttachment reports whether the filename passes the attachment
// globs. With no globs configured every attachment passes; otherwise the
// case-folded filename must match at least one glob.
func (c *Compiled) MatchesAttachment(filename string) bool {
	if len(c.attachments) == 0 {
		return true
	}

	folded := strings.ToLower(filename)
	for _, g := range c.attachments {
		if ok, err := path.Match(g, folded); err == nil && ok {
			return true
		}
	}
	return false
}
