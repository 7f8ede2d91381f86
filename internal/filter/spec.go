// Package filter compiles declarative per-account filter rules and
// evaluates them against message metadata and attachment names.
package filter

import (
	"encoding/json"
	"fmt"
)

// Field identifies one of the matchable message fields.
type Field int

const (
	FieldFrom Field = iota
	FieldTo
	FieldSubject
	FieldBody
	numFields
)

// String returns the configuration key for the field.
func (f Field) String() string {
	switch f {
	case FieldFrom:
		return "from"
	case FieldTo:
		return "to"
	case FieldSubject:
		return "subject"
	case FieldBody:
		return "body"
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// PatternList is a list of patterns that may be written in configuration
// either as a single string or as an array of strings. A nil list imposes
// no constraint.
type PatternList []string

// UnmarshalJSON accepts null, a lone string, or an array of strings.
func (p *PatternList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = PatternList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("pattern list must be a string or array of strings")
	}
	*p = PatternList(many)
	return nil
}

// Spec is one declarative filter set. Message fields hold case-insensitive
// regular expressions, OR-combined within a field and AND-combined across
// fields. Attachments holds case-insensitive filename globs, OR-combined.
// An absent or null field imposes no constraint.
type Spec struct {
	From        PatternList `json:"from,omitempty" mapstructure:"from"`
	To          PatternList `json:"to,omitempty" mapstructure:"to"`
	Subject     PatternList `json:"subject,omitempty" mapstructure:"subject"`
	Body        PatternList `json:"body,omitempty" mapstructure:"body"`
	Attachments PatternList `json:"attachments,omitempty" mapstructure:"attachments"`
}

// field returns the pattern list configured for the given field.
func (s Spec) field(f Field) PatternList {
	switch f {
	case FieldFrom:
		return s.From
	case FieldTo:
		return s.To
	case FieldSubject:
		return s.Subject
	case FieldBody:
		return s.Body
	}
	return nil
}

// Message carries the text values of the matchable fields of one message.
// A missing value is represented by the empty string.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// field returns the message's value for the given field.
func (m Message) field(f Field) string {
	switch f {
	case FieldFrom:
		return m.From
	case FieldTo:
		return m.To
	case FieldSubject:
		return m.Subject
	case FieldBody:
		return m.Body
	}
	return ""
}
