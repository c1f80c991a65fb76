package rules

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidRules is matched by every error describing a malformed rule
// table.
var ErrInvalidRules = errors.New("nodewalk: invalid rules")

// RuleError points at one bad rule entry.
type RuleError struct {
	// Line is the 1-based line of the entry in its YAML source, 0 if unknown.
	Line    int
	Entry   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	var b strings.Builder
	b.WriteString("nodewalk: invalid rules")
	if e.Line > 0 {
		b.WriteString(" (line ")
		b.WriteString(strconv.Itoa(e.Line))
		b.WriteString(")")
	}
	if e.Entry != "" {
		b.WriteString(": ")
		b.WriteString(e.Entry)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RuleError) Unwrap() error { return e.Err }

// Is reports whether the target matches ErrInvalidRules.
func (e *RuleError) Is(target error) bool {
	return target == ErrInvalidRules
}

func ruleErr(line int, entry, message string, err error) *RuleError {
	return &RuleError{Line: line, Entry: entry, Message: message, Err: err}
}
