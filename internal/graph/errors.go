package graph

import (
	"errors"
	"strings"
)

// ErrInvariant indicates the single-inheritance premise does not hold for
// the schema. Nothing downstream can be trusted after it.
var ErrInvariant = errors.New("nodewalk: graph invariant violated")

// InvariantError describes a broken graph premise.
type InvariantError struct {
	Struct  string
	Path    []string
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	var b strings.Builder
	b.WriteString("nodewalk: graph invariant violated")
	if e.Struct != "" {
		b.WriteString(" at ")
		b.WriteString(e.Struct)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Path) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Path, " -> "))
		b.WriteString(")")
	}
	return b.String()
}

// Is reports whether the target matches ErrInvariant.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}
