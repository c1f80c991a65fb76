package classifier

import (
	"errors"
	"strconv"
	"strings"

	"github.com/seitarof/gen-nodewalk/internal/rules"
)

// ErrUnclassifiable is matched by the batch error a failed pass returns.
var ErrUnclassifiable = errors.New("nodewalk: unclassifiable fields")

// ProblemKind categorizes a classification failure.
type ProblemKind string

const (
	// ProblemShape is a pointer or array shape no rule understands.
	ProblemShape ProblemKind = "shape"
	// ProblemMissingOverride is a pointer array that needs a bound rule.
	ProblemMissingOverride ProblemKind = "missing-override"
	// ProblemMissingField is a rule naming a field the struct lacks.
	ProblemMissingField ProblemKind = "missing-field"
	// ProblemMissingConstant is a tag or branch constant the schema lacks.
	ProblemMissingConstant ProblemKind = "missing-constant"
	// ProblemMissingStruct is a struct the rules rely on that is absent.
	ProblemMissingStruct ProblemKind = "missing-struct"
)

// Problem is one failure. Shape is the observed field type.
type Problem struct {
	Struct string      `json:"struct"`
	Field  string      `json:"field,omitempty"`
	Shape  string      `json:"shape,omitempty"`
	Kind   ProblemKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

func (p Problem) String() string {
	var b strings.Builder
	b.WriteString(p.Struct)
	if p.Field != "" {
		b.WriteString(".")
		b.WriteString(p.Field)
	}
	b.WriteString(": ")
	b.WriteString(string(p.Kind))
	if p.Shape != "" {
		b.WriteString(" (")
		b.WriteString(p.Shape)
		b.WriteString(")")
	}
	if p.Detail != "" {
		b.WriteString(": ")
		b.WriteString(p.Detail)
	}
	return b.String()
}

// BatchError carries every problem found in one full pass.
type BatchError struct {
	Version  rules.Version
	Problems []Problem
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	var b strings.Builder
	b.WriteString("nodewalk: ")
	b.WriteString(strconv.Itoa(len(e.Problems)))
	b.WriteString(" unclassifiable field(s) for ")
	b.WriteString(e.Version.String())
	for _, p := range e.Problems {
		b.WriteString("\n  ")
		b.WriteString(p.String())
	}
	return b.String()
}

// Is reports whether the target matches ErrUnclassifiable.
func (e *BatchError) Is(target error) bool {
	return target == ErrUnclassifiable
}
