package classifier

import (
	"strconv"

	"github.com/seitarof/gen-nodewalk/internal/rules"
)

// StepKind identifies how a field is visited.
type StepKind int

const (
	// StepScalar is a leaf field that is only rendered.
	StepScalar StepKind = iota
	// StepEmbed is a family struct embedded by value. It is walked through
	// its concrete program, never through tag dispatch.
	StepEmbed
	// StepPointer is a single pointer to a family struct.
	StepPointer
	// StepFixedArray is a fixed-size array of pointers to family structs.
	StepFixedArray
	// StepBoundedArray is a pointer array whose length is a bound
	// expression over sibling fields.
	StepBoundedArray
)

var stepKindNames = map[StepKind]string{
	StepScalar:       "scalar",
	StepEmbed:        "embed",
	StepPointer:      "pointer",
	StepFixedArray:   "fixed-array",
	StepBoundedArray: "bounded-array",
}

func (k StepKind) String() string {
	if s, ok := stepKindNames[k]; ok {
		return s
	}
	return "step(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText renders the kind name.
func (k StepKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Step is one classified field.
type Step struct {
	Field string   `json:"field"`
	Kind  StepKind `json:"kind"`
	// Target is the referenced family struct, empty when unknown.
	Target string `json:"target,omitempty"`
	// Len is the length of a fixed array.
	Len   int         `json:"len,omitempty"`
	Bound *rules.Expr `json:"bound,omitempty"`
	// Rule names the classifier rule that produced the step.
	Rule string `json:"rule"`
}

// Child reports whether the step visits other nodes.
func (s Step) Child() bool { return s.Kind != StepScalar }

// ProgramKind selects how a program is emitted.
type ProgramKind int

const (
	ProgramGeneric ProgramKind = iota
	ProgramContainer
	ProgramUnion
)

func (k ProgramKind) String() string {
	switch k {
	case ProgramContainer:
		return "container"
	case ProgramUnion:
		return "union"
	default:
		return "generic"
	}
}

// MarshalText renders the kind name.
func (k ProgramKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Program is the traversal plan of one family struct.
type Program struct {
	Struct string      `json:"struct"`
	Kind   ProgramKind `json:"kind"`
	// Tag is the tag constant of the struct, empty when the schema has none.
	Tag string `json:"tag,omitempty"`
	// Steps lists scalar and child fields in declaration order.
	Steps     []Step           `json:"steps,omitempty"`
	Container *rules.Container `json:"container,omitempty"`
	Union     *UnionProgram    `json:"union,omitempty"`
}

// Children returns the steps that visit other nodes.
func (p *Program) Children() []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Child() {
			out = append(out, s)
		}
	}
	return out
}

// UnionProgram walks Prefix, then the branch matching the discriminant, then
// Suffix. A discriminant value without a branch walks only Prefix and Suffix.
type UnionProgram struct {
	Discriminant string          `json:"discriminant"`
	Prefix       []Step          `json:"prefix,omitempty"`
	Branches     []BranchProgram `json:"branches"`
	Suffix       []Step          `json:"suffix,omitempty"`
}

// BranchProgram is one discriminant value with its fields.
type BranchProgram struct {
	Const string `json:"const"`
	Value int64  `json:"value"`
	Steps []Step `json:"steps,omitempty"`
}

// Branch returns the branch for a discriminant value.
func (u *UnionProgram) Branch(value int64) (BranchProgram, bool) {
	for _, b := range u.Branches {
		if b.Value == value {
			return b, true
		}
	}
	return BranchProgram{}, false
}

// BranchByConst returns the branch registered under a constant name.
func (u *UnionProgram) BranchByConst(name string) (BranchProgram, bool) {
	for _, b := range u.Branches {
		if b.Const == name {
			return b, true
		}
	}
	return BranchProgram{}, false
}

// DispatchEntry routes one runtime tag to a concrete program.
type DispatchEntry struct {
	Tag    string `json:"tag"`
	Value  int64  `json:"value"`
	Struct string `json:"struct"`
}

// Plan is the full classification result for one schema version.
type Plan struct {
	Version  rules.Version `json:"version"`
	BaseNode string        `json:"base_node"`
	TagType  string        `json:"tag_type"`
	TagField string        `json:"tag_field"`
	Helpers  []string      `json:"helpers,omitempty"`
	// Programs are sorted by struct name.
	Programs []*Program `json:"programs"`
	// Dispatch is sorted by struct name.
	Dispatch []DispatchEntry `json:"dispatch"`

	index map[string]*Program
}

// Program returns the program for a struct, or nil.
func (p *Plan) Program(name string) *Program {
	if p.index != nil {
		return p.index[name]
	}
	for _, prog := range p.Programs {
		if prog.Struct == name {
			return prog
		}
	}
	return nil
}

func (p *Plan) buildIndex() {
	p.index = make(map[string]*Program, len(p.Programs))
	for _, prog := range p.Programs {
		p.index[prog.Struct] = prog
	}
}

// ByTag returns the dispatch target for a runtime tag value.
func (p *Plan) ByTag(value int64) (*Program, bool) {
	for _, d := range p.Dispatch {
		if d.Value == value {
			return p.Program(d.Struct), true
		}
	}
	return nil, false
}

// Container returns the container program, or nil.
func (p *Plan) Container() *Program {
	for _, prog := range p.Programs {
		if prog.Kind == ProgramContainer {
			return prog
		}
	}
	return nil
}
