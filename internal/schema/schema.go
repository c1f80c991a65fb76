// Package schema models a parsed foreign header: struct definitions in
// declaration order plus the integer constants that accompany them.
//
// A Schema is built once per generation run and never mutated afterwards.
package schema

import "sort"

// Schema holds every struct of one foreign header snapshot.
type Schema struct {
	Structs   []*Struct
	Constants map[string]int64

	index map[string]int
}

// Struct is one struct definition. Pos is its position in the original
// declaration sequence.
type Struct struct {
	Name   string
	Fields []Field
	Pos    int
}

// Field is one struct member. Name is empty for unnamed (embedded) members.
type Field struct {
	Name    string
	Type    TypeRef
	Ordinal int
}

// New builds a Schema, assigning positions and field ordinals. When two
// structs share a name the first one wins lookups; graph construction
// reports the duplicate.
func New(structs []*Struct, constants map[string]int64) *Schema {
	s := &Schema{
		Structs:   structs,
		Constants: constants,
		index:     make(map[string]int, len(structs)),
	}
	if s.Constants == nil {
		s.Constants = map[string]int64{}
	}
	for i, st := range structs {
		st.Pos = i
		for j := range st.Fields {
			st.Fields[j].Ordinal = j
		}
		if _, ok := s.index[st.Name]; !ok {
			s.index[st.Name] = i
		}
	}
	return s
}

// Struct returns the struct named name, or nil.
func (s *Schema) Struct(name string) *Struct {
	i, ok := s.index[name]
	if !ok {
		return nil
	}
	return s.Structs[i]
}

// Resolve returns the struct a named TypeRef refers to, or nil when t is not
// a named reference to a known struct.
func (s *Schema) Resolve(t TypeRef) *Struct {
	if t.Kind != KindNamed {
		return nil
	}
	return s.Struct(t.Name)
}

// IsScalar reports whether values of t have a leaf textual form: primitives
// and named types that are not structs (typedefs, enums).
func (s *Schema) IsScalar(t TypeRef) bool {
	switch t.Kind {
	case KindPrimitive:
		return true
	case KindNamed:
		return s.Resolve(t) == nil
	default:
		return false
	}
}

// Constant looks up an integer constant by name.
func (s *Schema) Constant(name string) (int64, bool) {
	v, ok := s.Constants[name]
	return v, ok
}

// ConstantNames returns constant names in sorted order.
func (s *Schema) ConstantNames() []string {
	names := make([]string, 0, len(s.Constants))
	for name := range s.Constants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Field returns the member named name, or false.
func (st *Struct) Field(name string) (Field, bool) {
	for _, f := range st.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// First returns the first member, or false for an empty struct.
func (st *Struct) First() (Field, bool) {
	if len(st.Fields) == 0 {
		return Field{}, false
	}
	return st.Fields[0], true
}
