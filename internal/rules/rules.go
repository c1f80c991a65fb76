// Package rules holds the hand-maintained, version-gated knowledge the
// classifier cannot derive from a schema: array bound expressions, fields
// that must never be walked, the container type's physical shape and the
// discriminated unions.
//
// A Set is decoded from YAML once; Set.For resolves it into the immutable
// Table for one schema version.
package rules

import (
	"fmt"
	"sort"
)

// FieldKey addresses one struct member. An empty Struct in a deny entry
// matches every struct.
type FieldKey struct {
	Struct string `json:"struct,omitempty"`
	Field  string `json:"field"`
}

func (k FieldKey) String() string {
	s := k.Struct
	if s == "" {
		s = "*"
	}
	return s + "." + k.Field
}

// BoundRule overrides classification of one field. A nil Expr marks the
// field opaque: it is skipped without error.
type BoundRule struct {
	FieldKey
	Expr *Expr
	Line int
}

// Opaque reports whether the rule suppresses traversal of the field.
func (b BoundRule) Opaque() bool { return b.Expr == nil }

// Shape is the physical layout of the container type.
type Shape int

const (
	// ShapeLinked is a singly linked list of cells ending at a nil next.
	ShapeLinked Shape = iota
	// ShapeArray is a contiguous cell array with an explicit length.
	ShapeArray
)

func (s Shape) String() string {
	if s == ShapeArray {
		return "array"
	}
	return "linked"
}

// MarshalText renders the shape name.
func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func parseShape(s string) (Shape, error) {
	switch s {
	case "linked":
		return ShapeLinked, nil
	case "array":
		return ShapeArray, nil
	default:
		return 0, fmt.Errorf("unknown container shape %q (want linked or array)", s)
	}
}

// Container describes the homogeneous list type for one version.
type Container struct {
	Struct string   `json:"struct"`
	Cell   string   `json:"cell"`
	Shape  Shape    `json:"shape"`
	Length string   `json:"length"`
	Head   string   `json:"head,omitempty"`
	Next   string   `json:"next,omitempty"`
	Elems  string   `json:"elements,omitempty"`
	Value  []string `json:"value"`
	Line   int      `json:"-"`
}

// Branch lists the fields walked when the discriminant equals Const.
type Branch struct {
	Const  string   `json:"const"`
	Fields []string `json:"fields"`
}

// Union describes a struct whose walkable fields depend on a runtime
// discriminant. Prefix fields are walked first, then the matching branch,
// then Suffix.
type Union struct {
	Struct       string   `json:"struct"`
	Discriminant string   `json:"discriminant"`
	Prefix       []string `json:"prefix,omitempty"`
	Branches     []Branch `json:"branches"`
	Suffix       []string `json:"suffix,omitempty"`
	Line         int      `json:"-"`
}

// Fields returns every field the union may walk, prefix first, without
// duplicates.
func (u *Union) Fields() []string {
	var out []string
	seen := map[string]bool{}
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	add(u.Prefix)
	for _, b := range u.Branches {
		add(b.Fields)
	}
	add(u.Suffix)
	return out
}

// Table is the rule set resolved for one version. It is read-only.
type Table struct {
	Version Version
	// TagType names the discriminant-tag type that marks tagged roots.
	TagType string
	// TagField is the member holding the runtime tag in every root.
	TagField string
	// BaseNode is the untyped node struct the dispatcher hangs off.
	BaseNode string
	// TagConstPrefix + struct name is the tag constant of a concrete type.
	TagConstPrefix string

	Container *Container

	helpers map[string]bool
	bounds  map[FieldKey]BoundRule
	deny    map[FieldKey]bool
	unions  map[string]*Union
}

// TagConst returns the tag constant name of structName.
func (t *Table) TagConst(structName string) string {
	return t.TagConstPrefix + structName
}

// Bound returns the override for (structName, field).
func (t *Table) Bound(structName, field string) (BoundRule, bool) {
	b, ok := t.bounds[FieldKey{Struct: structName, Field: field}]
	return b, ok
}

// Bounds returns every active override sorted by struct and field.
func (t *Table) Bounds() []BoundRule {
	out := make([]BoundRule, 0, len(t.bounds))
	for _, b := range t.bounds {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].FieldKey, out[j].FieldKey) })
	return out
}

// Denied reports whether the field must never be walked.
func (t *Table) Denied(structName, field string) bool {
	return t.deny[FieldKey{Field: field}] || t.deny[FieldKey{Struct: structName, Field: field}]
}

// DenyList returns the active deny entries sorted.
func (t *Table) DenyList() []FieldKey {
	out := make([]FieldKey, 0, len(t.deny))
	for k := range t.deny {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i], out[j]) })
	return out
}

// Union returns the discriminated union rule for structName, or nil.
func (t *Table) Union(structName string) *Union {
	return t.unions[structName]
}

// Unions returns every active union rule sorted by struct.
func (t *Table) Unions() []*Union {
	out := make([]*Union, 0, len(t.unions))
	for _, u := range t.unions {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Struct < out[j].Struct })
	return out
}

// IsHelper reports whether name is a declared bound helper.
func (t *Table) IsHelper(name string) bool { return t.helpers[name] }

// Helpers returns the declared helper names sorted.
func (t *Table) Helpers() []string {
	out := make([]string, 0, len(t.helpers))
	for h := range t.helpers {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Special reports whether structName gets bespoke emission instead of the
// generic classifier.
func (t *Table) Special(structName string) bool {
	if t.Container != nil && t.Container.Struct == structName {
		return true
	}
	return t.unions[structName] != nil
}

func keyLess(a, b FieldKey) bool {
	if a.Struct != b.Struct {
		return a.Struct < b.Struct
	}
	return a.Field < b.Field
}

// Set is every rule entry with its version gate.
type Set struct {
	doc document
}

// For resolves the entries active in v. Two active entries for the same
// field, container or union are a rule error.
func (s *Set) For(v Version) (*Table, error) {
	if !v.Valid() {
		return nil, &RuleError{Entry: v.String(), Message: "unsupported schema version"}
	}
	d := s.doc
	t := &Table{
		Version:        v,
		TagType:        d.TagType,
		TagField:       d.TagField,
		BaseNode:       d.BaseNode,
		TagConstPrefix: d.TagConstPrefix,
		helpers:        map[string]bool{},
		bounds:         map[FieldKey]BoundRule{},
		deny:           map[FieldKey]bool{},
		unions:         map[string]*Union{},
	}
	for _, h := range d.Helpers {
		t.helpers[h] = true
	}

	for _, e := range d.Deny {
		if e.In.has(v) {
			t.deny[FieldKey{Struct: e.Struct, Field: e.Field}] = true
		}
	}

	for _, e := range d.Bounds {
		if !e.In.has(v) {
			continue
		}
		key := FieldKey{Struct: e.Struct, Field: e.Field}
		if prev, ok := t.bounds[key]; ok {
			return nil, ruleErr(e.line, key.String(),
				fmt.Sprintf("conflicts with the entry on line %d for %s", prev.Line, v), nil)
		}
		t.bounds[key] = BoundRule{FieldKey: key, Expr: e.expr, Line: e.line}
	}

	for _, e := range d.Containers {
		if !e.In.has(v) {
			continue
		}
		if t.Container != nil {
			return nil, ruleErr(e.line, e.Struct,
				fmt.Sprintf("second container active for %s (first on line %d)", v, t.Container.Line), nil)
		}
		t.Container = e.resolve()
	}

	for _, e := range d.Unions {
		if !e.In.has(v) {
			continue
		}
		if prev, ok := t.unions[e.Struct]; ok {
			return nil, ruleErr(e.line, e.Struct,
				fmt.Sprintf("conflicts with the union on line %d for %s", prev.Line, v), nil)
		}
		t.unions[e.Struct] = e.resolve(v)
	}
	return t, nil
}
