package classifier

import (
	"fmt"

	"github.com/seitarof/gen-nodewalk/internal/graph"
	"github.com/seitarof/gen-nodewalk/internal/rules"
	"github.com/seitarof/gen-nodewalk/internal/schema"
)

// Context is what rules see while classifying one schema.
type Context struct {
	Schema *schema.Schema
	Family *graph.Family
	Table  *rules.Table
}

// member returns the family struct t names by value.
func (c *Context) member(t schema.TypeRef) (string, bool) {
	if t.Kind != schema.KindNamed || !c.Family.Contains(t.Name) {
		return "", false
	}
	return t.Name, true
}

// checkPath follows a bound field path through the schema. It stops quietly
// once the path leaves known structs.
func (c *Context) checkPath(st *schema.Struct, path []string) string {
	cur := st
	for i, name := range path {
		if cur == nil {
			return ""
		}
		f, ok := cur.Field(name)
		if !ok {
			return fmt.Sprintf("%s has no field %s", cur.Name, name)
		}
		if i == len(path)-1 {
			break
		}
		t := f.Type
		for t.Kind == schema.KindPointer {
			t = *t.Elem
		}
		cur = c.Schema.Resolve(t)
	}
	return ""
}

// Decision is a rule's verdict on one field. Both members nil means the
// field is skipped without error.
type Decision struct {
	Step    *Step
	Problem *Problem
}

// Rule tries to classify one field.
type Rule interface {
	Name() string
	Try(c *Context, st *schema.Struct, f schema.Field) (Decision, bool)
}

// DefaultRules returns built-in rules in priority order. A field no rule
// accepts is inert.
func DefaultRules() []Rule {
	return []Rule{
		&DenyRule{},
		&OverrideRule{},
		&ScalarRule{},
		&FixedArrayRule{},
		&PointerRule{},
		&EmbedRule{},
	}
}

// DenyRule: denylisted fields are never walked.
type DenyRule struct{}

func (r *DenyRule) Name() string { return "deny" }

func (r *DenyRule) Try(c *Context, st *schema.Struct, f schema.Field) (Decision, bool) {
	if c.Table.Denied(st.Name, f.Name) {
		return skip(), true
	}
	return Decision{}, false
}

// OverrideRule: a bound table entry makes the field a bounded pointer array,
// or opaque when the entry has no expression.
type OverrideRule struct{}

func (r *OverrideRule) Name() string { return "bound-override" }

func (r *OverrideRule) Try(c *Context, st *schema.Struct, f schema.Field) (Decision, bool) {
	b, ok := c.Table.Bound(st.Name, f.Name)
	if !ok {
		return Decision{}, false
	}
	if b.Opaque() {
		return skip(), true
	}
	if f.Type.Kind != schema.KindPointer && f.Type.Kind != schema.KindOpaque {
		return problem(st, f, ProblemShape, "bound rule on a field that is not a pointer"), true
	}

	var msg string
	rules.Inspect(b.Expr.Root, func(t rules.Term) {
		if p, ok := t.(rules.Path); ok && msg == "" {
			msg = c.checkPath(st, p.Fields)
		}
	})
	if msg != "" {
		return problem(st, f, ProblemMissingField, "bound "+b.Expr.String()+": "+msg), true
	}

	target, _ := c.member(f.Type.Innermost())
	return Decision{Step: &Step{
		Field:  f.Name,
		Kind:   StepBoundedArray,
		Target: target,
		Bound:  b.Expr,
		Rule:   r.Name(),
	}}, true
}

// ScalarRule: primitives and non-struct named types are rendered leaves.
type ScalarRule struct{}

func (r *ScalarRule) Name() string { return "scalar" }

func (r *ScalarRule) Try(c *Context, _ *schema.Struct, f schema.Field) (Decision, bool) {
	if !c.Schema.IsScalar(f.Type) {
		return Decision{}, false
	}
	return Decision{Step: &Step{Field: f.Name, Kind: StepScalar, Rule: r.Name()}}, true
}

// FixedArrayRule: [N]*T with T in the family.
type FixedArrayRule struct{}

func (r *FixedArrayRule) Name() string { return "fixed-array" }

func (r *FixedArrayRule) Try(c *Context, st *schema.Struct, f schema.Field) (Decision, bool) {
	if f.Type.Kind != schema.KindArray {
		return Decision{}, false
	}
	elem := *f.Type.Elem
	if elem.Kind != schema.KindPointer {
		return skip(), true
	}
	pointee := *elem.Elem
	switch pointee.Kind {
	case schema.KindNamed:
		if target, ok := c.member(pointee); ok {
			return Decision{Step: &Step{
				Field:  f.Name,
				Kind:   StepFixedArray,
				Target: target,
				Len:    f.Type.Len,
				Rule:   r.Name(),
			}}, true
		}
		return skip(), true
	case schema.KindPrimitive, schema.KindOpaque:
		return skip(), true
	default:
		return problem(st, f, ProblemShape, "array element points to a "+pointee.Kind.String()), true
	}
}

// PointerRule: *T with T in the family. Pointers to pointers need a bound
// rule.
type PointerRule struct{}

func (r *PointerRule) Name() string { return "pointer" }

func (r *PointerRule) Try(c *Context, st *schema.Struct, f schema.Field) (Decision, bool) {
	if f.Type.Kind != schema.KindPointer {
		return Decision{}, false
	}
	pointee := *f.Type.Elem
	switch pointee.Kind {
	case schema.KindNamed:
		if target, ok := c.member(pointee); ok {
			return Decision{Step: &Step{Field: f.Name, Kind: StepPointer, Target: target, Rule: r.Name()}}, true
		}
		return skip(), true
	case schema.KindPrimitive, schema.KindOpaque:
		return skip(), true
	case schema.KindPointer:
		if _, ok := c.member(pointee.Innermost()); ok {
			return problem(st, f, ProblemMissingOverride, "pointer array of nodes has no bound rule"), true
		}
		return problem(st, f, ProblemShape, "pointer to pointer"), true
	default:
		return problem(st, f, ProblemShape, "pointer to "+pointee.Kind.String()), true
	}
}

// EmbedRule: a family struct embedded by value. The base node itself only
// carries the tag and is left inert.
type EmbedRule struct{}

func (r *EmbedRule) Name() string { return "embed" }

func (r *EmbedRule) Try(c *Context, _ *schema.Struct, f schema.Field) (Decision, bool) {
	target, ok := c.member(f.Type)
	if !ok {
		return Decision{}, false
	}
	if target == c.Table.BaseNode {
		return skip(), true
	}
	return Decision{Step: &Step{Field: f.Name, Kind: StepEmbed, Target: target, Rule: r.Name()}}, true
}

func skip() Decision { return Decision{} }

func problem(st *schema.Struct, f schema.Field, kind ProblemKind, detail string) Decision {
	return Decision{Problem: &Problem{
		Struct: st.Name,
		Field:  f.Name,
		Shape:  f.Type.String(),
		Kind:   kind,
		Detail: detail,
	}}
}
