package matcher

import (
	"github.com/seitarof/gen-nodewalk/internal/rules"
	"github.com/seitarof/gen-nodewalk/internal/schema"
)

// Reason says why a rule entry did not match the schema.
type Reason string

const (
	ReasonNoStruct Reason = "struct not in schema"
	ReasonNoField  Reason = "field not in struct"
	ReasonNowhere  Reason = "no struct has this field"
)

// Unmatched is one rule entry naming something the schema lacks. Such
// entries usually mean the tables drifted from the schema version.
type Unmatched struct {
	Rule   string
	Struct string
	Field  string
	Reason Reason
}

// RuleMatcher cross-checks a resolved rule table against a schema.
type RuleMatcher interface {
	Unmatched(s *schema.Schema, t *rules.Table) []Unmatched
}

type ruleMatcherImpl struct{}

// New returns the default rule matcher.
func New() RuleMatcher {
	return &ruleMatcherImpl{}
}

func (m *ruleMatcherImpl) Unmatched(s *schema.Schema, t *rules.Table) []Unmatched {
	fields := fieldOwners(s)
	var out []Unmatched

	check := func(rule, structName, field string) {
		if structName == "" {
			if !fields[field] {
				out = append(out, Unmatched{Rule: rule, Field: field, Reason: ReasonNowhere})
			}
			return
		}
		st := s.Struct(structName)
		if st == nil {
			out = append(out, Unmatched{Rule: rule, Struct: structName, Field: field, Reason: ReasonNoStruct})
			return
		}
		if field == "" {
			return
		}
		if _, ok := st.Field(field); !ok {
			out = append(out, Unmatched{Rule: rule, Struct: structName, Field: field, Reason: ReasonNoField})
		}
	}

	for _, b := range t.Bounds() {
		check("bound", b.Struct, b.Field)
	}
	for _, d := range t.DenyList() {
		check("deny", d.Struct, d.Field)
	}
	if c := t.Container; c != nil {
		for _, f := range containerFields(c) {
			check("container", c.Struct, f)
		}
		check("container", c.Cell, c.Value[0])
		if c.Shape == rules.ShapeLinked {
			check("container", c.Cell, c.Next)
		}
	}
	for _, u := range t.Unions() {
		check("union", u.Struct, u.Discriminant)
		for _, f := range u.Fields() {
			check("union", u.Struct, f)
		}
	}
	return out
}

func containerFields(c *rules.Container) []string {
	var out []string
	if c.Length != "" {
		out = append(out, c.Length)
	}
	if c.Shape == rules.ShapeLinked {
		return append(out, c.Head)
	}
	return append(out, c.Elems)
}

func fieldOwners(s *schema.Schema) map[string]bool {
	set := make(map[string]bool)
	for _, st := range s.Structs {
		for _, f := range st.Fields {
			if f.Name == "" {
				continue
			}
			set[f.Name] = true
		}
	}
	return set
}
