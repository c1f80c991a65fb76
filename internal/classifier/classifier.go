// Package classifier turns every node family struct into a traversal
// program. Fields run through an ordered rule chain; the container type and
// discriminated unions get programs built from their rule entries.
//
// Classification never stops at the first bad field. Every problem of the
// pass is returned together in one BatchError.
package classifier

import (
	"github.com/seitarof/gen-nodewalk/internal/graph"
	"github.com/seitarof/gen-nodewalk/internal/rules"
	"github.com/seitarof/gen-nodewalk/internal/schema"
)

// Classifier builds a Plan for one schema version.
type Classifier interface {
	Classify(s *schema.Schema, fam *graph.Family) (*Plan, error)
}

type classifierImpl struct {
	table *rules.Table
	rules []Rule
}

// New builds a classifier with a rule chain. With no rules it uses
// DefaultRules.
func New(table *rules.Table, rs ...Rule) Classifier {
	if len(rs) == 0 {
		rs = DefaultRules()
	}
	return &classifierImpl{table: table, rules: rs}
}

// pass accumulates the result of one Classify call.
type pass struct {
	ctx      *Context
	problems []Problem
}

func (p *pass) report(pr Problem) { p.problems = append(p.problems, pr) }

func (c *classifierImpl) Classify(s *schema.Schema, fam *graph.Family) (*Plan, error) {
	t := c.table
	p := &pass{ctx: &Context{Schema: s, Family: fam, Table: t}}

	plan := &Plan{
		Version:  t.Version,
		BaseNode: t.BaseNode,
		TagType:  t.TagType,
		TagField: t.TagField,
		Helpers:  t.Helpers(),
	}

	if base := fam.Member(t.BaseNode); base == nil {
		p.report(Problem{Struct: t.BaseNode, Kind: ProblemMissingStruct, Detail: "base node is not a tagged struct of the schema"})
	} else if _, ok := base.Field(t.TagField); !ok {
		p.report(Problem{Struct: t.BaseNode, Field: t.TagField, Kind: ProblemMissingField, Detail: "base node has no tag field"})
	}

	for _, st := range fam.Members() {
		if st.Name == t.BaseNode {
			continue
		}
		var prog *Program
		switch {
		case t.Container != nil && t.Container.Struct == st.Name:
			prog = c.containerProgram(p, st, t.Container)
		case t.Union(st.Name) != nil:
			prog = c.unionProgram(p, st, t.Union(st.Name))
		default:
			prog = c.genericProgram(p, st)
		}
		if tag := t.TagConst(st.Name); hasConstant(s, tag) {
			v, _ := s.Constant(tag)
			prog.Tag = tag
			plan.Dispatch = append(plan.Dispatch, DispatchEntry{Tag: tag, Value: v, Struct: st.Name})
		}
		plan.Programs = append(plan.Programs, prog)
	}

	if len(p.problems) > 0 {
		return nil, &BatchError{Version: t.Version, Problems: p.problems}
	}
	plan.buildIndex()
	return plan, nil
}

func hasConstant(s *schema.Schema, name string) bool {
	_, ok := s.Constant(name)
	return ok
}

func (c *classifierImpl) classifyField(p *pass, st *schema.Struct, f schema.Field) Decision {
	for _, r := range c.rules {
		if d, ok := r.Try(p.ctx, st, f); ok {
			return d
		}
	}
	return skip()
}

func (c *classifierImpl) genericProgram(p *pass, st *schema.Struct) *Program {
	prog := &Program{Struct: st.Name, Kind: ProgramGeneric}
	for _, f := range st.Fields {
		if f.Name == "" || f.Name == "_" {
			continue
		}
		d := c.classifyField(p, st, f)
		switch {
		case d.Problem != nil:
			p.report(*d.Problem)
		case d.Step != nil:
			prog.Steps = append(prog.Steps, *d.Step)
		}
	}
	return prog
}

// unionSteps classifies named union fields. Each must reference nodes.
func (c *classifierImpl) unionSteps(p *pass, st *schema.Struct, names []string) []Step {
	var out []Step
	for _, name := range names {
		f, ok := st.Field(name)
		if !ok {
			p.report(Problem{Struct: st.Name, Field: name, Kind: ProblemMissingField, Detail: "union rule names a missing field"})
			continue
		}
		d := c.classifyField(p, st, f)
		switch {
		case d.Problem != nil:
			p.report(*d.Problem)
		case d.Step == nil || !d.Step.Child():
			p.report(Problem{
				Struct: st.Name,
				Field:  name,
				Shape:  f.Type.String(),
				Kind:   ProblemShape,
				Detail: "union field is not a node reference",
			})
		default:
			out = append(out, *d.Step)
		}
	}
	return out
}

func (c *classifierImpl) unionProgram(p *pass, st *schema.Struct, u *rules.Union) *Program {
	up := &UnionProgram{Discriminant: u.Discriminant}
	if f, ok := st.Field(u.Discriminant); !ok {
		p.report(Problem{Struct: st.Name, Field: u.Discriminant, Kind: ProblemMissingField, Detail: "discriminant field is missing"})
	} else if !p.ctx.Schema.IsScalar(f.Type) {
		p.report(Problem{Struct: st.Name, Field: u.Discriminant, Shape: f.Type.String(), Kind: ProblemShape, Detail: "discriminant is not a scalar"})
	}

	up.Prefix = c.unionSteps(p, st, u.Prefix)
	for _, b := range u.Branches {
		v, ok := p.ctx.Schema.Constant(b.Const)
		if !ok {
			p.report(Problem{Struct: st.Name, Field: u.Discriminant, Kind: ProblemMissingConstant, Detail: "branch constant " + b.Const + " is not defined"})
		}
		up.Branches = append(up.Branches, BranchProgram{
			Const: b.Const,
			Value: v,
			Steps: c.unionSteps(p, st, b.Fields),
		})
	}
	up.Suffix = c.unionSteps(p, st, u.Suffix)

	return &Program{Struct: st.Name, Kind: ProgramUnion, Union: up}
}

func (c *classifierImpl) containerProgram(p *pass, st *schema.Struct, ct *rules.Container) *Program {
	need := func(owner *schema.Struct, field, what string) {
		if field == "" {
			return
		}
		if _, ok := owner.Field(field); !ok {
			p.report(Problem{Struct: owner.Name, Field: field, Kind: ProblemMissingField, Detail: "container " + what + " field is missing"})
		}
	}

	need(st, ct.Length, "length")
	if ct.Shape == rules.ShapeLinked {
		need(st, ct.Head, "head")
	} else {
		need(st, ct.Elems, "elements")
	}

	cell := p.ctx.Schema.Struct(ct.Cell)
	if cell == nil {
		p.report(Problem{Struct: ct.Cell, Kind: ProblemMissingStruct, Detail: "container cell struct is missing"})
	} else {
		if msg := p.ctx.checkPath(cell, ct.Value); msg != "" {
			p.report(Problem{Struct: ct.Cell, Field: ct.Value[0], Kind: ProblemMissingField, Detail: "container value: " + msg})
		}
		if ct.Shape == rules.ShapeLinked {
			need(cell, ct.Next, "next")
		}
	}

	if !hasConstant(p.ctx.Schema, p.ctx.Table.TagConst(st.Name)) {
		p.report(Problem{Struct: st.Name, Kind: ProblemMissingConstant, Detail: "container tag " + p.ctx.Table.TagConst(st.Name) + " is not defined"})
	}
	return &Program{Struct: st.Name, Kind: ProgramContainer, Container: ct}
}
