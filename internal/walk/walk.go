// Package walk interprets traversal programs over synthetic node graphs.
//
// A Walker follows a classifier.Plan the same way emitted Go code does:
// dispatch on the runtime tag, one enter and one exit callback per visited
// child, embedded structs walked through their concrete program, bounded
// arrays sliced by their evaluated bound and the container walked in the
// physical shape of the plan's version. Tests and the explain mode use it to
// check programs without compiling generated code.
package walk

import (
	"fmt"
	"strings"

	"github.com/seitarof/gen-nodewalk/internal/classifier"
	"github.com/seitarof/gen-nodewalk/internal/rules"
)

// AccessKind identifies how a child was reached from its parent.
type AccessKind int

const (
	// AccessField is a named pointer or embedded field.
	AccessField AccessKind = iota
	// AccessArrayElement is an index within a pointer array field.
	AccessArrayElement
	// AccessListElement is a position within the container.
	AccessListElement
)

func (k AccessKind) String() string {
	switch k {
	case AccessArrayElement:
		return "array"
	case AccessListElement:
		return "list"
	default:
		return "field"
	}
}

// PointerPath describes one visited child. Field is empty for list
// positions. Ancestor is the node owning the field or list.
type PointerPath struct {
	Access   AccessKind
	Field    string
	Index    int
	Ancestor *Object
}

func (p *PointerPath) String() string {
	switch p.Access {
	case AccessArrayElement:
		return fmt.Sprintf("%s[%d]", p.Field, p.Index)
	case AccessListElement:
		return fmt.Sprintf("(%d)", p.Index)
	default:
		return p.Field
	}
}

// WalkFunc receives each child twice: on enter with its path, on exit with a
// nil path.
type WalkFunc func(path *PointerPath, node *Object)

// Helper implements a bound expression helper on raw argument values.
type Helper func(args []any) (int64, error)

// DefaultHelpers returns the helpers the default rule tables reference.
// bms_num_members counts the members of a bitmapset given as a sequence.
func DefaultHelpers() map[string]Helper {
	return map[string]Helper{
		"bms_num_members": func(args []any) (int64, error) {
			if len(args) != 1 {
				return 0, fmt.Errorf("bms_num_members takes 1 argument, got %d", len(args))
			}
			switch set := args[0].(type) {
			case nil:
				return 0, nil
			case []any:
				return int64(len(set)), nil
			default:
				return 0, fmt.Errorf("bms_num_members: %T is not a set", args[0])
			}
		},
	}
}

// Walker walks and renders synthetic nodes with one plan.
type Walker struct {
	plan    *classifier.Plan
	helpers map[string]Helper
	tags    map[string]int64
}

// New returns a walker. A nil helpers map uses DefaultHelpers.
func New(plan *classifier.Plan, helpers map[string]Helper) *Walker {
	if helpers == nil {
		helpers = DefaultHelpers()
	}
	tags := make(map[string]int64, len(plan.Dispatch))
	for _, d := range plan.Dispatch {
		tags[d.Struct] = d.Value
	}
	return &Walker{plan: plan, helpers: helpers, tags: tags}
}

// Plan returns the plan the walker follows.
func (w *Walker) Plan() *classifier.Plan { return w.plan }

// FillTags sets the tag of every node in the graph that has none, using the
// dispatch value of its type. Types without a tag constant keep 0.
func (w *Walker) FillTags(obj *Object) {
	if obj == nil {
		return
	}
	if obj.Tag == 0 {
		if v, ok := w.tags[obj.Type]; ok {
			obj.Tag = v
		}
	}
	for _, v := range obj.Fields {
		switch x := v.(type) {
		case *Object:
			w.FillTags(x)
		case []any:
			for _, item := range x {
				if o, ok := item.(*Object); ok {
					w.FillTags(o)
				}
			}
		}
	}
}

// Walk dispatches obj on its tag and walks its children. Unknown tags walk
// nothing.
func (w *Walker) Walk(obj *Object, fn WalkFunc) error {
	if obj == nil {
		return nil
	}
	prog, ok := w.plan.ByTag(obj.Tag)
	if !ok || prog == nil {
		return nil
	}
	return w.walkProgram(prog, obj, fn)
}

func (w *Walker) walkProgram(prog *classifier.Program, obj *Object, fn WalkFunc) error {
	switch prog.Kind {
	case classifier.ProgramContainer:
		return w.walkContainer(prog.Container, obj, fn)
	case classifier.ProgramUnion:
		return w.walkUnion(prog.Union, obj, fn)
	default:
		return w.walkSteps(prog.Steps, obj, fn)
	}
}

func (w *Walker) walkSteps(steps []classifier.Step, obj *Object, fn WalkFunc) error {
	for _, s := range steps {
		if err := w.walkStep(s, obj, fn); err != nil {
			return fmt.Errorf("%s.%s: %w", obj.Type, s.Field, err)
		}
	}
	return nil
}

func (w *Walker) walkStep(s classifier.Step, obj *Object, fn WalkFunc) error {
	switch s.Kind {
	case classifier.StepEmbed:
		child, err := w.embedded(s, obj)
		if err != nil {
			return err
		}
		fn(&PointerPath{Access: AccessField, Field: s.Field, Ancestor: obj}, child)
		if prog := w.plan.Program(s.Target); prog != nil {
			if err := w.walkProgram(prog, child, fn); err != nil {
				return err
			}
		}
		fn(nil, child)
		return nil

	case classifier.StepPointer:
		child, err := nodeValue(obj.Fields[s.Field])
		if err != nil || child == nil {
			return err
		}
		return w.visit(&PointerPath{Access: AccessField, Field: s.Field, Ancestor: obj}, child, fn)

	case classifier.StepFixedArray, classifier.StepBoundedArray:
		items, err := w.elements(s, obj)
		if err != nil {
			return err
		}
		for i, item := range items {
			if item == nil {
				continue
			}
			path := &PointerPath{Access: AccessArrayElement, Field: s.Field, Index: i, Ancestor: obj}
			if err := w.visit(path, item, fn); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}

// visit is the enter, dispatch, exit sequence of one child.
func (w *Walker) visit(path *PointerPath, child *Object, fn WalkFunc) error {
	fn(path, child)
	if err := w.Walk(child, fn); err != nil {
		return err
	}
	fn(nil, child)
	return nil
}

// embedded returns the value of an embed step. An absent value is a zeroed
// struct that carries the outer tag.
func (w *Walker) embedded(s classifier.Step, obj *Object) (*Object, error) {
	child, err := nodeValue(obj.Fields[s.Field])
	if err != nil {
		return nil, err
	}
	if child == nil {
		child = NewObject(s.Target, obj.Tag, nil)
	}
	return child, nil
}

// elements returns the visible elements of an array step: all Len entries of
// a fixed array, the first bound entries of a bounded one.
func (w *Walker) elements(s classifier.Step, obj *Object) ([]*Object, error) {
	items, err := nodeList(obj.Fields[s.Field])
	if err != nil {
		return nil, err
	}
	if s.Kind == classifier.StepFixedArray {
		if len(items) > s.Len {
			return nil, fmt.Errorf("fixed array holds %d elements, more than its length %d", len(items), s.Len)
		}
		out := make([]*Object, s.Len)
		copy(out, items)
		return out, nil
	}

	n, err := s.Bound.Eval(&fieldEnv{obj: obj, helpers: w.helpers})
	if err != nil {
		return nil, fmt.Errorf("bound %s: %w", s.Bound, err)
	}
	if n <= 0 {
		return nil, nil
	}
	if int64(len(items)) < n {
		return nil, fmt.Errorf("bound %s is %d but the array holds %d elements", s.Bound, n, len(items))
	}
	return items[:n], nil
}

func (w *Walker) walkContainer(c *rules.Container, obj *Object, fn WalkFunc) error {
	if obj.Tag != w.tags[c.Struct] {
		return nil
	}
	items, err := w.listItems(c, obj)
	if err != nil {
		return err
	}
	for i, item := range items {
		if item == nil {
			continue
		}
		path := &PointerPath{Access: AccessListElement, Index: i, Ancestor: obj}
		if err := w.visit(path, item, fn); err != nil {
			return err
		}
	}
	return nil
}

// listItems reads the container elements in the container's physical shape.
// A linked list stops at a null next or after length cells.
func (w *Walker) listItems(c *rules.Container, obj *Object) ([]*Object, error) {
	n := int64(-1)
	if c.Length != "" {
		v, err := rules.ToInt64(obj.Fields[c.Length])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", obj.Type, c.Length, err)
		}
		n = v
	}

	var items []*Object
	switch c.Shape {
	case rules.ShapeLinked:
		cell, err := nodeValue(obj.Fields[c.Head])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", obj.Type, c.Head, err)
		}
		for i := int64(0); cell != nil && (n < 0 || i < n); i++ {
			item, err := cellValue(c, cell)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if cell, err = nodeValue(cell.Fields[c.Next]); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", c.Cell, c.Next, err)
			}
		}
	default:
		cells, err := nodeList(obj.Fields[c.Elems])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", obj.Type, c.Elems, err)
		}
		if n < 0 {
			n = int64(len(cells))
		}
		if int64(len(cells)) < n {
			return nil, fmt.Errorf("%s: length is %d but %s holds %d cells", obj.Type, n, c.Elems, len(cells))
		}
		for _, cell := range cells[:n] {
			if cell == nil {
				items = append(items, nil)
				continue
			}
			item, err := cellValue(c, cell)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// cellValue follows the value path of one cell.
func cellValue(c *rules.Container, cell *Object) (*Object, error) {
	cur := cell
	for i, name := range c.Value {
		v, err := nodeValue(cur.Fields[name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.Cell, strings.Join(c.Value[:i+1], "."), err)
		}
		if v == nil {
			return nil, nil
		}
		cur = v
	}
	return cur, nil
}

func (w *Walker) walkUnion(u *classifier.UnionProgram, obj *Object, fn WalkFunc) error {
	if err := w.walkSteps(u.Prefix, obj, fn); err != nil {
		return err
	}
	b, ok, err := branchOf(u, obj)
	if err != nil {
		return err
	}
	if ok {
		if err := w.walkSteps(b.Steps, obj, fn); err != nil {
			return err
		}
	}
	return w.walkSteps(u.Suffix, obj, fn)
}

// branchOf selects the branch for the discriminant. The value may be the
// integer or the constant name. A value without a branch selects nothing.
func branchOf(u *classifier.UnionProgram, obj *Object) (classifier.BranchProgram, bool, error) {
	switch v := obj.Fields[u.Discriminant].(type) {
	case nil:
		return classifier.BranchProgram{}, false, nil
	case string:
		b, ok := u.BranchByConst(v)
		return b, ok, nil
	default:
		n, err := rules.ToInt64(v)
		if err != nil {
			return classifier.BranchProgram{}, false, fmt.Errorf("%s.%s: %w", obj.Type, u.Discriminant, err)
		}
		b, ok := u.Branch(n)
		return b, ok, nil
	}
}

// fieldEnv evaluates bound expressions against the fields of one node.
type fieldEnv struct {
	obj     *Object
	helpers map[string]Helper
}

func (e *fieldEnv) Lookup(path []string) (any, error) {
	var cur any = e.obj
	for i, name := range path {
		o, ok := cur.(*Object)
		if !ok || o == nil {
			return nil, fmt.Errorf("%s is null or not a struct", strings.Join(path[:i], "."))
		}
		v, ok := o.Fields[name]
		if !ok {
			return nil, fmt.Errorf("field %s is not set", strings.Join(path[:i+1], "."))
		}
		cur = v
	}
	return cur, nil
}

func (e *fieldEnv) Call(name string, args []any) (int64, error) {
	h, ok := e.helpers[name]
	if !ok {
		return 0, fmt.Errorf("helper %s is not registered", name)
	}
	return h(args)
}

// Record walks obj and returns its enter events as visits.
func (w *Walker) Record(obj *Object) ([]Visit, error) {
	var out []Visit
	depth := 0
	err := w.Walk(obj, func(path *PointerPath, _ *Object) {
		if path == nil {
			depth--
			return
		}
		out = append(out, Visit{Depth: depth, Access: path.Access, Field: path.Field, Index: path.Index})
		depth++
	})
	return out, err
}
