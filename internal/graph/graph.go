// Package graph reconstructs the implicit single-inheritance hierarchy of a
// foreign schema. A struct's parent is the struct named by the type of its
// first member; the graph is an arena of descriptors addressed by index.
package graph

import (
	"fmt"

	"github.com/seitarof/gen-nodewalk/internal/schema"
)

// Descriptor is one arena slot. Parent is -1 for graph roots.
type Descriptor struct {
	Struct   *schema.Struct
	Parent   int
	Children []int
}

// Graph is the subtype forest over every struct of a schema. It is read-only
// once built.
type Graph struct {
	schema      *schema.Schema
	descriptors []Descriptor
	names       map[string]int
}

// Build links every struct to the struct its first member embeds. It fails
// on duplicate struct names and on parent cycles.
func Build(s *schema.Schema) (*Graph, error) {
	g := &Graph{
		schema:      s,
		descriptors: make([]Descriptor, len(s.Structs)),
		names:       make(map[string]int, len(s.Structs)),
	}

	for i, st := range s.Structs {
		if prev, ok := g.names[st.Name]; ok {
			return nil, &InvariantError{
				Struct:  st.Name,
				Message: fmt.Sprintf("declared twice (positions %d and %d), parent would be ambiguous", prev, i),
			}
		}
		g.names[st.Name] = i
		g.descriptors[i] = Descriptor{Struct: st, Parent: -1}
	}

	for i, st := range s.Structs {
		first, ok := st.First()
		if !ok || first.Type.Kind != schema.KindNamed {
			continue
		}
		parent, ok := g.names[first.Type.Name]
		if !ok {
			continue
		}
		g.descriptors[i].Parent = parent
		g.descriptors[parent].Children = append(g.descriptors[parent].Children, i)
	}

	if err := g.checkParentChains(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkParentChains walks every ancestor chain and fails when one loops.
func (g *Graph) checkParentChains() error {
	const (
		unseen = iota
		active
		done
	)
	state := make([]int, len(g.descriptors))
	for start := range g.descriptors {
		var chain []int
		i := start
		for i >= 0 && state[i] == unseen {
			state[i] = active
			chain = append(chain, i)
			i = g.descriptors[i].Parent
		}
		if i >= 0 && state[i] == active {
			return &InvariantError{
				Struct:  g.descriptors[i].Struct.Name,
				Path:    g.namesOf(append(chain, i)),
				Message: "struct is its own ancestor",
			}
		}
		for _, c := range chain {
			state[c] = done
		}
	}
	return nil
}

// Schema returns the schema the graph was built from.
func (g *Graph) Schema() *schema.Schema { return g.schema }

// Len returns the number of descriptors.
func (g *Graph) Len() int { return len(g.descriptors) }

// Descriptor returns the arena slot at i.
func (g *Graph) Descriptor(i int) Descriptor { return g.descriptors[i] }

// Index returns the arena index of the struct named name.
func (g *Graph) Index(name string) (int, bool) {
	i, ok := g.names[name]
	return i, ok
}

// Parent returns the parent of name, or nil for roots and unknown names.
func (g *Graph) Parent(name string) *schema.Struct {
	i, ok := g.names[name]
	if !ok || g.descriptors[i].Parent < 0 {
		return nil
	}
	return g.descriptors[g.descriptors[i].Parent].Struct
}

// Children returns the direct subtypes of name in schema order.
func (g *Graph) Children(name string) []*schema.Struct {
	i, ok := g.names[name]
	if !ok {
		return nil
	}
	out := make([]*schema.Struct, 0, len(g.descriptors[i].Children))
	for _, c := range g.descriptors[i].Children {
		out = append(out, g.descriptors[c].Struct)
	}
	return out
}

// Ancestors returns the parent chain of name, nearest first.
func (g *Graph) Ancestors(name string) []*schema.Struct {
	i, ok := g.names[name]
	if !ok {
		return nil
	}
	var out []*schema.Struct
	for p := g.descriptors[i].Parent; p >= 0; p = g.descriptors[p].Parent {
		out = append(out, g.descriptors[p].Struct)
	}
	return out
}

// Descendants returns every transitive subtype of name in depth-first
// preorder, excluding name itself.
func (g *Graph) Descendants(name string) []*schema.Struct {
	i, ok := g.names[name]
	if !ok {
		return nil
	}
	var out []*schema.Struct
	stack := reversed(g.descriptors[i].Children)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, g.descriptors[n].Struct)
		stack = append(stack, reversed(g.descriptors[n].Children)...)
	}
	return out
}

// Roots returns the structs with no parent, in schema order.
func (g *Graph) Roots() []*schema.Struct {
	var out []*schema.Struct
	for _, d := range g.descriptors {
		if d.Parent < 0 {
			out = append(out, d.Struct)
		}
	}
	return out
}

func (g *Graph) namesOf(idx []int) []string {
	names := make([]string, len(idx))
	for i, n := range idx {
		names[i] = g.descriptors[n].Struct.Name
	}
	return names
}

func reversed(in []int) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
