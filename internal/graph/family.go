package graph

import (
	"sort"

	"github.com/seitarof/gen-nodewalk/internal/schema"
)

// TaggedRoots returns the arena indexes of structs whose first member's type
// is the discriminant tag type.
func TaggedRoots(g *Graph, tagType string) []int {
	var roots []int
	for i, d := range g.descriptors {
		first, ok := d.Struct.First()
		if !ok {
			continue
		}
		if first.Type.Kind == schema.KindNamed && first.Type.Name == tagType {
			roots = append(roots, i)
		}
	}
	return roots
}

// Family is the set of structs reachable from the tagged roots through child
// edges. Each member appears once.
type Family struct {
	members map[string]*schema.Struct
	sorted  []*schema.Struct
}

// BuildFamily runs an explicit-stack depth-first search from every root.
// A struct already in the family is skipped, so one reachable through two
// roots is recorded once. Reaching a struct that is still on the current
// path means the child edges loop, which is reported as an invariant
// violation.
func BuildFamily(g *Graph, roots []int) (*Family, error) {
	f := &Family{members: map[string]*schema.Struct{}}

	const (
		unseen = iota
		onPath
		finished
	)
	state := make([]int, len(g.descriptors))

	type frame struct {
		node int
		next int
	}
	for _, root := range roots {
		if state[root] != unseen {
			continue
		}
		state[root] = onPath
		f.add(g.descriptors[root].Struct)
		stack := []frame{{node: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := g.descriptors[top.node].Children
			if top.next >= len(children) {
				state[top.node] = finished
				stack = stack[:len(stack)-1]
				continue
			}
			child := children[top.next]
			top.next++

			switch state[child] {
			case finished:
				continue
			case onPath:
				path := make([]int, 0, len(stack)+1)
				for _, fr := range stack {
					path = append(path, fr.node)
				}
				return nil, &InvariantError{
					Struct:  g.descriptors[child].Struct.Name,
					Path:    g.namesOf(append(path, child)),
					Message: "descendant set is cyclic",
				}
			}
			state[child] = onPath
			f.add(g.descriptors[child].Struct)
			stack = append(stack, frame{node: child})
		}
	}

	sort.Slice(f.sorted, func(i, j int) bool { return f.sorted[i].Name < f.sorted[j].Name })
	return f, nil
}

// Discover builds the graph's node family for tagType in one step.
func Discover(g *Graph, tagType string) (*Family, error) {
	return BuildFamily(g, TaggedRoots(g, tagType))
}

func (f *Family) add(st *schema.Struct) {
	f.members[st.Name] = st
	f.sorted = append(f.sorted, st)
}

// Contains reports membership by struct name.
func (f *Family) Contains(name string) bool {
	_, ok := f.members[name]
	return ok
}

// Member returns the member named name, or nil.
func (f *Family) Member(name string) *schema.Struct {
	return f.members[name]
}

// Members returns every member sorted by name.
func (f *Family) Members() []*schema.Struct {
	return f.sorted
}

// Len returns the number of members.
func (f *Family) Len() int { return len(f.sorted) }
