package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seitarof/gen-nodewalk/internal/schema"
)

func st(name string, firstTypes ...schema.TypeRef) *schema.Struct {
	s := &schema.Struct{Name: name}
	for i, t := range firstTypes {
		s.Fields = append(s.Fields, schema.Field{Name: "f" + string(rune('a'+i)), Type: t})
	}
	return s
}

func names(structs []*schema.Struct) []string {
	out := make([]string, 0, len(structs))
	for _, s := range structs {
		out = append(out, s.Name)
	}
	return out
}

// testSchema:
//
//	Node        (NodeTag)
//	Plan        (NodeTag)
//	├── Scan
//	│   └── SeqScan
//	└── Agg
//	Expr        (NodeTag)
//	└── Var
//	Unrelated   (int)
//	└── UChild
//	Empty
func testSchema() *schema.Schema {
	tag := schema.Named("NodeTag")
	return schema.New([]*schema.Struct{
		st("Node", tag),
		st("Plan", tag, schema.Pointer(schema.Named("Plan"))),
		st("Scan", schema.Named("Plan"), schema.Primitive("uint32")),
		st("SeqScan", schema.Named("Scan")),
		st("Agg", schema.Named("Plan"), schema.Primitive("int32")),
		st("Expr", tag),
		st("Var", schema.Named("Expr"), schema.Primitive("int16")),
		st("Unrelated", schema.Primitive("int")),
		st("UChild", schema.Named("Unrelated")),
		st("Empty"),
	}, nil)
}

func TestBuild_Edges(t *testing.T) {
	g, err := Build(testSchema())
	require.NoError(t, err)

	require.Equal(t, 10, g.Len())
	require.Equal(t, "Plan", g.Parent("Scan").Name)
	require.Equal(t, "Scan", g.Parent("SeqScan").Name)
	require.Nil(t, g.Parent("Plan"))
	require.Nil(t, g.Parent("Nope"))
	require.Equal(t, []string{"Scan", "Agg"}, names(g.Children("Plan")))
	require.Equal(t, []string{"Scan", "SeqScan", "Agg"}, names(g.Descendants("Plan")))
	require.Equal(t, []string{"Scan", "Plan"}, names(g.Ancestors("SeqScan")))
	require.Equal(t, []string{"Node", "Plan", "Expr", "Unrelated", "Empty"}, names(g.Roots()))

	i, ok := g.Index("Agg")
	require.True(t, ok)
	d := g.Descriptor(i)
	parent, _ := g.Index("Plan")
	require.Equal(t, parent, d.Parent)
}

func TestBuild_EmptyStructIsParentlessRoot(t *testing.T) {
	g, err := Build(testSchema())
	require.NoError(t, err)

	require.Nil(t, g.Parent("Empty"))
	require.Empty(t, g.Children("Empty"))
	require.Contains(t, names(g.Roots()), "Empty")
}

func TestBuild_OnlyFirstFieldMatters(t *testing.T) {
	s := schema.New([]*schema.Struct{
		st("Plan", schema.Named("NodeTag")),
		st("Holder", schema.Primitive("int"), schema.Named("Plan")),
		st("PtrFirst", schema.Pointer(schema.Named("Plan"))),
	}, nil)
	g, err := Build(s)
	require.NoError(t, err)

	require.Nil(t, g.Parent("Holder"))
	require.Nil(t, g.Parent("PtrFirst"), "a pointer to a struct is not embedding")
	require.Empty(t, g.Children("Plan"))
}

func TestBuild_RejectsDuplicateNames(t *testing.T) {
	s := schema.New([]*schema.Struct{
		st("Plan", schema.Named("NodeTag")),
		st("Plan", schema.Primitive("int")),
	}, nil)
	_, err := Build(s)
	require.ErrorIs(t, err, ErrInvariant)
	require.ErrorContains(t, err, "declared twice")
}

func TestBuild_RejectsParentCycle(t *testing.T) {
	s := schema.New([]*schema.Struct{
		st("Root", schema.Named("NodeTag")),
		st("A", schema.Named("B")),
		st("B", schema.Named("C")),
		st("C", schema.Named("A")),
	}, nil)
	_, err := Build(s)
	require.ErrorIs(t, err, ErrInvariant)

	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, "own ancestor", ie.Message[len(ie.Message)-len("own ancestor"):])
	require.Len(t, ie.Path, 4)
}
