package walk

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/seitarof/gen-nodewalk/internal/classifier"
	"github.com/seitarof/gen-nodewalk/internal/graph"
	"github.com/seitarof/gen-nodewalk/internal/rules"
	"github.com/seitarof/gen-nodewalk/internal/schema"
)

const (
	tagList     = 1
	tagIntList  = 2
	tagAlias    = 3
	tagVar      = 4
	tagPlan     = 10
	tagAgg      = 11
	tagResult   = 12
	tagAggState = 20
	tagQuery    = 30
	tagRTE      = 31
)

func buildPlan(t *testing.T, name string, v rules.Version) *classifier.Plan {
	t.Helper()
	s, err := schema.LoadFile(filepath.Join("..", "..", "testdata", "schemas", name+".yaml"))
	require.NoError(t, err)
	g, err := graph.Build(s)
	require.NoError(t, err)
	set, err := rules.Default()
	require.NoError(t, err)
	tbl, err := set.For(v)
	require.NoError(t, err)
	fam, err := graph.Discover(g, tbl.TagType)
	require.NoError(t, err)
	plan, err := classifier.New(tbl).Classify(s, fam)
	require.NoError(t, err)
	return plan
}

func newVar(no int) *Object {
	return NewObject("Var", tagVar, map[string]any{"varno": no, "varattno": 1})
}

type event struct {
	Path string
	Exit bool
	Type string
}

func events(t *testing.T, w *Walker, obj *Object) []event {
	t.Helper()
	var out []event
	require.NoError(t, w.Walk(obj, func(p *PointerPath, n *Object) {
		if p == nil {
			out = append(out, event{Exit: true, Type: n.Type})
			return
		}
		out = append(out, event{Path: p.String(), Type: n.Type})
	}))
	return out
}

var versions = []struct {
	schema string
	v      rules.Version
	shape  rules.Shape
}{
	{"pg12", rules.V12, rules.ShapeLinked},
	{"pg13", rules.V13, rules.ShapeArray},
}

func TestWalk_ContainerShapesLookTheSame(t *testing.T) {
	want := []event{
		{Path: "(0)", Type: "Var"}, {Exit: true, Type: "Var"},
		{Path: "(1)", Type: "Var"}, {Exit: true, Type: "Var"},
		{Path: "(2)", Type: "Var"}, {Exit: true, Type: "Var"},
	}
	for _, tc := range versions {
		t.Run(tc.v.String(), func(t *testing.T) {
			plan := buildPlan(t, tc.schema, tc.v)
			c := plan.Container().Container
			require.Equal(t, tc.shape, c.Shape)

			list := ListOf(c, tagList, newVar(1), newVar(2), newVar(3))
			if diff := cmp.Diff(want, events(t, New(plan, nil), list)); diff != "" {
				t.Fatalf("events mismatch (-want +got):\n%s", diff)
			}

			var ancestors []*Object
			require.NoError(t, New(plan, nil).Walk(list, func(p *PointerPath, _ *Object) {
				if p != nil {
					require.Equal(t, AccessListElement, p.Access)
					ancestors = append(ancestors, p.Ancestor)
				}
			}))
			require.Equal(t, []*Object{list, list, list}, ancestors)
		})
	}
}

func TestWalk_ContainerSkipsNullItems(t *testing.T) {
	for _, tc := range versions {
		t.Run(tc.v.String(), func(t *testing.T) {
			plan := buildPlan(t, tc.schema, tc.v)
			list := ListOf(plan.Container().Container, tagList, newVar(1), nil, newVar(3))
			want := []event{
				{Path: "(0)", Type: "Var"}, {Exit: true, Type: "Var"},
				{Path: "(2)", Type: "Var"}, {Exit: true, Type: "Var"},
			}
			require.Equal(t, want, events(t, New(plan, nil), list))
		})
	}
}

func TestWalk_ContainerOnlyWalksPointerLists(t *testing.T) {
	plan := buildPlan(t, "pg13", rules.V13)
	w := New(plan, nil)
	ints := ListOf(plan.Container().Container, tagIntList, newVar(1))

	calls := 0
	require.NoError(t, w.walkProgram(plan.Container(), ints, func(*PointerPath, *Object) { calls++ }))
	require.Zero(t, calls)
}

func TestWalk_LinkedListStopsAtLength(t *testing.T) {
	plan := buildPlan(t, "pg12", rules.V12)
	list := ListOf(plan.Container().Container, tagList, newVar(1), newVar(2), newVar(3))
	list.Fields["length"] = 2

	got := events(t, New(plan, nil), list)
	require.Len(t, got, 4)
	require.Equal(t, "(1)", got[2].Path)
}

func TestWalk_ArrayListShorterThanLength(t *testing.T) {
	plan := buildPlan(t, "pg13", rules.V13)
	list := ListOf(plan.Container().Container, tagList, newVar(1))
	list.Fields["length"] = 4

	err := New(plan, nil).Walk(list, func(*PointerPath, *Object) {})
	require.ErrorContains(t, err, "length is 4 but elements holds 1 cells")
}

func TestWalk_BoundedArray(t *testing.T) {
	plan := buildPlan(t, "pg13", rules.V13)
	w := New(plan, nil)
	aggState := func(fields map[string]any) *Object { return NewObject("AggState", tagAggState, fields) }
	embed := []event{{Path: "ss", Type: "PlanState"}, {Exit: true, Type: "PlanState"}}

	t.Run("zero bound walks nothing", func(t *testing.T) {
		got := events(t, w, aggState(map[string]any{
			"numaggs":     0,
			"aggcontexts": []any{newVar(1), newVar(2)},
		}))
		require.Equal(t, embed, got)
	})

	t.Run("bound slices the array", func(t *testing.T) {
		got := events(t, w, aggState(map[string]any{
			"numaggs":     2,
			"aggcontexts": []any{nil, newVar(2), newVar(3)},
		}))
		want := append(embed, event{Path: "aggcontexts[1]", Type: "Var"}, event{Exit: true, Type: "Var"})
		require.Equal(t, want, got)
	})

	t.Run("bound past the array", func(t *testing.T) {
		err := w.Walk(aggState(map[string]any{
			"numaggs":     3,
			"aggcontexts": []any{newVar(1), newVar(2)},
		}), func(*PointerPath, *Object) {})
		require.ErrorContains(t, err, "AggState.aggcontexts: bound numaggs is 3 but the array holds 2 elements")
	})

	t.Run("unset bound field", func(t *testing.T) {
		err := w.Walk(aggState(map[string]any{"aggcontexts": []any{}}), func(*PointerPath, *Object) {})
		require.ErrorContains(t, err, "field numaggs is not set")
	})
}

func TestFieldEnv(t *testing.T) {
	e, err := rules.ParseBound("bms_num_members(valid) + n.count*2")
	require.NoError(t, err)

	obj := NewObject("X", 0, map[string]any{
		"valid": []any{1, 4, 9},
		"n":     NewObject("N", 0, map[string]any{"count": int32(2)}),
	})
	got, err := e.Eval(&fieldEnv{obj: obj, helpers: DefaultHelpers()})
	require.NoError(t, err)
	require.Equal(t, int64(7), got)

	obj.Fields["n"] = nil
	_, err = e.Eval(&fieldEnv{obj: obj, helpers: DefaultHelpers()})
	require.ErrorContains(t, err, "n is null or not a struct")

	_, err = e.Eval(&fieldEnv{obj: obj, helpers: map[string]Helper{}})
	require.ErrorContains(t, err, "helper bms_num_members is not registered")
}

func rte(c *rules.Container, kind any) *Object {
	empty := func() *Object { return ListOf(c, tagList) }
	return NewObject("RangeTblEntry", tagRTE, map[string]any{
		"rtekind":          kind,
		"alias":            NewObject("Alias", tagAlias, nil),
		"eref":             NewObject("Alias", tagAlias, nil),
		"tablesample":      newVar(1),
		"subquery":         NewObject("Query", tagQuery, nil),
		"joinaliasvars":    empty(),
		"joinleftcols":     empty(),
		"joinrightcols":    empty(),
		"join_using_alias": NewObject("Alias", tagAlias, nil),
		"functions":        empty(),
		"tablefunc":        newVar(2),
		"values_lists":     empty(),
		"coltypes":         empty(),
		"coltypmods":       empty(),
		"colcollations":    empty(),
		"securityQuals":    empty(),
	})
}

func topFields(t *testing.T, w *Walker, obj *Object) []string {
	t.Helper()
	visits, err := w.Record(obj)
	require.NoError(t, err)
	var out []string
	for _, v := range visits {
		if v.Depth == 0 {
			out = append(out, v.Field)
		}
	}
	return out
}

func TestWalk_UnionFollowsDiscriminant(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		v      rules.Version
		kind   any
		want   []string
	}{
		{"join pg14", "pg13", rules.V14, 2, []string{"alias", "eref", "joinaliasvars", "joinleftcols", "joinrightcols", "join_using_alias", "securityQuals"}},
		{"join pg13", "pg13", rules.V13, 2, []string{"alias", "eref", "joinaliasvars", "joinleftcols", "joinrightcols", "securityQuals"}},
		{"join pg12", "pg12", rules.V12, 2, []string{"alias", "eref", "joinaliasvars", "securityQuals"}},
		{"subquery", "pg13", rules.V14, 1, []string{"alias", "eref", "subquery", "securityQuals"}},
		{"subquery by name", "pg13", rules.V14, "RTEKind_RTE_SUBQUERY", []string{"alias", "eref", "subquery", "securityQuals"}},
		{"values", "pg13", rules.V14, 5, []string{"alias", "eref", "values_lists", "coltypes", "coltypmods", "colcollations", "securityQuals"}},
		{"result has no branch fields", "pg13", rules.V14, 8, []string{"alias", "eref", "securityQuals"}},
		{"unknown kind", "pg13", rules.V14, 99, []string{"alias", "eref", "securityQuals"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := buildPlan(t, tc.schema, tc.v)
			w := New(plan, nil)
			got := topFields(t, w, rte(plan.Container().Container, tc.kind))
			require.Equal(t, tc.want, got)
		})
	}
}

func TestWalk_UnionBranchesAreDisjoint(t *testing.T) {
	plan := buildPlan(t, "pg13", rules.V14)
	w := New(plan, nil)
	c := plan.Container().Container

	join := topFields(t, w, rte(c, 2))
	sub := topFields(t, w, rte(c, 1))
	shared := map[string]bool{"alias": true, "eref": true, "securityQuals": true}
	seen := map[string]bool{}
	for _, f := range join {
		if !shared[f] {
			seen[f] = true
		}
	}
	for _, f := range sub {
		require.False(t, seen[f], "field %s walked under both discriminants", f)
	}
}

func TestWalk_EmbedUsesConcreteProgram(t *testing.T) {
	plan := buildPlan(t, "pg13", rules.V13)
	// The embedded Plan carries the Agg tag; dispatching it would walk Agg
	// again.
	agg := NewObject("Agg", tagAgg, map[string]any{
		"plan": NewObject("Plan", tagAgg, map[string]any{"lefttree": NewObject("Plan", tagPlan, nil)}),
	})
	want := []event{
		{Path: "plan", Type: "Plan"},
		{Path: "lefttree", Type: "Plan"},
		{Exit: true, Type: "Plan"},
		{Exit: true, Type: "Plan"},
	}
	require.Equal(t, want, events(t, New(plan, nil), agg))
}

func TestWalk_FixedArray(t *testing.T) {
	plan := buildPlan(t, "pg13", rules.V13)
	w := New(plan, nil)

	p := NewObject("Plan", tagPlan, map[string]any{"initPlan": []any{nil, NewObject("Plan", tagPlan, nil)}})
	require.Equal(t, []event{{Path: "initPlan[1]", Type: "Plan"}, {Exit: true, Type: "Plan"}}, events(t, w, p))

	p.Fields["initPlan"] = []any{nil, nil, nil}
	require.ErrorContains(t, w.Walk(p, func(*PointerPath, *Object) {}), "more than its length 2")
}

func TestWalk_UnknownTagIsNoop(t *testing.T) {
	plan := buildPlan(t, "pg13", rules.V13)
	w := New(plan, nil)
	obj := NewObject("Mystery", 999, map[string]any{"lefttree": NewObject("Plan", tagPlan, nil)})

	require.Empty(t, events(t, w, obj))
	out, err := w.Render(obj)
	require.NoError(t, err)
	require.Equal(t, "<unknown 999>", out)

	out, err = w.Render(nil)
	require.NoError(t, err)
	require.Equal(t, "<>", out)
}

func TestRender_Grammar(t *testing.T) {
	plan := buildPlan(t, "pg13", rules.V13)
	w := New(plan, nil)
	c := plan.Container().Container

	tests := []struct {
		name string
		obj  *Object
		want string
	}{
		{
			"embed, container and fixed array",
			NewObject("Result", tagResult, map[string]any{"resconstantqual": ListOf(c, tagList, newVar(7), nil)}),
			"{Result :plan {Plan :type_ <> :startup_cost <> :targetlist <> :qual <> :lefttree <> :righttree <> :initPlan [<> <>]}" +
				" :resconstantqual ({Var :varno 7 :varattno 1} <>)}",
		},
		{
			"union by constant name",
			NewObject("RangeTblEntry", tagRTE, map[string]any{"rtekind": "RTEKind_RTE_RESULT"}),
			`{RangeTblEntry :rtekind "RTEKind_RTE_RESULT" :alias <> :eref <> :securityQuals <>}`,
		},
		{
			"bounded array",
			NewObject("AggState", tagAggState, map[string]any{"numaggs": 1, "aggcontexts": []any{newVar(3), newVar(4)}}),
			"{AggState :ss {PlanState :type_ <> :plan <>} :numaggs 1 :aggcontexts [{Var :varno 3 :varattno 1}]}",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := w.Render(tc.obj)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func roundTripTrees(c *rules.Container) map[string]*Object {
	return map[string]*Object{
		"plan tree": NewObject("Agg", tagAgg, map[string]any{
			"plan": NewObject("Plan", tagAgg, map[string]any{
				"startup_cost": 2.5,
				"targetlist":   ListOf(c, tagList, newVar(1), nil, newVar(2)),
				"lefttree": NewObject("Result", tagResult, map[string]any{
					"resconstantqual": ListOf(c, tagList, newVar(3)),
				}),
				"righttree": NewObject("Plan", 999, nil),
				"initPlan":  []any{nil, NewObject("Plan", tagPlan, map[string]any{"qual": ListOf(c, tagList)})},
			}),
			"aggstrategy": 1,
			"numCols":     3,
		}),
		"query tree": NewObject("Query", tagQuery, map[string]any{
			"commandType": 1,
			"rtable": ListOf(c, tagList,
				NewObject("RangeTblEntry", tagRTE, map[string]any{
					"rtekind":       2,
					"alias":         NewObject("Alias", tagAlias, map[string]any{"colnames": ListOf(c, tagList, newVar(5))}),
					"joinaliasvars": ListOf(c, tagList, newVar(6), newVar(7)),
				}),
				nil,
				NewObject("RangeTblEntry", tagRTE, map[string]any{
					"rtekind":  1,
					"subquery": NewObject("Query", tagQuery, map[string]any{"jointree": newVar(8)}),
				}),
			),
			"jointree": NewObject("AggState", tagAggState, map[string]any{
				"numaggs":     2,
				"aggcontexts": []any{newVar(9), nil},
			}),
		}),
	}
}

func TestRender_RoundTripMatchesWalk(t *testing.T) {
	for _, tc := range versions {
		plan := buildPlan(t, tc.schema, tc.v)
		w := New(plan, nil)
		for name, obj := range roundTripTrees(plan.Container().Container) {
			t.Run(tc.v.String()+"/"+name, func(t *testing.T) {
				walked, err := w.Record(obj)
				require.NoError(t, err)
				require.NotEmpty(t, walked)

				text, err := w.Render(obj)
				require.NoError(t, err)
				parsed, err := ParseRendered(text)
				require.NoError(t, err)

				if diff := cmp.Diff(walked, parsed.Visits()); diff != "" {
					t.Fatalf("visit order mismatch (-walk +render):\n%s\nrendered: %s", diff, text)
				}
			})
		}
	}
}

func TestParseRendered(t *testing.T) {
	v, err := ParseRendered(`{Var :varno "a b" :x <unknown 3> :y [<> 1] :z ()}`)
	require.NoError(t, err)
	require.Equal(t, ValueNode, v.Kind)
	require.Equal(t, "Var", v.Type)
	require.Len(t, v.Fields, 4)
	require.Equal(t, `"a b"`, v.Fields[0].Value.Text)
	require.Equal(t, ValueUnknown, v.Fields[1].Value.Kind)
	require.Equal(t, "3", v.Fields[1].Value.Text)
	require.Equal(t, ValueArray, v.Fields[2].Value.Kind)
	require.Equal(t, ValueNull, v.Fields[2].Value.Items[0].Kind)
	require.Equal(t, ValueList, v.Fields[3].Value.Kind)
	require.Equal(t, []Visit{
		{Depth: 0, Access: AccessField, Field: "x"},
		{Depth: 0, Access: AccessField, Field: "z"},
	}, v.Visits())

	for _, bad := range []string{
		"{Var :varno",
		"{ :x 1}",
		"<what>",
		"{Var} extra",
		"[1 2",
		"{Var varno 1}",
		"",
	} {
		_, err := ParseRendered(bad)
		require.Error(t, err, "input %q", bad)
	}
}

func sample(name string) string {
	return filepath.Join("..", "..", "testdata", "samples", name)
}

func TestLoadSample(t *testing.T) {
	t.Run("agg", func(t *testing.T) {
		plan := buildPlan(t, "pg13", rules.V13)
		w := New(plan, nil)
		obj, err := LoadSample(sample("agg.yaml"))
		require.NoError(t, err)
		w.FillTags(obj)
		require.Equal(t, int64(tagAgg), obj.Tag)

		text, err := w.Render(obj)
		require.NoError(t, err)
		require.Equal(t,
			"{Agg :plan {Plan :type_ <> :startup_cost 1.5 :targetlist <> :qual <> :lefttree {Result"+
				" :plan {Plan :type_ <> :startup_cost <> :targetlist <> :qual <> :lefttree <> :righttree <> :initPlan [<> <>]}"+
				" :resconstantqual {Var :varno 1 :varattno 2}} :righttree <> :initPlan [<> <>]} :aggstrategy 0 :numCols 2}",
			text)

		visits, err := w.Record(obj)
		require.NoError(t, err)
		require.Equal(t, []Visit{
			{Depth: 0, Access: AccessField, Field: "plan"},
			{Depth: 1, Access: AccessField, Field: "lefttree"},
			{Depth: 2, Access: AccessField, Field: "plan"},
			{Depth: 2, Access: AccessField, Field: "resconstantqual"},
		}, visits)
	})

	t.Run("query", func(t *testing.T) {
		plan := buildPlan(t, "pg13", rules.V13)
		w := New(plan, nil)
		obj, err := LoadSample(sample("query_pg13.yaml"))
		require.NoError(t, err)
		w.FillTags(obj)

		visits, err := w.Record(obj)
		require.NoError(t, err)
		require.Equal(t, []Visit{
			{Depth: 0, Access: AccessField, Field: "rtable"},
			{Depth: 1, Access: AccessListElement, Index: 0},
			{Depth: 2, Access: AccessField, Field: "eref"},
			{Depth: 2, Access: AccessField, Field: "subquery"},
			{Depth: 0, Access: AccessField, Field: "jointree"},
		}, visits)
	})
}
