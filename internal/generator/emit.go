package generator

import (
	"github.com/dave/jennifer/jen"

	"github.com/seitarof/gen-nodewalk/internal/classifier"
	"github.com/seitarof/gen-nodewalk/internal/rules"
)

// emitter builds the traversal file of one plan. Every family struct gets
// Traverse, String and renderTo methods; the base node gets the tag
// dispatchers.
type emitter struct {
	plan *classifier.Plan
	base string
}

func newEmitter(plan *classifier.Plan) *emitter {
	return &emitter{plan: plan, base: plan.BaseNode}
}

func (e *emitter) file(pkg string) *jen.File {
	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by gen-nodewalk for " + e.plan.Version.String() + ". DO NOT EDIT.")

	e.support(f)
	e.dispatcher(f)
	for _, prog := range e.plan.Programs {
		switch prog.Kind {
		case classifier.ProgramContainer:
			e.container(f, prog)
		case classifier.ProgramUnion:
			e.union(f, prog)
		default:
			e.generic(f, prog)
		}
		e.stringer(f, prog.Struct)
	}
	return f
}

func (e *emitter) support(f *jen.File) {
	f.Comment("NodewalkSchemaVersion is the schema major version the traversals were generated for.")
	f.Const().Id("NodewalkSchemaVersion").Op("=").Lit(int(e.plan.Version))

	f.Comment("AccessKind identifies how a child was reached from its parent.")
	f.Type().Id("AccessKind").Int()
	f.Const().Defs(
		jen.Id("AccessField").Id("AccessKind").Op("=").Iota(),
		jen.Id("AccessArrayElement"),
		jen.Id("AccessListElement"),
	)

	f.Comment("PointerPath describes one visited child. Field is empty for list positions.")
	f.Type().Id("PointerPath").Struct(
		jen.Id("Access").Id("AccessKind"),
		jen.Id("Field").String(),
		jen.Id("Index").Int(),
		jen.Id("Ancestor").Op("*").Id(e.base),
	)

	f.Comment("WalkFunc receives each child twice: on enter with its path, on exit with a nil path.")
	f.Type().Id("WalkFunc").Func().Params(
		jen.Id("path").Op("*").Id("PointerPath"),
		jen.Id("node").Op("*").Id(e.base),
	)

	// nodewalkScalar quotes string-kinded values, named string types included.
	v := jen.Qual("reflect", "ValueOf").Call(jen.Id("v"))
	f.Func().Id(scalarFunc).Params(builderParam(), jen.Id("v").Interface()).Block(
		jen.If(
			jen.Id("rv").Op(":=").Add(v),
			jen.Id("rv").Dot("Kind").Call().Op("==").Qual("reflect", "String"),
		).Block(
			jen.Id("b").Dot("WriteString").Call(jen.Qual("strconv", "Quote").Call(jen.Id("rv").Dot("String").Call())),
			jen.Return(),
		),
		jen.Qual("fmt", "Fprintf").Call(jen.Id("b"), jen.Lit("%v"), jen.Id("v")),
	)
}

// scalarFunc writes one leaf value the way the sample renderer does.
const scalarFunc = "nodewalkScalar"

func (e *emitter) dispatcher(f *jen.File) {
	tag := jen.Id("n").Dot(e.plan.TagField)

	f.Comment("Traverse walks the children of n with the program of its runtime tag.")
	f.Comment("Tags without a program walk nothing.")
	f.Func().Params(e.recv(e.base)).Id("Traverse").Params(e.fnParam()).Block(
		jen.If(jen.Id("n").Op("==").Nil()).Block(jen.Return()),
		jen.Switch(tag.Clone()).BlockFunc(func(g *jen.Group) {
			for _, d := range e.plan.Dispatch {
				g.Case(jen.Id(d.Tag)).Block(
					e.cast(d.Struct, jen.Id("n")).Dot("Traverse").Call(jen.Id("fn")),
				)
			}
		}),
	)

	f.Func().Params(e.recv(e.base)).Id("renderTo").Params(builderParam()).Block(
		jen.If(jen.Id("n").Op("==").Nil()).Block(
			write("<>"),
			jen.Return(),
		),
		jen.Switch(tag.Clone()).BlockFunc(func(g *jen.Group) {
			for _, d := range e.plan.Dispatch {
				g.Case(jen.Id(d.Tag)).Block(
					e.cast(d.Struct, jen.Id("n")).Dot("renderTo").Call(jen.Id("b")),
				)
			}
			g.Default().Block(
				jen.Qual("fmt", "Fprintf").Call(jen.Id("b"), jen.Lit("<unknown %d>"), tag.Clone()),
			)
		}),
	)

	e.stringer(f, e.base)
}

func (e *emitter) generic(f *jen.File, prog *classifier.Program) {
	f.Func().Params(e.recv(prog.Struct)).Id("Traverse").Params(e.fnParam()).BlockFunc(func(g *jen.Group) {
		for _, s := range prog.Children() {
			g.Add(e.traverseStep(s))
		}
	})

	f.Func().Params(e.recv(prog.Struct)).Id("renderTo").Params(builderParam()).BlockFunc(func(g *jen.Group) {
		g.Add(write("{" + prog.Struct))
		for _, s := range prog.Steps {
			e.renderStep(g, s)
		}
		g.Add(write("}"))
	})
}

func (e *emitter) union(f *jen.File, prog *classifier.Program) {
	u := prog.Union
	disc := jen.Id("n").Dot(u.Discriminant)

	f.Func().Params(e.recv(prog.Struct)).Id("Traverse").Params(e.fnParam()).BlockFunc(func(g *jen.Group) {
		for _, s := range u.Prefix {
			g.Add(e.traverseStep(s))
		}
		g.Switch(disc.Clone()).BlockFunc(func(sw *jen.Group) {
			for _, b := range u.Branches {
				sw.Case(jen.Id(b.Const)).BlockFunc(func(c *jen.Group) {
					for _, s := range b.Steps {
						c.Add(e.traverseStep(s))
					}
				})
			}
		})
		for _, s := range u.Suffix {
			g.Add(e.traverseStep(s))
		}
	})

	f.Func().Params(e.recv(prog.Struct)).Id("renderTo").Params(builderParam()).BlockFunc(func(g *jen.Group) {
		g.Add(write("{" + prog.Struct + " :" + u.Discriminant + " "))
		g.Id(scalarFunc).Call(jen.Id("b"), disc.Clone())
		for _, s := range u.Prefix {
			e.renderStep(g, s)
		}
		g.Switch(disc.Clone()).BlockFunc(func(sw *jen.Group) {
			for _, b := range u.Branches {
				sw.Case(jen.Id(b.Const)).BlockFunc(func(c *jen.Group) {
					for _, s := range b.Steps {
						e.renderStep(c, s)
					}
				})
			}
		})
		for _, s := range u.Suffix {
			e.renderStep(g, s)
		}
		g.Add(write("}"))
	})
}

// container emits the List walk in the physical shape of the plan's
// version. Only the pointer-list tag is walked.
func (e *emitter) container(f *jen.File, prog *classifier.Program) {
	c := prog.Container
	item := e.asNode(selector(jen.Id("cell"), c.Value))
	tag := jen.Id("n").Dot(e.plan.TagField)

	visit := func(g *jen.Group) {
		g.If(jen.Id("child").Op(":=").Add(item.Clone()), jen.Id("child").Op("!=").Nil()).Block(
			e.visit(e.path("AccessListElement", "", jen.Id("i")))...,
		)
	}
	render := func(g *jen.Group) {
		g.If(jen.Id("i").Op(">").Lit(0)).Block(write(" "))
		g.Add(item.Clone().Dot("renderTo").Call(jen.Id("b")))
	}

	f.Func().Params(e.recv(prog.Struct)).Id("Traverse").Params(e.fnParam()).Block(
		jen.If(tag.Clone().Op("!=").Id(prog.Tag)).Block(jen.Return()),
		e.cells(c, visit),
	)
	f.Func().Params(e.recv(prog.Struct)).Id("renderTo").Params(builderParam()).Block(
		write("("),
		jen.If(tag.Clone().Op("==").Id(prog.Tag)).Block(e.cells(c, render)),
		write(")"),
	)
}

// cells loops over the container cells with i and cell in scope.
func (e *emitter) cells(c *rules.Container, body func(*jen.Group)) jen.Code {
	if c.Shape == rules.ShapeLinked {
		cond := jen.Id("cell").Op("!=").Nil()
		if c.Length != "" {
			cond = cond.Op("&&").Id("i").Op("<").Int().Call(jen.Id("n").Dot(c.Length))
		}
		return jen.For(
			jen.List(jen.Id("i"), jen.Id("cell")).Op(":=").List(jen.Lit(0), jen.Id("n").Dot(c.Head)),
			cond,
			jen.List(jen.Id("i"), jen.Id("cell")).Op("=").List(jen.Id("i").Op("+").Lit(1), jen.Id("cell").Dot(c.Next)),
		).BlockFunc(body)
	}
	return jen.If(
		jen.Id("n").Dot(c.Length).Op(">").Lit(0).Op("&&").Id("n").Dot(c.Elems).Op("!=").Nil(),
	).Block(
		jen.For(
			jen.List(jen.Id("i"), jen.Id("cell")).Op(":=").Range().Qual("unsafe", "Slice").Call(
				jen.Id("n").Dot(c.Elems),
				jen.Int().Call(jen.Id("n").Dot(c.Length)),
			),
		).BlockFunc(body),
	)
}

func (e *emitter) traverseStep(s classifier.Step) jen.Code {
	field := jen.Id("n").Dot(s.Field)
	switch s.Kind {
	case classifier.StepEmbed:
		// Embedded values carry the outer tag, so they are walked through
		// their concrete method.
		return jen.BlockFunc(func(g *jen.Group) {
			g.Id("child").Op(":=").Add(e.asNode(jen.Op("&").Add(field.Clone())))
			g.Id("fn").Call(e.path("AccessField", s.Field, nil), jen.Id("child"))
			if e.plan.Program(s.Target) != nil {
				g.Add(field.Clone().Dot("Traverse").Call(jen.Id("fn")))
			}
			g.Id("fn").Call(jen.Nil(), jen.Id("child"))
		})

	case classifier.StepPointer:
		return jen.If(field.Clone().Op("!=").Nil()).Block(
			append([]jen.Code{jen.Id("child").Op(":=").Add(e.asNode(field.Clone()))},
				e.visit(e.path("AccessField", s.Field, nil))...)...,
		)

	case classifier.StepFixedArray:
		return jen.For(
			jen.List(jen.Id("i"), jen.Id("p")).Op(":=").Range().Add(field.Clone()),
		).Block(
			jen.If(jen.Id("child").Op(":=").Add(e.asNode(jen.Id("p"))), jen.Id("child").Op("!=").Nil()).Block(
				e.visit(e.path("AccessArrayElement", s.Field, jen.Id("i")))...,
			),
		)

	case classifier.StepBoundedArray:
		return e.bounded(s, func(g *jen.Group) {
			g.If(jen.Id("child").Op("!=").Nil()).Block(
				e.visit(e.path("AccessArrayElement", s.Field, jen.Id("i")))...,
			)
		})

	default:
		return jen.Null()
	}
}

// bounded loops over the first bound elements with i and child in scope.
func (e *emitter) bounded(s classifier.Step, body func(*jen.Group)) jen.Code {
	field := jen.Id("n").Dot(s.Field)
	return jen.If(
		jen.Id("cnt").Op(":=").Add(boundInt(s.Bound)),
		jen.Id("cnt").Op(">").Lit(0).Op("&&").Add(field.Clone()).Op("!=").Nil(),
	).Block(
		jen.For(
			jen.List(jen.Id("i"), jen.Id("child")).Op(":=").Range().Qual("unsafe", "Slice").Call(
				jen.Parens(jen.Op("**").Id(e.base)).Call(jen.Qual("unsafe", "Pointer").Call(field.Clone())),
				jen.Id("cnt"),
			),
		).BlockFunc(body),
	)
}

func (e *emitter) renderStep(g *jen.Group, s classifier.Step) {
	g.Add(write(" :" + s.Field + " "))
	field := jen.Id("n").Dot(s.Field)
	switch s.Kind {
	case classifier.StepScalar:
		g.Id(scalarFunc).Call(jen.Id("b"), field)
	case classifier.StepEmbed:
		if e.plan.Program(s.Target) != nil {
			g.Add(field.Dot("renderTo").Call(jen.Id("b")))
		} else {
			g.Add(write("{" + s.Target + "}"))
		}
	case classifier.StepPointer:
		g.Add(e.asNode(field).Dot("renderTo").Call(jen.Id("b")))
	case classifier.StepFixedArray:
		g.Add(write("["))
		g.For(jen.List(jen.Id("i"), jen.Id("p")).Op(":=").Range().Add(field)).Block(
			jen.If(jen.Id("i").Op(">").Lit(0)).Block(write(" ")),
			e.asNode(jen.Id("p")).Dot("renderTo").Call(jen.Id("b")),
		)
		g.Add(write("]"))
	case classifier.StepBoundedArray:
		g.Add(write("["))
		g.Add(e.bounded(s, func(body *jen.Group) {
			body.If(jen.Id("i").Op(">").Lit(0)).Block(write(" "))
			body.Id("child").Dot("renderTo").Call(jen.Id("b"))
		}))
		g.Add(write("]"))
	}
}

func (e *emitter) stringer(f *jen.File, name string) {
	f.Func().Params(e.recv(name)).Id("String").Params().String().Block(
		jen.Var().Id("b").Qual("strings", "Builder"),
		jen.Id("n").Dot("renderTo").Call(jen.Op("&").Id("b")),
		jen.Return(jen.Id("b").Dot("String").Call()),
	)
}

// visit is the enter, dispatch, exit sequence for child.
func (e *emitter) visit(path jen.Code) []jen.Code {
	return []jen.Code{
		jen.Id("fn").Call(path, jen.Id("child")),
		jen.Id("child").Dot("Traverse").Call(jen.Id("fn")),
		jen.Id("fn").Call(jen.Nil(), jen.Id("child")),
	}
}

func (e *emitter) path(access, field string, index jen.Code) jen.Code {
	d := jen.Dict{
		jen.Id("Access"):   jen.Id(access),
		jen.Id("Ancestor"): e.asNode(jen.Id("n")),
	}
	if field != "" {
		d[jen.Id("Field")] = jen.Lit(field)
	}
	if index != nil {
		d[jen.Id("Index")] = index
	}
	return jen.Op("&").Id("PointerPath").Values(d)
}

func (e *emitter) recv(name string) jen.Code { return jen.Id("n").Op("*").Id(name) }

func (e *emitter) fnParam() jen.Code { return jen.Id("fn").Id("WalkFunc") }

func builderParam() jen.Code { return jen.Id("b").Op("*").Qual("strings", "Builder") }

// asNode is (*Node)(unsafe.Pointer(x)).
func (e *emitter) asNode(x jen.Code) *jen.Statement {
	return e.cast(e.base, x)
}

func (e *emitter) cast(name string, x jen.Code) *jen.Statement {
	return jen.Parens(jen.Op("*").Id(name)).Call(jen.Qual("unsafe", "Pointer").Call(x))
}

func write(s string) *jen.Statement {
	return jen.Id("b").Dot("WriteString").Call(jen.Lit(s))
}

func selector(root *jen.Statement, path []string) *jen.Statement {
	for _, name := range path {
		root = root.Dot(name)
	}
	return root
}

// boundInt converts a bound expression to an int expression over the fields
// of n. Field reads are widened to int64 so mixed field types add up.
func boundInt(e *rules.Expr) *jen.Statement {
	if p, ok := e.Root.(rules.Path); ok {
		return jen.Int().Call(selector(jen.Id("n"), p.Fields))
	}
	return jen.Int().Call(boundTerm(e.Root))
}

func boundTerm(t rules.Term) *jen.Statement {
	switch x := t.(type) {
	case rules.Lit:
		return jen.Lit(int(x.Value))
	case rules.Path:
		return jen.Int64().Call(selector(jen.Id("n"), x.Fields))
	case rules.Call:
		return jen.Int64().Call(jen.Id(x.Func).CallFunc(func(g *jen.Group) {
			for _, a := range x.Args {
				if p, ok := a.(rules.Path); ok {
					g.Add(selector(jen.Id("n"), p.Fields))
				} else {
					g.Add(boundTerm(a))
				}
			}
		}))
	case rules.BinOp:
		return operand(x.X).Op(x.Op).Add(operand(x.Y))
	default:
		return jen.Lit(0)
	}
}

func operand(t rules.Term) *jen.Statement {
	if _, ok := t.(rules.BinOp); ok {
		return jen.Parens(boundTerm(t))
	}
	return boundTerm(t)
}
