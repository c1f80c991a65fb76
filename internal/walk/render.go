package walk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/seitarof/gen-nodewalk/internal/classifier"
)

// Render stringifies obj with the same grammar emitted String methods use:
//
//	{Type :field value ...}   node
//	<>                        null pointer or unset scalar
//	[v v]                     pointer array
//	(v v)                     container
//	<unknown N>               tag without a program
func (w *Walker) Render(obj *Object) (string, error) {
	var b strings.Builder
	if err := w.renderNode(&b, obj); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (w *Walker) renderNode(b *strings.Builder, obj *Object) error {
	if obj == nil {
		b.WriteString("<>")
		return nil
	}
	prog, ok := w.plan.ByTag(obj.Tag)
	if !ok || prog == nil {
		fmt.Fprintf(b, "<unknown %d>", obj.Tag)
		return nil
	}
	return w.renderProgram(b, prog, obj)
}

func (w *Walker) renderProgram(b *strings.Builder, prog *classifier.Program, obj *Object) error {
	switch prog.Kind {
	case classifier.ProgramContainer:
		return w.renderContainer(b, prog, obj)
	case classifier.ProgramUnion:
		u := prog.Union
		b.WriteString("{")
		b.WriteString(prog.Struct)
		b.WriteString(" :")
		b.WriteString(u.Discriminant)
		b.WriteString(" ")
		renderScalar(b, obj.Fields[u.Discriminant])
		if err := w.renderSteps(b, u.Prefix, obj); err != nil {
			return err
		}
		br, ok, err := branchOf(u, obj)
		if err != nil {
			return err
		}
		if ok {
			if err := w.renderSteps(b, br.Steps, obj); err != nil {
				return err
			}
		}
		if err := w.renderSteps(b, u.Suffix, obj); err != nil {
			return err
		}
		b.WriteString("}")
		return nil
	default:
		b.WriteString("{")
		b.WriteString(prog.Struct)
		if err := w.renderSteps(b, prog.Steps, obj); err != nil {
			return err
		}
		b.WriteString("}")
		return nil
	}
}

func (w *Walker) renderSteps(b *strings.Builder, steps []classifier.Step, obj *Object) error {
	for _, s := range steps {
		b.WriteString(" :")
		b.WriteString(s.Field)
		b.WriteString(" ")
		if err := w.renderStep(b, s, obj); err != nil {
			return fmt.Errorf("%s.%s: %w", obj.Type, s.Field, err)
		}
	}
	return nil
}

func (w *Walker) renderStep(b *strings.Builder, s classifier.Step, obj *Object) error {
	switch s.Kind {
	case classifier.StepScalar:
		renderScalar(b, obj.Fields[s.Field])
		return nil
	case classifier.StepEmbed:
		child, err := w.embedded(s, obj)
		if err != nil {
			return err
		}
		prog := w.plan.Program(s.Target)
		if prog == nil {
			b.WriteString("{" + s.Target + "}")
			return nil
		}
		return w.renderProgram(b, prog, child)
	case classifier.StepPointer:
		child, err := nodeValue(obj.Fields[s.Field])
		if err != nil {
			return err
		}
		return w.renderNode(b, child)
	default:
		items, err := w.elements(s, obj)
		if err != nil {
			return err
		}
		b.WriteString("[")
		for i, item := range items {
			if i > 0 {
				b.WriteString(" ")
			}
			if err := w.renderNode(b, item); err != nil {
				return err
			}
		}
		b.WriteString("]")
		return nil
	}
}

func (w *Walker) renderContainer(b *strings.Builder, prog *classifier.Program, obj *Object) error {
	b.WriteString("(")
	if obj.Tag == w.tags[prog.Struct] {
		items, err := w.listItems(prog.Container, obj)
		if err != nil {
			return err
		}
		for i, item := range items {
			if i > 0 {
				b.WriteString(" ")
			}
			if err := w.renderNode(b, item); err != nil {
				return err
			}
		}
	}
	b.WriteString(")")
	return nil
}

// renderScalar writes a leaf with %v. Strings are quoted so the rendered
// text stays parseable; generated renderTo methods quote string-kinded
// fields the same way.
func renderScalar(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("<>")
	case string:
		b.WriteString(strconv.Quote(x))
	default:
		fmt.Fprintf(b, "%v", x)
	}
}
