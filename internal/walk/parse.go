package walk

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind classifies a parsed rendering.
type ValueKind int

const (
	ValueNode ValueKind = iota
	ValueNull
	ValueArray
	ValueList
	ValueUnknown
	ValueAtom
)

// Value is one parsed rendering. Type and Fields are set for nodes, Items for
// arrays and lists, Text for atoms and the tag of unknown nodes.
type Value struct {
	Kind   ValueKind
	Type   string
	Fields []FieldValue
	Items  []*Value
	Text   string
}

// FieldValue is one `:name value` pair of a node.
type FieldValue struct {
	Name  string
	Value *Value
}

// Visit is one enter event, reduced to what a rendering preserves.
type Visit struct {
	Depth  int
	Access AccessKind
	Field  string
	Index  int
}

func (v Visit) String() string {
	p := PointerPath{Access: v.Access, Field: v.Field, Index: v.Index}
	return strings.Repeat("  ", v.Depth) + p.String()
}

// ParseRendered parses the output of Render or of an emitted String method.
func ParseRendered(text string) (*Value, error) {
	p := &renderParser{src: text}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.space()
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing text %q", p.src[p.pos:])
	}
	return v, nil
}

// Visits lists the child visits a walk of the rendered node makes, in
// order. Atoms and nulls are not visits.
func (v *Value) Visits() []Visit {
	var out []Visit
	v.collect(0, &out)
	return out
}

func (v *Value) collect(depth int, out *[]Visit) {
	switch v.Kind {
	case ValueNode:
		for _, f := range v.Fields {
			switch f.Value.Kind {
			case ValueNode, ValueList, ValueUnknown:
				*out = append(*out, Visit{Depth: depth, Access: AccessField, Field: f.Name})
				f.Value.collect(depth+1, out)
			case ValueArray:
				for i, item := range f.Value.Items {
					if !item.child() {
						continue
					}
					*out = append(*out, Visit{Depth: depth, Access: AccessArrayElement, Field: f.Name, Index: i})
					item.collect(depth+1, out)
				}
			}
		}
	case ValueList:
		for i, item := range v.Items {
			if !item.child() {
				continue
			}
			*out = append(*out, Visit{Depth: depth, Access: AccessListElement, Index: i})
			item.collect(depth+1, out)
		}
	}
}

func (v *Value) child() bool {
	switch v.Kind {
	case ValueNode, ValueList, ValueUnknown:
		return true
	default:
		return false
	}
}

type renderParser struct {
	src string
	pos int
}

func (p *renderParser) errorf(format string, args ...any) error {
	return fmt.Errorf("rendered text offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *renderParser) space() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *renderParser) value() (*Value, error) {
	p.space()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of text")
	}
	switch p.src[p.pos] {
	case '{':
		return p.node()
	case '[':
		items, err := p.items(']')
		return &Value{Kind: ValueArray, Items: items}, err
	case '(':
		items, err := p.items(')')
		return &Value{Kind: ValueList, Items: items}, err
	case '<':
		return p.angle()
	case '"':
		s, err := strconv.QuotedPrefix(p.src[p.pos:])
		if err != nil {
			return nil, p.errorf("bad quoted atom: %v", err)
		}
		p.pos += len(s)
		return &Value{Kind: ValueAtom, Text: s}, nil
	default:
		word := p.word()
		if word == "" {
			return nil, p.errorf("unexpected %q", p.src[p.pos])
		}
		return &Value{Kind: ValueAtom, Text: word}, nil
	}
}

func (p *renderParser) node() (*Value, error) {
	p.pos++
	p.space()
	v := &Value{Kind: ValueNode, Type: p.word()}
	if v.Type == "" {
		return nil, p.errorf("node without a type")
	}
	for {
		p.space()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated node %s", v.Type)
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return v, nil
		}
		if p.src[p.pos] != ':' {
			return nil, p.errorf("expected :field in %s, got %q", v.Type, p.src[p.pos])
		}
		p.pos++
		name := p.word()
		if name == "" {
			return nil, p.errorf("empty field name in %s", v.Type)
		}
		fv, err := p.value()
		if err != nil {
			return nil, err
		}
		v.Fields = append(v.Fields, FieldValue{Name: name, Value: fv})
	}
}

func (p *renderParser) items(end byte) ([]*Value, error) {
	p.pos++
	var out []*Value
	for {
		p.space()
		if p.pos >= len(p.src) {
			return nil, p.errorf("missing %q", end)
		}
		if p.src[p.pos] == end {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (p *renderParser) angle() (*Value, error) {
	end := strings.IndexByte(p.src[p.pos:], '>')
	if end < 0 {
		return nil, p.errorf("unterminated <")
	}
	body := p.src[p.pos+1 : p.pos+end]
	p.pos += end + 1
	switch {
	case body == "":
		return &Value{Kind: ValueNull}, nil
	case strings.HasPrefix(body, "unknown "):
		return &Value{Kind: ValueUnknown, Text: strings.TrimPrefix(body, "unknown ")}, nil
	default:
		return nil, p.errorf("unexpected <%s>", body)
	}
}

// word reads up to the next space or delimiter.
func (p *renderParser) word() string {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune(" {}[]()<>:", rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}
