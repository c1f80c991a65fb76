package walk

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/seitarof/gen-nodewalk/internal/rules"
)

// Object is a synthetic node instance. Field values are:
//
//   - *Object for embedded structs and node pointers (nil for null),
//   - []any of *Object or nil for pointer arrays,
//   - any other value for scalars.
//
// Tag is the runtime tag; an embedded struct carries its outer node's tag.
type Object struct {
	Type   string
	Tag    int64
	Fields map[string]any
}

// NewObject builds an Object with its fields.
func NewObject(typ string, tag int64, fields map[string]any) *Object {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Object{Type: typ, Tag: tag, Fields: fields}
}

// Get returns a field value.
func (o *Object) Get(name string) (any, bool) {
	v, ok := o.Fields[name]
	return v, ok
}

// ListOf builds a container instance in the physical shape c describes.
// Linked lists get one cell per item chained through c.Next; array lists get
// a cell slice under c.Elems. Cells store the item at c.Value.
func ListOf(c *rules.Container, tag int64, items ...*Object) *Object {
	list := NewObject(c.Struct, tag, nil)
	if c.Length != "" {
		list.Fields[c.Length] = len(items)
	}

	cells := make([]*Object, len(items))
	for i, item := range items {
		cells[i] = newCell(c, item)
	}

	switch c.Shape {
	case rules.ShapeLinked:
		var head *Object
		for i := len(cells) - 1; i >= 0; i-- {
			cells[i].Fields[c.Next] = head
			head = cells[i]
		}
		list.Fields[c.Head] = head
	default:
		elems := make([]any, len(cells))
		for i, cell := range cells {
			elems[i] = cell
		}
		list.Fields[c.Elems] = elems
	}
	return list
}

// newCell nests the item under the value path: data.ptr_value becomes
// {data: {ptr_value: item}}.
func newCell(c *rules.Container, item *Object) *Object {
	cell := NewObject(c.Cell, 0, nil)
	cur := cell
	for _, name := range c.Value[:len(c.Value)-1] {
		next := NewObject(name, 0, nil)
		cur.Fields[name] = next
		cur = next
	}
	cur.Fields[c.Value[len(c.Value)-1]] = item
	return cell
}

// LoadSample reads a synthetic node graph from YAML:
//
//	type: Agg
//	tag: 11
//	fields:
//	  numaggs: 2
//	  aggcontexts: [{type: Var}, null]
//
// A missing tag stays 0; Walker.FillTags derives it from the type name.
func LoadSample(path string) (*Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	var obj Object
	if err := yaml.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if obj.Type == "" {
		return nil, fmt.Errorf("%s: sample is empty", path)
	}
	return &obj, nil
}

// UnmarshalYAML decodes the {type, tag, fields} mapping.
func (o *Object) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: node must be a mapping", n.Line)
	}
	o.Fields = map[string]any{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "type":
			o.Type = val.Value
		case "tag":
			if err := val.Decode(&o.Tag); err != nil {
				return fmt.Errorf("line %d: tag: %w", val.Line, err)
			}
		case "fields":
			if val.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: fields must be a mapping", val.Line)
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				v, err := decodeValue(val.Content[j+1])
				if err != nil {
					return err
				}
				o.Fields[val.Content[j].Value] = v
			}
		default:
			return fmt.Errorf("line %d: unknown node key %q", key.Line, key.Value)
		}
	}
	if o.Type == "" {
		return fmt.Errorf("line %d: node needs a type", n.Line)
	}
	return nil
}

func decodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.MappingNode:
		if !hasKey(n, "type") {
			return nil, fmt.Errorf("line %d: nested mapping is not a node (no type key)", n.Line)
		}
		var child Object
		if err := child.UnmarshalYAML(n); err != nil {
			return nil, err
		}
		return &child, nil
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, item := range n.Content {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.AliasNode:
		return decodeValue(n.Alias)
	default:
		if n.Tag == "!!null" {
			return nil, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
}

func hasKey(n *yaml.Node, key string) bool {
	for i := 0; i < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}

// nodeList converts an array field value to node elements.
func nodeList(v any) ([]*Object, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		if objs, ok := v.([]*Object); ok {
			return slices.Clone(objs), nil
		}
		return nil, fmt.Errorf("expected an array of nodes, got %T", v)
	}
	out := make([]*Object, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		obj, ok := item.(*Object)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not a node", i, item)
		}
		out[i] = obj
	}
	return out, nil
}

// nodeValue converts a pointer or embed field value to a node.
func nodeValue(v any) (*Object, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case *Object:
		return n, nil
	default:
		return nil, fmt.Errorf("expected a node, got %T", v)
	}
}
