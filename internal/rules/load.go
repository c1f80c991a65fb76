package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/postgres.yaml
var defaultRules []byte

const (
	defaultTagType        = "NodeTag"
	defaultTagField       = "type_"
	defaultBaseNode       = "Node"
	defaultTagConstPrefix = "NodeTag_T_"
)

// Default returns the built-in PostgreSQL rule set.
func Default() (*Set, error) {
	s, err := Decode(bytes.NewReader(defaultRules))
	if err != nil {
		return nil, fmt.Errorf("built-in rules: %w", err)
	}
	return s, nil
}

// LoadFile decodes a YAML rule file. It replaces the built-in set entirely.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Decode reads and validates a YAML rule document.
func Decode(r io.Reader) (*Set, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var d document
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		var re *RuleError
		if errors.As(err, &re) {
			return nil, re
		}
		return nil, &RuleError{Message: "decode", Err: err}
	}
	if err := d.normalize(); err != nil {
		return nil, err
	}
	return &Set{doc: d}, nil
}

type document struct {
	TagType        string         `yaml:"tag_type"`
	TagField       string         `yaml:"tag_field"`
	BaseNode       string         `yaml:"base_node"`
	TagConstPrefix string         `yaml:"tag_const_prefix"`
	Helpers        []string       `yaml:"helpers"`
	Deny           []denyEntry    `yaml:"deny"`
	Bounds         []boundEntry   `yaml:"bounds"`
	Containers     []containerDoc `yaml:"containers"`
	Unions         []unionDoc     `yaml:"unions"`
}

func (d *document) normalize() error {
	if d.TagType == "" {
		d.TagType = defaultTagType
	}
	if d.TagField == "" {
		d.TagField = defaultTagField
	}
	if d.BaseNode == "" {
		d.BaseNode = defaultBaseNode
	}
	if d.TagConstPrefix == "" {
		d.TagConstPrefix = defaultTagConstPrefix
	}

	for i := range d.Bounds {
		b := &d.Bounds[i]
		if b.expr == nil {
			continue
		}
		for _, fn := range b.expr.Calls() {
			if !slices.Contains(d.Helpers, fn) {
				return ruleErr(b.line, b.Struct+"."+b.Field,
					fmt.Sprintf("helper %s is not listed under helpers", fn), nil)
			}
		}
	}
	return nil
}

// checkKeys rejects unknown mapping keys. Node.Decode does not honour the
// decoder's KnownFields setting, so nested entries check themselves.
func checkKeys(n *yaml.Node, allowed ...string) error {
	if n.Kind != yaml.MappingNode {
		return ruleErr(n.Line, "", "expected a mapping", nil)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if !slices.Contains(allowed, k.Value) {
			return ruleErr(k.Line, k.Value,
				"unknown key (allowed: "+strings.Join(allowed, ", ")+")", nil)
		}
	}
	return nil
}

type denyEntry struct {
	Struct string     `yaml:"struct"`
	Field  string     `yaml:"field"`
	In     versionSet `yaml:"in"`
}

func (e *denyEntry) UnmarshalYAML(n *yaml.Node) error {
	if err := checkKeys(n, "struct", "field", "in"); err != nil {
		return err
	}
	type plain denyEntry
	if err := n.Decode((*plain)(e)); err != nil {
		return ruleErr(n.Line, "deny", "", err)
	}
	if e.Field == "" {
		return ruleErr(n.Line, "deny", "field is required", nil)
	}
	return nil
}

type boundEntry struct {
	Struct string     `yaml:"struct"`
	Field  string     `yaml:"field"`
	Bound  string     `yaml:"bound"`
	Opaque bool       `yaml:"opaque"`
	In     versionSet `yaml:"in"`

	expr *Expr
	line int
}

func (e *boundEntry) UnmarshalYAML(n *yaml.Node) error {
	if err := checkKeys(n, "struct", "field", "bound", "opaque", "in"); err != nil {
		return err
	}
	type plain boundEntry
	if err := n.Decode((*plain)(e)); err != nil {
		return ruleErr(n.Line, "bounds", "", err)
	}
	e.line = n.Line
	entry := e.Struct + "." + e.Field
	if e.Struct == "" || e.Field == "" {
		return ruleErr(n.Line, "bounds", "struct and field are required", nil)
	}
	switch {
	case e.Opaque && e.Bound != "":
		return ruleErr(n.Line, entry, "bound and opaque are mutually exclusive", nil)
	case e.Opaque:
		return nil
	case e.Bound == "":
		return ruleErr(n.Line, entry, "needs either bound or opaque: true", nil)
	}
	expr, err := ParseBound(e.Bound)
	if err != nil {
		return ruleErr(n.Line, entry, "", err)
	}
	e.expr = expr
	return nil
}

type containerDoc struct {
	Struct   string     `yaml:"struct"`
	Cell     string     `yaml:"cell"`
	Shape    string     `yaml:"shape"`
	Length   string     `yaml:"length"`
	Head     string     `yaml:"head"`
	Next     string     `yaml:"next"`
	Elements string     `yaml:"elements"`
	Value    string     `yaml:"value"`
	In       versionSet `yaml:"in"`

	shape Shape
	line  int
}

func (c *containerDoc) UnmarshalYAML(n *yaml.Node) error {
	if err := checkKeys(n, "struct", "cell", "shape", "length", "head", "next", "elements", "value", "in"); err != nil {
		return err
	}
	type plain containerDoc
	if err := n.Decode((*plain)(c)); err != nil {
		return ruleErr(n.Line, "containers", "", err)
	}
	c.line = n.Line
	if c.Struct == "" || c.Cell == "" || c.Value == "" {
		return ruleErr(n.Line, "containers", "struct, cell and value are required", nil)
	}
	shape, err := parseShape(c.Shape)
	if err != nil {
		return ruleErr(n.Line, c.Struct, "", err)
	}
	c.shape = shape
	switch shape {
	case ShapeLinked:
		if c.Head == "" || c.Next == "" {
			return ruleErr(n.Line, c.Struct, "linked shape needs head and next", nil)
		}
	case ShapeArray:
		if c.Elements == "" || c.Length == "" {
			return ruleErr(n.Line, c.Struct, "array shape needs elements and length", nil)
		}
	}
	return nil
}

func (c *containerDoc) resolve() *Container {
	return &Container{
		Struct: c.Struct,
		Cell:   c.Cell,
		Shape:  c.shape,
		Length: c.Length,
		Head:   c.Head,
		Next:   c.Next,
		Elems:  c.Elements,
		Value:  strings.Split(c.Value, "."),
		Line:   c.line,
	}
}

// gatedName is a union field, optionally limited to some versions. It
// decodes from a bare name or from {name, in}.
type gatedName struct {
	Name string     `yaml:"name"`
	In   versionSet `yaml:"in"`
}

func (g *gatedName) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		g.Name = n.Value
		return nil
	}
	if err := checkKeys(n, "name", "in"); err != nil {
		return err
	}
	type plain gatedName
	if err := n.Decode((*plain)(g)); err != nil {
		return ruleErr(n.Line, "field", "", err)
	}
	if g.Name == "" {
		return ruleErr(n.Line, "field", "name is required", nil)
	}
	return nil
}

func activeNames(names []gatedName, v Version) []string {
	var out []string
	for _, g := range names {
		if g.In.has(v) {
			out = append(out, g.Name)
		}
	}
	return out
}

type branchDoc struct {
	Const  string      `yaml:"const"`
	Fields []gatedName `yaml:"fields"`
	In     versionSet  `yaml:"in"`
}

func (b *branchDoc) UnmarshalYAML(n *yaml.Node) error {
	if err := checkKeys(n, "const", "fields", "in"); err != nil {
		return err
	}
	type plain branchDoc
	if err := n.Decode((*plain)(b)); err != nil {
		return ruleErr(n.Line, "branch", "", err)
	}
	if b.Const == "" {
		return ruleErr(n.Line, "branch", "const is required", nil)
	}
	return nil
}

type unionDoc struct {
	Struct       string      `yaml:"struct"`
	Discriminant string      `yaml:"discriminant"`
	Prefix       []gatedName `yaml:"prefix"`
	Branches     []branchDoc `yaml:"branches"`
	Suffix       []gatedName `yaml:"suffix"`
	In           versionSet  `yaml:"in"`

	line int
}

func (u *unionDoc) UnmarshalYAML(n *yaml.Node) error {
	if err := checkKeys(n, "struct", "discriminant", "prefix", "branches", "suffix", "in"); err != nil {
		return err
	}
	type plain unionDoc
	if err := n.Decode((*plain)(u)); err != nil {
		return ruleErr(n.Line, "unions", "", err)
	}
	u.line = n.Line
	if u.Struct == "" || u.Discriminant == "" {
		return ruleErr(n.Line, "unions", "struct and discriminant are required", nil)
	}
	if len(u.Branches) == 0 {
		return ruleErr(n.Line, u.Struct, "a union needs at least one branch", nil)
	}
	seen := map[string]versionSet{}
	for _, b := range u.Branches {
		if prev, ok := seen[b.Const]; ok && overlaps(prev, b.In) {
			return ruleErr(n.Line, u.Struct, fmt.Sprintf("branch %s is listed twice", b.Const), nil)
		}
		seen[b.Const] = b.In
	}
	return nil
}

func overlaps(a, b versionSet) bool {
	for _, v := range Versions {
		if a.has(v) && b.has(v) {
			return true
		}
	}
	return false
}

func (u *unionDoc) resolve(v Version) *Union {
	out := &Union{
		Struct:       u.Struct,
		Discriminant: u.Discriminant,
		Prefix:       activeNames(u.Prefix, v),
		Suffix:       activeNames(u.Suffix, v),
		Line:         u.line,
	}
	for _, b := range u.Branches {
		if !b.In.has(v) {
			continue
		}
		out.Branches = append(out.Branches, Branch{Const: b.Const, Fields: activeNames(b.Fields, v)})
	}
	return out
}
