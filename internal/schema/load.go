package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a schema document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFromPath picks a Format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported schema file extension %q", filepath.Ext(path))
	}
}

// document is the interchange form written by the external header parser.
type document struct {
	Structs   []structDoc      `json:"structs" yaml:"structs"`
	Constants map[string]int64 `json:"constants" yaml:"constants"`
}

type structDoc struct {
	Name   string     `json:"name" yaml:"name"`
	Fields []fieldDoc `json:"fields" yaml:"fields"`
}

type fieldDoc struct {
	Name string  `json:"name" yaml:"name"`
	Type TypeRef `json:"type" yaml:"type"`
}

// LoadFile reads a schema document from path.
func LoadFile(path string) (*Schema, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Decode reads a schema document.
func Decode(r io.Reader, format Format) (*Schema, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc document
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&doc)
		if err == io.EOF {
			err = nil
		}
	default:
		err = fmt.Errorf("unknown format %d", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	structs := make([]*Struct, 0, len(doc.Structs))
	for _, sd := range doc.Structs {
		if sd.Name == "" {
			return nil, fmt.Errorf("struct #%d has no name", len(structs))
		}
		st := &Struct{Name: sd.Name, Fields: make([]Field, 0, len(sd.Fields))}
		for _, fd := range sd.Fields {
			st.Fields = append(st.Fields, Field{Name: fd.Name, Type: fd.Type})
		}
		structs = append(structs, st)
	}
	return New(structs, doc.Constants), nil
}

// typeRefDoc is the object form of a TypeRef.
type typeRefDoc struct {
	Kind string   `json:"kind" yaml:"kind"`
	Name string   `json:"name,omitempty" yaml:"name,omitempty"`
	Elem *TypeRef `json:"elem,omitempty" yaml:"elem,omitempty"`
	Len  int      `json:"len,omitempty" yaml:"len,omitempty"`
}

func (d typeRefDoc) typeRef() (TypeRef, error) {
	for k, name := range kindNames {
		if name != d.Kind {
			continue
		}
		t := TypeRef{Kind: k, Name: d.Name, Elem: d.Elem, Len: d.Len}
		if (k == KindPointer || k == KindArray) && t.Elem == nil {
			return TypeRef{}, fmt.Errorf("%s type needs elem", d.Kind)
		}
		if (k == KindPrimitive || k == KindNamed) && t.Name == "" {
			return TypeRef{}, fmt.Errorf("%s type needs name", d.Kind)
		}
		return t, nil
	}
	return TypeRef{}, fmt.Errorf("unknown type kind %q", d.Kind)
}

// UnmarshalJSON accepts either Go type notation ("**Node") or the object form.
func (t *TypeRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseTypeRef(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	var d typeRefDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	parsed, err := d.typeRef()
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes Go type notation.
func (t TypeRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalYAML accepts either Go type notation or the mapping form.
func (t *TypeRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseTypeRef(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*t = parsed
		return nil
	}
	var d typeRefDoc
	if err := value.Decode(&d); err != nil {
		return err
	}
	parsed, err := d.typeRef()
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*t = parsed
	return nil
}
