package schema

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// TypeKind is the coarse shape of a TypeRef.
type TypeKind int

const (
	KindPrimitive TypeKind = iota
	KindNamed
	KindPointer
	KindArray
	KindFunc
	KindOpaque
)

var kindNames = map[TypeKind]string{
	KindPrimitive: "primitive",
	KindNamed:     "named",
	KindPointer:   "pointer",
	KindArray:     "array",
	KindFunc:      "func",
	KindOpaque:    "opaque",
}

func (k TypeKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// TypeRef identifies a field type. Elem is set for pointers and arrays, Len
// for arrays, Name for primitives and named types.
type TypeRef struct {
	Kind TypeKind
	Name string
	Elem *TypeRef
	Len  int
}

func Primitive(name string) TypeRef { return TypeRef{Kind: KindPrimitive, Name: name} }

func Named(name string) TypeRef { return TypeRef{Kind: KindNamed, Name: name} }

func Pointer(elem TypeRef) TypeRef { return TypeRef{Kind: KindPointer, Elem: &elem} }

func Array(n int, elem TypeRef) TypeRef { return TypeRef{Kind: KindArray, Len: n, Elem: &elem} }

func Func() TypeRef { return TypeRef{Kind: KindFunc} }

func Opaque() TypeRef { return TypeRef{Kind: KindOpaque} }

// String renders t in Go type notation, which ParseTypeRef accepts back.
func (t TypeRef) String() string {
	switch t.Kind {
	case KindPrimitive, KindNamed:
		return t.Name
	case KindPointer:
		return "*" + t.Elem.String()
	case KindArray:
		return "[" + strconv.Itoa(t.Len) + "]" + t.Elem.String()
	case KindFunc:
		return "func()"
	default:
		return "unsafe.Pointer"
	}
}

// Innermost strips every pointer and array layer.
func (t TypeRef) Innermost() TypeRef {
	for t.Elem != nil {
		t = *t.Elem
	}
	return t
}

var primitiveNames = map[string]bool{
	"bool": true, "byte": true, "rune": true, "string": true, "uintptr": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
	"char": true, "short": true, "long": true, "unsigned": true, "signed": true,
	"float": true, "double": true, "size_t": true, "ssize_t": true, "_Bool": true,
	"int8_t": true, "int16_t": true, "int32_t": true, "int64_t": true,
	"uint8_t": true, "uint16_t": true, "uint32_t": true, "uint64_t": true,
}

// IsPrimitiveName reports whether name is a builtin scalar in Go or C.
func IsPrimitiveName(name string) bool { return primitiveNames[name] }

// ParseTypeRef parses Go type notation: "int32", "Plan", "*Node", "**Node",
// "[4]*Plan", "func()", "unsafe.Pointer". "void" and interface, map and chan
// types are opaque.
func ParseTypeRef(s string) (TypeRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeRef{}, fmt.Errorf("empty type")
	}
	expr, err := parser.ParseExpr(s)
	if err != nil {
		return TypeRef{}, fmt.Errorf("parse type %q: %w", s, err)
	}
	return typeFromExpr(expr)
}

func typeFromExpr(expr ast.Expr) (TypeRef, error) {
	switch e := expr.(type) {
	case *ast.ParenExpr:
		return typeFromExpr(e.X)
	case *ast.Ident:
		switch {
		case e.Name == "void":
			return Opaque(), nil
		case IsPrimitiveName(e.Name):
			return Primitive(e.Name), nil
		default:
			return Named(e.Name), nil
		}
	case *ast.StarExpr:
		elem, err := typeFromExpr(e.X)
		if err != nil {
			return TypeRef{}, err
		}
		return Pointer(elem), nil
	case *ast.ArrayType:
		if e.Len == nil {
			return TypeRef{}, fmt.Errorf("slice types have no fixed layout")
		}
		lit, ok := e.Len.(*ast.BasicLit)
		if !ok || lit.Kind != token.INT {
			return TypeRef{}, fmt.Errorf("array length must be an integer literal")
		}
		n, err := strconv.Atoi(lit.Value)
		if err != nil {
			return TypeRef{}, fmt.Errorf("array length %q: %w", lit.Value, err)
		}
		elem, err := typeFromExpr(e.Elt)
		if err != nil {
			return TypeRef{}, err
		}
		return Array(n, elem), nil
	case *ast.SelectorExpr:
		if pkg, ok := e.X.(*ast.Ident); ok && pkg.Name == "unsafe" && e.Sel.Name == "Pointer" {
			return Opaque(), nil
		}
		return Named(e.Sel.Name), nil
	case *ast.FuncType:
		return Func(), nil
	case *ast.InterfaceType, *ast.MapType, *ast.ChanType:
		return Opaque(), nil
	default:
		return TypeRef{}, fmt.Errorf("unsupported type expression %T", expr)
	}
}
