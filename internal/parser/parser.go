package parser

import (
	"fmt"
	"go/constant"
	"go/types"
	"sort"
	"sync"

	"golang.org/x/tools/go/packages"

	"github.com/seitarof/gen-nodewalk/internal/schema"
)

// Parser extracts the struct/constant schema from a Go bindings package.
type Parser interface {
	Load(pkgPath string) (*schema.Schema, error)
}

// parserImpl is safe for concurrent use. Loads are serialized so that the
// cache and the shared type information are never touched by two callers.
type parserImpl struct {
	mu    sync.Mutex
	cache map[string]*packages.Package
}

// New returns default parser.
func New() Parser {
	return &parserImpl{cache: map[string]*packages.Package{}}
}

func (p *parserImpl) Load(pkgPath string) (*schema.Schema, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pkg, err := p.loadPackage(pkgPath)
	if err != nil {
		return nil, err
	}
	if pkg.Types == nil || pkg.Types.Scope() == nil {
		return nil, fmt.Errorf("type info unavailable for package %q", pkgPath)
	}
	return buildSchema(pkg.Types.Scope()), nil
}

func (p *parserImpl) loadPackage(pkgPath string) (*packages.Package, error) {
	if cached, ok := p.cache[pkgPath]; ok {
		return cached, nil
	}

	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedTypes |
			packages.NeedModule,
	}

	pkgs, err := packages.Load(cfg, pkgPath)
	if err != nil {
		return nil, fmt.Errorf("load package %q: %w", pkgPath, err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, fmt.Errorf("package %q has compilation errors", pkgPath)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("package %q not found", pkgPath)
	}
	p.cache[pkgPath] = pkgs[0]
	return pkgs[0], nil
}

// buildSchema collects struct type declarations in source order (file order,
// then position within the file) and every integer constant in scope.
func buildSchema(scope *types.Scope) *schema.Schema {
	var named []*types.TypeName
	consts := map[string]int64{}

	for _, name := range scope.Names() {
		switch obj := scope.Lookup(name).(type) {
		case *types.TypeName:
			if obj.IsAlias() {
				continue
			}
			if _, ok := obj.Type().Underlying().(*types.Struct); ok {
				named = append(named, obj)
			}
		case *types.Const:
			if v, ok := intConstant(obj); ok {
				consts[name] = v
			}
		}
	}
	sort.SliceStable(named, func(i, j int) bool { return named[i].Pos() < named[j].Pos() })

	structs := make([]*schema.Struct, 0, len(named))
	for _, obj := range named {
		st := obj.Type().Underlying().(*types.Struct)
		fields := make([]schema.Field, 0, st.NumFields())
		for i := 0; i < st.NumFields(); i++ {
			f := st.Field(i)
			fields = append(fields, schema.Field{Name: f.Name(), Type: analyzeType(f.Type())})
		}
		structs = append(structs, &schema.Struct{Name: obj.Name(), Fields: fields})
	}
	return schema.New(structs, consts)
}

func intConstant(c *types.Const) (int64, bool) {
	basic, ok := c.Type().Underlying().(*types.Basic)
	if !ok || basic.Info()&types.IsInteger == 0 {
		return 0, false
	}
	return constant.Int64Val(constant.ToInt(c.Val()))
}

func analyzeType(t types.Type) schema.TypeRef {
	switch v := t.(type) {
	case *types.Alias:
		return analyzeType(types.Unalias(v))
	case *types.Basic:
		if v.Kind() == types.UnsafePointer {
			return schema.Opaque()
		}
		return schema.Primitive(v.Name())
	case *types.Pointer:
		return schema.Pointer(analyzeType(v.Elem()))
	case *types.Array:
		return schema.Array(int(v.Len()), analyzeType(v.Elem()))
	case *types.Signature:
		return schema.Func()
	case *types.Named:
		switch under := v.Underlying().(type) {
		case *types.Struct, *types.Basic:
			if b, ok := under.(*types.Basic); ok && b.Kind() == types.UnsafePointer {
				return schema.Opaque()
			}
			return schema.Named(v.Obj().Name())
		default:
			return analyzeType(under)
		}
	default:
		return schema.Opaque()
	}
}
