package rules

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

// Term is one node of a bound expression.
type Term interface {
	String() string
	term()
}

// Lit is an integer literal.
type Lit struct{ Value int64 }

// Path reads a field of the owning struct, following pointers for every
// further element: ri_RelationDesc.rd_att.constr.num_check.
type Path struct{ Fields []string }

// BinOp is one of + - *.
type BinOp struct {
	Op   string
	X, Y Term
}

// Call invokes a helper declared in the rule table, for example
// bms_num_members(as_valid_asyncplans).
type Call struct {
	Func string
	Args []Term
}

func (Lit) term()   {}
func (Path) term()  {}
func (BinOp) term() {}
func (Call) term()  {}

func (l Lit) String() string  { return strconv.FormatInt(l.Value, 10) }
func (p Path) String() string { return strings.Join(p.Fields, ".") }

func (b BinOp) String() string {
	x, y := b.X.String(), b.Y.String()
	if inner, ok := b.X.(BinOp); ok && precedence(inner.Op) < precedence(b.Op) {
		x = "(" + x + ")"
	}
	if inner, ok := b.Y.(BinOp); ok && precedence(inner.Op) <= precedence(b.Op) {
		y = "(" + y + ")"
	}
	return x + " " + b.Op + " " + y
}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Func + "(" + strings.Join(args, ", ") + ")"
}

func precedence(op string) int {
	if op == "*" {
		return 2
	}
	return 1
}

// Expr is a parsed bound expression. A nil *Expr in a bound rule marks the
// field as intentionally opaque.
type Expr struct {
	Root Term
}

// ParseBound parses a Go-syntax integer expression over sibling fields.
// Only literals, selector paths, + - *, parentheses and plain function calls
// are accepted; anything whose value is not a deterministic function of the
// node is rejected.
func ParseBound(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty bound expression")
	}
	node, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("parse bound %q: %w", src, err)
	}
	root, err := toTerm(node)
	if err != nil {
		return nil, fmt.Errorf("bound %q: %w", src, err)
	}
	return &Expr{Root: root}, nil
}

func toTerm(node ast.Expr) (Term, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT {
			return nil, fmt.Errorf("only integer literals are allowed, got %s", n.Value)
		}
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, err
		}
		return Lit{Value: v}, nil
	case *ast.Ident:
		return Path{Fields: []string{n.Name}}, nil
	case *ast.SelectorExpr:
		x, err := toTerm(n.X)
		if err != nil {
			return nil, err
		}
		p, ok := x.(Path)
		if !ok {
			return nil, fmt.Errorf("selector .%s must follow a field path", n.Sel.Name)
		}
		fields := append(append([]string(nil), p.Fields...), n.Sel.Name)
		return Path{Fields: fields}, nil
	case *ast.ParenExpr:
		return toTerm(n.X)
	case *ast.BinaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.MUL:
		default:
			return nil, fmt.Errorf("operator %s is not allowed", n.Op)
		}
		x, err := toTerm(n.X)
		if err != nil {
			return nil, err
		}
		y, err := toTerm(n.Y)
		if err != nil {
			return nil, err
		}
		return BinOp{Op: n.Op.String(), X: x, Y: y}, nil
	case *ast.CallExpr:
		fn, ok := n.Fun.(*ast.Ident)
		if !ok {
			return nil, fmt.Errorf("helper calls must name a plain function")
		}
		if n.Ellipsis.IsValid() {
			return nil, fmt.Errorf("variadic call to %s is not allowed", fn.Name)
		}
		c := Call{Func: fn.Name}
		for _, a := range n.Args {
			t, err := toTerm(a)
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, t)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported expression %T", node)
	}
}

func (e *Expr) String() string {
	if e == nil || e.Root == nil {
		return ""
	}
	return e.Root.String()
}

// MarshalText renders the canonical source form.
func (e *Expr) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText parses a bound expression.
func (e *Expr) UnmarshalText(text []byte) error {
	parsed, err := ParseBound(string(text))
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}

// Inspect calls fn for t and every term below it, parents first.
func Inspect(t Term, fn func(Term)) {
	fn(t)
	switch n := t.(type) {
	case BinOp:
		Inspect(n.X, fn)
		Inspect(n.Y, fn)
	case Call:
		for _, a := range n.Args {
			Inspect(a, fn)
		}
	}
}

// Roots returns the distinct first elements of every field path, in order of
// appearance. Each must name a field of the owning struct.
func (e *Expr) Roots() []string {
	var out []string
	seen := map[string]bool{}
	Inspect(e.Root, func(t Term) {
		if p, ok := t.(Path); ok && !seen[p.Fields[0]] {
			seen[p.Fields[0]] = true
			out = append(out, p.Fields[0])
		}
	})
	return out
}

// Calls returns the distinct helper names the expression invokes.
func (e *Expr) Calls() []string {
	var out []string
	seen := map[string]bool{}
	Inspect(e.Root, func(t Term) {
		if c, ok := t.(Call); ok && !seen[c.Func] {
			seen[c.Func] = true
			out = append(out, c.Func)
		}
	})
	return out
}

// Env supplies field values and helper implementations to Eval.
type Env interface {
	// Lookup returns the value at a field path of the node being walked.
	Lookup(path []string) (any, error)
	// Call runs a helper on raw argument values.
	Call(name string, args []any) (int64, error)
}

// Eval computes the bound of e for one node.
func (e *Expr) Eval(env Env) (int64, error) {
	v, err := eval(e.Root, env)
	if err != nil {
		return 0, err
	}
	return ToInt64(v)
}

func eval(t Term, env Env) (any, error) {
	switch n := t.(type) {
	case Lit:
		return n.Value, nil
	case Path:
		return env.Lookup(n.Fields)
	case Call:
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := eval(a, env)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return env.Call(n.Func, args)
	case BinOp:
		xv, err := eval(n.X, env)
		if err != nil {
			return nil, err
		}
		yv, err := eval(n.Y, env)
		if err != nil {
			return nil, err
		}
		x, err := ToInt64(xv)
		if err != nil {
			return nil, err
		}
		y, err := ToInt64(yv)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "+":
			return x + y, nil
		case "-":
			return x - y, nil
		default:
			return x * y, nil
		}
	default:
		return nil, fmt.Errorf("unsupported term %T", t)
	}
}

// ToInt64 converts the integer kinds decoders produce.
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("value of type %T is not an integer", v)
	}
}
