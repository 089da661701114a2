package macro

import (
	"fmt"
	"path/filepath"
	"strings"

	sqlmacro "github.com/leapstack-labs/sqlext/pkg/macro"
	"go.starlark.net/syntax"
)

// ParamKind classifies a parameter of a Starlark def.
type ParamKind int

// Parameter kinds, in the order Starlark allows them.
const (
	ParamRequired ParamKind = iota // x
	ParamOptional                  // x=1
	ParamStar                      // *args, or a bare * when Name is ""
	ParamKwargs                    // **kwargs
)

// StarParam is one parameter of a Starlark def.
type StarParam struct {
	Name    string    `json:"name"`
	Default string    `json:"default,omitempty"`
	Kind    ParamKind `json:"kind"`
}

func (p StarParam) String() string {
	switch p.Kind {
	case ParamOptional:
		return p.Name + "=" + p.Default
	case ParamStar:
		return "*" + p.Name
	case ParamKwargs:
		return "**" + p.Name
	default:
		return p.Name
	}
}

// StarDef is a public top-level def found in a .star file.
type StarDef struct {
	Name   string      `json:"name"`
	Params []StarParam `json:"params"`
	Doc    string      `json:"doc,omitempty"`
	Line   int         `json:"line"`
}

// Signature renders the def's parameter list, e.g. "f(a, n=2, *rest)".
func (d *StarDef) Signature() string {
	parts := make([]string, len(d.Params))
	for i, p := range d.Params {
		parts[i] = p.String()
	}
	return d.Name + "(" + strings.Join(parts, ", ") + ")"
}

// ScanStarFile lists the public defs of a .star file without running it.
func ScanStarFile(path string, content []byte) ([]*StarDef, error) {
	f, err := fileOptions.Parse(path, content, 0)
	if err != nil {
		return nil, &LoadError{File: path, Message: "syntax error: " + err.Error()}
	}

	var defs []*StarDef
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		defs = append(defs, &StarDef{
			Name:   def.Name.Name,
			Params: scanParams(def.Params),
			Doc:    docstring(def.Body),
			Line:   int(def.Name.NamePos.Line),
		})
	}
	return defs, nil
}

func scanParams(exprs []syntax.Expr) []StarParam {
	params := make([]StarParam, 0, len(exprs))
	for _, expr := range exprs {
		switch e := expr.(type) {
		case *syntax.Ident:
			params = append(params, StarParam{Name: e.Name, Kind: ParamRequired})
		case *syntax.BinaryExpr:
			if id, ok := e.X.(*syntax.Ident); ok && e.Op == syntax.EQ {
				params = append(params, StarParam{Name: id.Name, Default: literal(e.Y), Kind: ParamOptional})
			}
		case *syntax.UnaryExpr:
			kind := ParamStar
			if e.Op == syntax.STARSTAR {
				kind = ParamKwargs
			}
			name := ""
			if id, ok := e.X.(*syntax.Ident); ok {
				name = id.Name
			}
			params = append(params, StarParam{Name: name, Kind: kind})
		}
	}
	return params
}

func docstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	stmt, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	if lit, ok := stmt.X.(*syntax.Literal); ok && lit.Token == syntax.STRING {
		s, _ := lit.Value.(string)
		return strings.TrimSpace(s)
	}
	return ""
}

// literal renders a default value. Only simple literals are spelled out.
func literal(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + literal(e.X)
		}
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	case *syntax.TupleExpr:
		return "()"
	}
	return "..."
}

// SQLFunction turns the def into the SQL function "ns.name".
//
// Required parameters map one to one. Optional parameters and *args are
// fed from the call's extra arguments, so any of them makes the SQL
// function variadic. Parameters after a star and **kwargs are unreachable
// from SQL and are left to their defaults.
func (d *StarDef) SQLFunction(ns, path string) (*sqlmacro.Function, error) {
	var (
		params   []string
		variadic bool
	)
scan:
	for _, p := range d.Params {
		switch p.Kind {
		case ParamRequired:
			if variadic {
				break scan
			}
			if p.Name == ns || p.Name == "args" {
				return nil, fmt.Errorf("parameter %q shadows a name the call needs", p.Name)
			}
			params = append(params, p.Name)
		case ParamOptional:
			variadic = true
		case ParamStar:
			variadic = variadic || p.Name != ""
			break scan
		case ParamKwargs:
			break scan
		}
	}

	call := append([]string(nil), params...)
	if variadic {
		call = append(call, "*args")
		params = append(params, sqlmacro.Variadic)
	}

	fn := &sqlmacro.Function{
		Name:   ns + "." + d.Name,
		Params: params,
		Exec:   fmt.Sprintf("%s.%s(%s)", ns, d.Name, strings.Join(call, ", ")),
		Doc:    d.Doc,
		Source: path,
	}
	if err := fn.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return fn, nil
}
