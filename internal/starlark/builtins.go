package starlark

import (
	"maps"
	"slices"
	"strings"

	"github.com/leapstack-labs/sqlext/pkg/scanner"
	starlarkjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
)

// reserved lists the names Predeclared and the evaluator bind.
var reserved = map[string]bool{
	"env":    true,
	"target": true,
	"args":   true,
	"vars":   true,
	"escape": true,
	"quote":  true,
	"ident":  true,
	"json":   true,
}

// IsReserved reports whether name is bound by the evaluator itself.
func IsReserved(name string) bool {
	return reserved[name]
}

// ReservedNames returns the names bound by the evaluator, sorted.
func ReservedNames() []string {
	return slices.Sorted(maps.Keys(reserved))
}

// Predeclared returns the builtin globals shared by exec bodies and
// loaded .star files.
func Predeclared(env string, target *TargetInfo) starlark.StringDict {
	globals := starlark.StringDict{
		"env":    starlark.String(env),
		"escape": starlark.NewBuiltin("escape", escape),
		"quote":  starlark.NewBuiltin("quote", quote),
		"ident":  starlark.NewBuiltin("ident", ident),
		"json":   starlarkjson.Module,
	}

	if target != nil {
		globals["target"] = target.ToStarlark()
	} else {
		globals["target"] = (&TargetInfo{}).ToStarlark()
	}

	return globals
}

// escape(text) wraps text so no later rewrite pass touches it.
func escape(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
		return nil, err
	}
	return starlark.String(scanner.Escape(text)), nil
}

// quote(value) renders value as a SQL string literal.
func quote(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &value); err != nil {
		return nil, err
	}
	if value == starlark.None {
		return starlark.String("null"), nil
	}
	text, err := ToSQL(value)
	if err != nil {
		return nil, err
	}
	return starlark.String("'" + strings.ReplaceAll(text, "'", "''") + "'"), nil
}

// ident(name) renders name as a double-quoted identifier.
func ident(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return starlark.String(`"` + strings.ReplaceAll(name, `"`, `""`) + `"`), nil
}
