// Package macro holds the macro registry and the %%%NAME%%% expander.
//
// A registry entry is either a plain string or a parameterized Function.
// Functions are also the call signatures the function-call pass looks for
// in ordinary SQL call syntax.
package macro

import (
	"fmt"
	"strings"
)

// Variadic is the parameter marker that binds any remaining arguments.
const Variadic = "..."

// Function is a parameterized macro.
//
// Exactly one of SQL or Exec is used. SQL is a template whose %%%param%%%
// placeholders are replaced by argument text, with %%%...%%% standing for the
// remaining arguments. Exec is an expression handed to the configured
// Evaluator.
type Function struct {
	Name   string   `yaml:"name,omitempty" json:"name"`
	Params []string `yaml:"params" json:"params"`
	SQL    string   `yaml:"sql,omitempty" json:"sql,omitempty"`
	Exec   string   `yaml:"exec,omitempty" json:"exec,omitempty"`
	Doc    string   `yaml:"doc,omitempty" json:"doc,omitempty"`
	Source string   `yaml:"-" json:"source,omitempty"` // file the function was loaded from
}

// Validate checks the function definition.
func (f *Function) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if f.SQL != "" && f.Exec != "" {
		return fmt.Errorf("function %s: sql and exec are mutually exclusive", f.Name)
	}

	seen := make(map[string]struct{}, len(f.Params))
	for i, p := range f.Params {
		if p == Variadic {
			if i != len(f.Params)-1 {
				return fmt.Errorf("function %s: %s must be the last parameter", f.Name, Variadic)
			}
			continue
		}
		if p == "" {
			return fmt.Errorf("function %s: parameter %d has no name", f.Name, i+1)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("function %s: duplicate parameter %q", f.Name, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// IsVariadic reports whether the function accepts extra arguments.
// A function without declared parameters takes its raw argument text as a
// single extra argument, so it counts as variadic.
func (f *Function) IsVariadic() bool {
	n := len(f.Params)
	return n == 0 || f.Params[n-1] == Variadic
}

// Fixed returns the declared parameters without the variadic marker.
func (f *Function) Fixed() []string {
	if n := len(f.Params); n > 0 && f.Params[n-1] == Variadic {
		return f.Params[:n-1]
	}
	return f.Params
}

// Signature renders the function as name(p1, p2).
func (f *Function) Signature() string {
	return f.Name + "(" + strings.Join(f.Params, ", ") + ")"
}

// Kind describes how the function produces its text.
func (f *Function) Kind() string {
	if f.Exec != "" {
		return "exec"
	}
	return "sql"
}

// Entry is a registry entry: a plain string value or a function.
type Entry struct {
	Name  string
	Value string
	Func  *Function
}

// IsFunction reports whether the entry is a parameterized function.
func (e Entry) IsFunction() bool {
	return e.Func != nil
}
