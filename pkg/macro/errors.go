package macro

import (
	"errors"
	"fmt"
)

// ErrNoEvaluator is returned when an exec function is called without an
// Evaluator configured.
var ErrNoEvaluator = errors.New("no expression evaluator configured")

// ArgCountError is returned when a function is called with the wrong number
// of arguments.
type ArgCountError struct {
	Name     string
	Want     int
	Got      int
	Variadic bool
	Ref      string // the offending reference, when known
}

func (e *ArgCountError) Error() string {
	want := fmt.Sprintf("%d", e.Want)
	if e.Variadic {
		want = "at least " + want
	}
	msg := fmt.Sprintf("function %s: invalid argument count: want %s, got %d", e.Name, want, e.Got)
	if e.Ref != "" {
		msg += ": " + e.Ref
	}
	return msg
}

// ArgsError is returned when the arguments of a %%%NAME(args)%%% reference
// are not a valid JSON list.
type ArgsError struct {
	Name string
	Ref  string
	Err  error
}

func (e *ArgsError) Error() string {
	return fmt.Sprintf("macro %s: error parsing arguments: %s: %v", e.Name, e.Ref, e.Err)
}

func (e *ArgsError) Unwrap() error { return e.Err }

// ExecError wraps a failure of an exec function.
type ExecError struct {
	Name   string
	Source string
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("function %s: error executing %q: %v", e.Name, e.Source, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }
