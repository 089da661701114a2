package starlark

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/leapstack-labs/sqlext/pkg/macro"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// resultName is the global that receives the value of an exec body.
const resultName = "_result"

// fileOptions enables the statements exec bodies commonly need.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Evaluator runs the Exec bodies of SQL functions as Starlark.
//
// A body that parses as an expression is evaluated directly. Anything else
// is treated as the body of a function whose return value is the result.
// Declared parameters are bound as strings, the variadic arguments as the
// list "args" and the caller's vars as the dict "vars". Loaded .star
// namespaces are available by name.
type Evaluator struct {
	env    string
	target *TargetInfo
	pool     *ThreadPool
	maxSteps uint64
	logger   *slog.Logger

	mu         sync.RWMutex
	namespaces starlark.StringDict
}

var _ macro.Evaluator = (*Evaluator)(nil)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithEnv sets the "env" global.
func WithEnv(env string) Option {
	return func(e *Evaluator) { e.env = env }
}

// WithTarget sets the "target" global.
func WithTarget(target *TargetInfo) Option {
	return func(e *Evaluator) { e.target = target }
}

// WithLogger sets the logger receiving print() output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// WithMaxSteps caps the Starlark steps a single function body may take.
func WithMaxSteps(n uint64) Option {
	return func(e *Evaluator) { e.maxSteps = n }
}

// WithNamespaces sets the initial namespaces.
func WithNamespaces(ns starlark.StringDict) Option {
	return func(e *Evaluator) { e.namespaces = ns }
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		logger:     slog.New(slog.DiscardHandler),
		namespaces: make(starlark.StringDict),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = NewThreadPool(0, e.maxSteps)
	return e
}

// SetNamespaces replaces the loaded namespaces.
// Returns error if a namespace conflicts with a builtin.
func (e *Evaluator) SetNamespaces(ns starlark.StringDict) error {
	for name := range ns {
		if IsReserved(name) {
			return fmt.Errorf("namespace %q conflicts with builtin", name)
		}
	}

	copied := make(starlark.StringDict, len(ns))
	for k, v := range ns {
		copied[k] = v
	}

	e.mu.Lock()
	e.namespaces = copied
	e.mu.Unlock()
	return nil
}

// Namespaces returns the names of the loaded namespaces.
func (e *Evaluator) Namespaces() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.namespaces.Keys()
}

// Eval implements macro.Evaluator.
func (e *Evaluator) Eval(fn *macro.Function, inv macro.Invocation) (string, error) {
	filename := fn.Source
	if filename == "" {
		filename = fn.Name
	}

	globals, err := e.globals(inv)
	if err != nil {
		return "", &EvalError{File: filename, Expr: fn.Exec, Message: err.Error()}
	}

	src, offset := wrapSource(filename, fn.Exec)

	thread := e.pool.Acquire(filename, func(msg string) {
		e.logger.Info(msg, "function", fn.Name)
	})
	defer e.pool.Release(thread)

	out, err := starlark.ExecFileOptions(fileOptions, thread, filename, src, globals)
	if err != nil {
		return "", newEvalError(filename, fn.Exec, offset, err)
	}
	sql, err := ToSQL(out[resultName])
	if err != nil {
		return "", &EvalError{File: filename, Expr: fn.Exec, Message: err.Error()}
	}
	return sql, nil
}

// EvalString evaluates a single expression with the evaluator's globals.
func (e *Evaluator) EvalString(expr string, vars map[string]any) (string, error) {
	return e.Eval(&macro.Function{Name: "<expr>", Exec: expr}, macro.Invocation{Vars: vars})
}

// globals builds the predeclared names for one invocation.
func (e *Evaluator) globals(inv macro.Invocation) (starlark.StringDict, error) {
	globals := Predeclared(e.env, e.target)

	e.mu.RLock()
	for name, ns := range e.namespaces {
		globals[name] = ns
	}
	e.mu.RUnlock()

	rest := make([]starlark.Value, len(inv.Rest))
	for i, a := range inv.Rest {
		rest[i] = starlark.String(a)
	}
	globals["args"] = starlark.NewList(rest)

	vars, err := GoToStarlark(inv.Vars)
	if err != nil {
		return nil, fmt.Errorf("vars: %w", err)
	}
	if vars == starlark.None {
		vars = starlark.NewDict(0)
	}
	globals["vars"] = vars

	for i, p := range inv.Params {
		globals[p] = starlark.String(inv.Args[i])
	}
	return globals, nil
}

// wrapSource turns an exec body into a program that assigns its value to
// resultName. offset is the number of lines added in front of the body.
func wrapSource(filename, body string) (string, int) {
	if _, err := fileOptions.ParseExpr(filename, body, 0); err == nil {
		return resultName + " = (\n" + body + "\n)\n", 1
	}

	var sb strings.Builder
	sb.WriteString("def _exec():\n")
	for _, line := range strings.Split(body, "\n") {
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString(resultName + " = _exec()\n")
	return sb.String(), 1
}

// EvalError represents an error while evaluating an exec body.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Message string
}

func newEvalError(file, expr string, offset int, err error) *EvalError {
	ev := &EvalError{File: file, Expr: expr, Message: err.Error()}

	var syntaxErr syntax.Error
	var resolveErrs resolve.ErrorList
	var evalErr *starlark.EvalError
	switch {
	case errors.As(err, &syntaxErr):
		ev.Line = int(syntaxErr.Pos.Line) - offset
		ev.Message = syntaxErr.Msg
	case errors.As(err, &resolveErrs) && len(resolveErrs) > 0:
		ev.Line = int(resolveErrs[0].Pos.Line) - offset
		ev.Message = resolveErrs[0].Msg
	case errors.As(err, &evalErr):
		ev.Message = evalErr.Msg
		for i := len(evalErr.CallStack) - 1; i >= 0; i-- {
			if pos := evalErr.CallStack.At(i).Pos; pos.Line > 0 && pos.Filename() == file {
				ev.Line = int(pos.Line) - offset
				break
			}
		}
	}
	if ev.Line < 0 {
		ev.Line = 0
	}
	return ev
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}
