package macro

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/sqlext/pkg/scanner"
)

// Delimiter surrounds inline macro references.
const Delimiter = "%%%"

// escapeName is the reserved name of the scanner escape envelope.
const escapeName = "JSEXEC_ESCAPE"

// Evaluator runs the Exec expression of a function.
type Evaluator interface {
	Eval(fn *Function, inv Invocation) (string, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(fn *Function, inv Invocation) (string, error)

// Eval calls f.
func (f EvaluatorFunc) Eval(fn *Function, inv Invocation) (string, error) {
	return f(fn, inv)
}

// Invocation carries the arguments of a function call to an Evaluator.
type Invocation struct {
	Params []string       // fixed parameter names
	Args   []string       // argument text bound to Params, in order
	Rest   []string       // arguments bound to the variadic marker
	Vars   map[string]any // shared state supplied by the caller
}

// Named returns the fixed arguments keyed by parameter name.
func (inv Invocation) Named() map[string]string {
	out := make(map[string]string, len(inv.Params))
	for i, p := range inv.Params {
		out[p] = inv.Args[i]
	}
	return out
}

// Options configures an Expander.
type Options struct {
	Logger    *slog.Logger
	Evaluator Evaluator
	Vars      map[string]any

	// LenientArgs logs malformed %%%NAME(args)%%% argument lists and expands
	// them to an empty string instead of failing.
	LenientArgs bool
}

// Expander resolves macro references against a registry.
type Expander struct {
	reg    *Registry
	opts   Options
	logger *slog.Logger
}

// NewExpander creates an expander over reg.
func NewExpander(reg *Registry, opts Options) *Expander {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Expander{reg: reg, opts: opts, logger: logger}
}

// Registry returns the registry the expander resolves against.
func (e *Expander) Registry() *Registry { return e.reg }

// Shortcut replaces a statement that consists of nothing but the name of a
// plain string macro. A single trailing semicolon is kept.
func (e *Expander) Shortcut(sql string) (string, bool) {
	key, semi := strings.CutSuffix(strings.TrimSpace(sql), ";")
	key = strings.TrimSpace(key)
	if key == "" {
		return sql, false
	}

	entry, ok := e.reg.Lookup(key)
	if !ok || entry.IsFunction() {
		return sql, false
	}
	if semi {
		return entry.Value + ";", true
	}
	return entry.Value, true
}

// Expand performs one pass over sql, resolving every inline macro reference
// that names a registered entry. References are resolved from the end of the
// string backward. Text produced by an expansion is not revisited within the
// same pass; callers repeat Expand until the count is zero.
func (e *Expander) Expand(sql string) (string, int, error) {
	if !strings.Contains(sql, Delimiter) {
		return sql, 0, nil
	}

	pos := delimiters(sql)
	count := 0
	for k := len(pos) - 1; k >= 1; {
		open, closing := pos[k-1], pos[k]
		out, ok, err := e.resolve(sql[open+len(Delimiter) : closing])
		if err != nil {
			return "", count, err
		}
		if !ok {
			k--
			continue
		}
		sql = sql[:open] + out + sql[closing+len(Delimiter):]
		count++
		k -= 2
	}
	return sql, count, nil
}

// resolve expands the text between a pair of delimiters. ok is false when
// the text is not a reference to a registered entry.
func (e *Expander) resolve(inner string) (string, bool, error) {
	ref := strings.TrimSpace(inner)
	name, rawArgs, hasArgs := splitRef(ref)
	if name == "" || strings.EqualFold(name, escapeName) {
		return "", false, nil
	}

	entry, ok := e.reg.Lookup(name)
	if !ok {
		return "", false, nil
	}

	if !hasArgs {
		if !entry.IsFunction() {
			return entry.Value, true, nil
		}
		out, err := e.Call(entry.Func, nil)
		return out, true, withRef(err, Delimiter+ref+Delimiter)
	}

	if !entry.IsFunction() {
		return "", false, nil
	}

	args, err := parseArgs(entry.Func, rawArgs)
	if err != nil {
		argsErr := &ArgsError{Name: entry.Func.Name, Ref: Delimiter + ref + Delimiter, Err: err}
		if e.opts.LenientArgs {
			e.logger.Error("error parsing macro arguments",
				"macro", entry.Func.Name,
				"ref", argsErr.Ref,
				"error", err)
			return "", true, nil
		}
		return "", false, argsErr
	}

	out, err := e.Call(entry.Func, args)
	return out, true, withRef(err, Delimiter+ref+Delimiter)
}

// Call expands fn with already split argument text.
func (e *Expander) Call(fn *Function, args []string) (string, error) {
	fixed := fn.Fixed()
	if len(args) < len(fixed) || (!fn.IsVariadic() && len(args) != len(fixed)) {
		return "", &ArgCountError{
			Name:     fn.Name,
			Want:     len(fixed),
			Got:      len(args),
			Variadic: fn.IsVariadic(),
		}
	}
	bound, rest := args[:len(fixed)], args[len(fixed):]

	if fn.Exec != "" {
		return e.eval(fn, bound, rest)
	}

	pairs := make([]string, 0, 2*len(fixed)+2)
	for i, p := range fixed {
		pairs = append(pairs, Delimiter+p+Delimiter, bound[i])
	}
	if fn.IsVariadic() {
		pairs = append(pairs, Delimiter+Variadic+Delimiter, strings.Join(rest, ", "))
	}
	return strings.NewReplacer(pairs...).Replace(fn.SQL), nil
}

func (e *Expander) eval(fn *Function, bound, rest []string) (string, error) {
	if e.opts.Evaluator == nil {
		return "", &ExecError{Name: fn.Name, Source: fn.Exec, Err: ErrNoEvaluator}
	}
	out, err := e.opts.Evaluator.Eval(fn, Invocation{
		Params: fn.Fixed(),
		Args:   bound,
		Rest:   rest,
		Vars:   e.opts.Vars,
	})
	if err != nil {
		return "", &ExecError{Name: fn.Name, Source: fn.Exec, Err: err}
	}
	return out, nil
}

// splitRef splits "name(args)" into its parts. A reference without
// parentheses has no arguments.
func splitRef(ref string) (name, args string, hasArgs bool) {
	p := strings.IndexByte(ref, '(')
	if p < 0 {
		return ref, "", false
	}
	if !strings.HasSuffix(ref, ")") {
		return "", "", false
	}
	return strings.TrimSpace(ref[:p]), strings.TrimSpace(ref[p+1 : len(ref)-1]), true
}

// parseArgs decodes the argument list of a reference as the elements of a
// JSON array. Functions without declared parameters receive the raw text.
func parseArgs(fn *Function, raw string) ([]string, error) {
	if len(fn.Params) == 0 {
		if raw == "" {
			return nil, nil
		}
		return []string{raw}, nil
	}

	dec := json.NewDecoder(strings.NewReader("[" + raw + "]"))
	dec.UseNumber()

	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after argument list")
	}

	args := make([]string, len(values))
	for i, v := range values {
		s, err := argText(v)
		if err != nil {
			return nil, err
		}
		args[i] = s
	}
	return args, nil
}

// argText renders a decoded JSON argument as substitution text.
func argText(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "null", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// delimiters returns the offsets of every %%% outside escape envelopes.
func delimiters(sql string) []int {
	regions := escapeRegions(sql)

	var out []int
	for i := 0; i < len(sql); {
		idx := strings.Index(sql[i:], Delimiter)
		if idx < 0 {
			break
		}
		p := i + idx
		if end, inside := regionEnd(regions, p); inside {
			i = end
			continue
		}
		out = append(out, p)
		i = p + len(Delimiter)
	}
	return out
}

func escapeRegions(sql string) [][2]int {
	var out [][2]int
	for i := 0; i < len(sql); {
		s := strings.Index(sql[i:], scanner.EscapeStart)
		if s < 0 {
			break
		}
		start := i + s
		e := strings.Index(sql[start+len(scanner.EscapeStart):], scanner.EscapeEnd)
		if e < 0 {
			break
		}
		end := start + len(scanner.EscapeStart) + e + len(scanner.EscapeEnd)
		out = append(out, [2]int{start, end})
		i = end
	}
	return out
}

func regionEnd(regions [][2]int, p int) (int, bool) {
	for _, r := range regions {
		if p >= r[0] && p < r[1] {
			return r[1], true
		}
	}
	return 0, false
}

func withRef(err error, ref string) error {
	var countErr *ArgCountError
	if errors.As(err, &countErr) && countErr.Ref == "" {
		countErr.Ref = ref
	}
	return err
}
