// Package rewrite is the entry point of the SQL rewriting engine.
//
// A Rewriter expands %%%NAME%%% macros and calls to registered functions
// until the text stops changing, then applies schema replacement rules until
// that is stable too, and finally unwraps escape envelopes.
package rewrite

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/leapstack-labs/sqlext/pkg/funccall"
	"github.com/leapstack-labs/sqlext/pkg/macro"
	"github.com/leapstack-labs/sqlext/pkg/scanner"
	"github.com/leapstack-labs/sqlext/pkg/schema"
)

// DefaultMaxIterations bounds each stabilization loop.
const DefaultMaxIterations = 1000

// ErrNotConverged is returned when a rewrite loop keeps changing the text,
// typically because macros reference each other in a cycle.
var ErrNotConverged = errors.New("rewrite did not converge")

// Config configures a Rewriter.
type Config struct {
	Registry  *macro.Registry
	Rules     []schema.Rule
	Logger    *slog.Logger
	Evaluator macro.Evaluator
	Vars      map[string]any

	// File labels scan errors.
	File string

	// MaxIterations bounds each loop; zero means DefaultMaxIterations.
	MaxIterations int

	// LenientArgs logs malformed macro argument lists instead of failing.
	LenientArgs bool
}

// Rewriter rewrites SQL text. It is safe for concurrent use as long as the
// registry is not modified during a rewrite.
type Rewriter struct {
	cfg      Config
	logger   *slog.Logger
	expander *macro.Expander
	replacer *schema.Replacer

	mu             sync.Mutex
	matcher        *funccall.Matcher
	matcherVersion uint64
}

// New creates a Rewriter.
func New(cfg Config) (*Rewriter, error) {
	if cfg.Registry == nil {
		cfg.Registry = macro.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	replacer, err := schema.NewReplacer(cfg.Rules, cfg.Logger)
	if err != nil {
		return nil, err
	}

	return &Rewriter{
		cfg:    cfg,
		logger: cfg.Logger,
		expander: macro.NewExpander(cfg.Registry, macro.Options{
			Logger:      cfg.Logger,
			Evaluator:   cfg.Evaluator,
			Vars:        cfg.Vars,
			LenientArgs: cfg.LenientArgs,
		}),
		replacer: replacer,
	}, nil
}

// Registry returns the macro registry.
func (r *Rewriter) Registry() *macro.Registry { return r.cfg.Registry }

// WithFuncs returns a Rewriter that also resolves the given entries.
// Entries win over registry entries of the same name. The receiver is not
// modified.
func (r *Rewriter) WithFuncs(entries ...macro.Entry) (*Rewriter, error) {
	if len(entries) == 0 {
		return r, nil
	}
	reg, err := r.cfg.Registry.Overlay(entries...)
	if err != nil {
		return nil, err
	}
	cfg := r.cfg
	cfg.Registry = reg
	return New(cfg)
}

// WithVars returns a Rewriter whose exec functions see vars.
func (r *Rewriter) WithVars(vars map[string]any) (*Rewriter, error) {
	cfg := r.cfg
	cfg.Vars = vars
	return New(cfg)
}

// ParseLines joins lines with single spaces and rewrites the result.
func (r *Rewriter) ParseLines(lines []string) (string, error) {
	return r.ParseSQL(strings.Join(lines, " "))
}

// ParseSQL rewrites sql.
func (r *Rewriter) ParseSQL(sql string) (string, error) {
	if sql == "" {
		return sql, nil
	}

	if out, ok := r.expander.Shortcut(sql); ok {
		r.logger.Debug("statement replaced by macro", "name", strings.TrimSpace(sql))
		sql = out
	}

	sql, err := r.expandFixedPoint(sql)
	if err != nil {
		return "", err
	}

	sql, err = r.replaceFixedPoint(sql)
	if err != nil {
		return "", err
	}

	return scanner.Unescape(sql), nil
}

// expandFixedPoint alternates macro expansion and function rewriting until
// a round leaves the text unchanged.
func (r *Rewriter) expandFixedPoint(sql string) (string, error) {
	matcher, err := r.currentMatcher()
	if err != nil {
		return "", err
	}

	for round := 0; ; round++ {
		if round >= r.cfg.MaxIterations {
			return "", fmt.Errorf("%w: macro expansion still changing after %d rounds", ErrNotConverged, round)
		}

		expanded, macros, err := r.expander.Expand(sql)
		if err != nil {
			return "", err
		}

		rewritten, calls, err := matcher.Rewrite(expanded, r.cfg.File, r.callFunction)
		if errors.Is(err, funccall.ErrCallLimit) {
			return "", fmt.Errorf("%w: %w", ErrNotConverged, err)
		}
		if err != nil {
			return "", err
		}

		if rewritten == sql {
			return sql, nil
		}
		r.logger.Debug("expansion round", "round", round+1, "macros", macros, "calls", calls)
		sql = rewritten
	}
}

// replaceFixedPoint applies schema rules until the text is stable.
func (r *Rewriter) replaceFixedPoint(sql string) (string, error) {
	if r.replacer.Len() == 0 {
		return sql, nil
	}

	for round := 0; ; round++ {
		if round >= r.cfg.MaxIterations {
			return "", fmt.Errorf("%w: schema replacement still changing after %d rounds", ErrNotConverged, round)
		}

		out, n, err := r.replacer.Replace(sql, r.cfg.File)
		if err != nil {
			return "", err
		}
		if out == sql {
			return sql, nil
		}
		r.logger.Debug("schema replacement round", "round", round+1, "replaced", n)
		sql = out
	}
}

func (r *Rewriter) callFunction(call *funccall.Call) (string, error) {
	return r.expander.Call(call.Func, call.CallArgs())
}

// currentMatcher returns a matcher for the registry's current functions,
// rebuilding it when the registry has changed.
func (r *Rewriter) currentMatcher() (*funccall.Matcher, error) {
	version := r.cfg.Registry.Version()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.matcher != nil && r.matcherVersion == version {
		return r.matcher, nil
	}

	m, err := funccall.NewMatcher(r.cfg.Registry.Functions(), funccall.Options{
		Logger:   r.logger,
		MaxCalls: funccall.DefaultMaxCalls,
	})
	if err != nil {
		return nil, err
	}
	r.matcher = m
	r.matcherVersion = version
	return m, nil
}
