// Package engine wires a project's macro library, evaluator, rewriter and
// database connection together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	intconfig "github.com/leapstack-labs/sqlext/internal/config"
	"github.com/leapstack-labs/sqlext/internal/db"
	"github.com/leapstack-labs/sqlext/internal/macro"
	starctx "github.com/leapstack-labs/sqlext/internal/starlark"
	"github.com/leapstack-labs/sqlext/pkg/adapter"
	sqlmacro "github.com/leapstack-labs/sqlext/pkg/macro"
	"github.com/leapstack-labs/sqlext/pkg/rewrite"
	"github.com/leapstack-labs/sqlext/pkg/schema"
)

// ErrNoTarget is returned by DB when no target is configured.
var ErrNoTarget = errors.New("no target configured: add a target section to sqlext.yaml")

// Engine owns the rewriter for one project.
type Engine struct {
	// Database (lazy initialized)
	db       *db.DB
	dbConfig *adapter.Config
	dbMu     sync.Mutex

	logger      *slog.Logger
	macrosDir   string
	environment string
	target      *starctx.TargetInfo
	logRequests bool

	reloadMu  sync.Mutex
	library   *macro.Registry
	registry  *sqlmacro.Registry
	evaluator *starctx.Evaluator
	rewriter  *rewrite.Rewriter
}

// Config holds engine configuration.
type Config struct {
	// MacrosDir is the path to the macros directory (optional)
	MacrosDir string
	// Environment is the current environment (dev, staging, prod)
	Environment string
	// Vars are visible to exec bodies as "vars"
	Vars map[string]any
	// Rules are the schema replacement rules
	Rules []schema.Rule
	// MaxIterations bounds each rewrite loop
	MaxIterations int
	// LenientArgs logs malformed macro arguments instead of failing
	LenientArgs bool
	// MaxExecSteps caps the Starlark steps of one exec body; 0 is unbounded
	MaxExecSteps uint64
	// Target describes the database (optional until DB is called)
	Target *intconfig.TargetConfig
	// LogRequests logs every statement sent to the database
	LogRequests bool
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// FromProject converts a project configuration to an engine Config.
func FromProject(p *intconfig.ProjectConfig, logger *slog.Logger) Config {
	return Config{
		MacrosDir:     p.MacrosDir,
		Environment:   p.Env,
		Vars:          p.Vars,
		Rules:         p.SchemaReplacement,
		MaxIterations: p.MaxIterations,
		LenientArgs:   p.LenientArgs,
		MaxExecSteps:  p.MaxExecSteps,
		Target:        p.Target,
		Logger:        logger,
	}
}

// New loads the macro library and builds the rewriter.
// The database is only connected when DB is called.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	env := cfg.Environment
	if env == "" {
		env = intconfig.DefaultEnv
	}

	logger.Debug("initializing engine", "macros_dir", cfg.MacrosDir, "environment", env)

	e := &Engine{
		logger:      logger,
		macrosDir:   cfg.MacrosDir,
		environment: env,
		target:      &starctx.TargetInfo{},
		logRequests: cfg.LogRequests,
		registry:    sqlmacro.NewRegistry(),
	}
	if cfg.Target != nil {
		e.target = cfg.Target.ToTargetInfo()
		ac := cfg.Target.ToAdapterConfig()
		e.dbConfig = &ac
	}

	e.evaluator = starctx.NewEvaluator(
		starctx.WithEnv(env),
		starctx.WithTarget(e.target),
		starctx.WithLogger(logger),
		starctx.WithMaxSteps(cfg.MaxExecSteps),
	)
	if err := e.Reload(); err != nil {
		return nil, err
	}

	rw, err := rewrite.New(rewrite.Config{
		Registry:      e.registry,
		Rules:         cfg.Rules,
		Logger:        logger,
		Evaluator:     e.evaluator,
		Vars:          cfg.Vars,
		MaxIterations: cfg.MaxIterations,
		LenientArgs:   cfg.LenientArgs,
	})
	if err != nil {
		return nil, err
	}
	e.rewriter = rw
	return e, nil
}

// Reload reads the macros directory again and swaps the new entries in.
// On error the previous library stays active.
func (e *Engine) Reload() error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	library := macro.NewRegistry()
	if e.macrosDir != "" {
		var err error
		library, err = macro.LoadAndRegister(e.macrosDir,
			macro.WithPredeclared(starctx.Predeclared(e.environment, e.target)),
			macro.WithLogger(e.logger))
		if err != nil {
			return fmt.Errorf("failed to load macros: %w", err)
		}
	}

	reg, err := library.MacroRegistry()
	if err != nil {
		return fmt.Errorf("failed to register macros: %w", err)
	}
	if err := e.evaluator.SetNamespaces(library.ToStarlarkDict()); err != nil {
		return err
	}

	e.registry.Replace(reg)
	e.library = library
	return nil
}

// DB returns the database facade, connecting on first use.
func (e *Engine) DB(ctx context.Context) (*db.DB, error) {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.db != nil {
		return e.db, nil
	}
	if e.dbConfig == nil {
		return nil, ErrNoTarget
	}

	e.logger.Debug("connecting to database", "adapter_type", e.dbConfig.Type)

	a, err := adapter.NewAdapter(*e.dbConfig, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create database adapter: %w", err)
	}
	if err := a.Connect(ctx, *e.dbConfig); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d, err := db.New(db.Config{
		Adapter:     a,
		Rewriter:    e.rewriter,
		Logger:      e.logger,
		LogRequests: e.logRequests,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	e.db = d
	return d, nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	e.logger.Debug("closing engine")
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// --- Getters (public accessors) ---

// Rewriter returns the project rewriter.
func (e *Engine) Rewriter() *rewrite.Rewriter {
	return e.rewriter
}

// Registry returns the macro registry the rewriter resolves against.
func (e *Engine) Registry() *sqlmacro.Registry {
	return e.registry
}

// Namespaces returns the loaded .star namespaces.
func (e *Engine) Namespaces() []string {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	return e.library.Namespaces()
}

// MacrosDir returns the macros directory.
func (e *Engine) MacrosDir() string {
	return e.macrosDir
}

// Environment returns the environment name.
func (e *Engine) Environment() string {
	return e.environment
}
