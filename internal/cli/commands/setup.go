package commands

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/sqlext/internal/cli/config"
	"github.com/leapstack-labs/sqlext/internal/engine"
	"github.com/spf13/cobra"
)

// CommandContext bundles what a command needs to talk to the engine.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Engine *engine.Engine
}

// NewCommandContext loads the macro library and returns the engine with a
// cleanup func the caller must defer.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg, err := activeConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := config.GetLogger(commandCtx(cmd))

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return &CommandContext{Cfg: cfg, Logger: logger, Engine: eng}, func() { _ = eng.Close() }, nil
}

// commandCtx returns the command context, or Background before Execute.
func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// activeConfig returns the config loaded by the root command. Commands run
// on their own (in tests) load it from the working directory and SQLEXT_
// environment variables instead.
func activeConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", nil)
}

// outputFormat reports the configured output format.
func outputFormat() string {
	if cfg := config.GetCurrentConfig(); cfg != nil && cfg.OutputFormat != "" {
		return cfg.OutputFormat
	}
	return config.DefaultOutput
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	engineCfg := engine.FromProject(cfg.Project(), logger)
	engineCfg.LogRequests = cfg.LogRequests
	return engine.New(engineCfg)
}
