// Package config provides configuration management for the sqlext CLI.
//
// This package extends the shared project configuration from
// internal/config with CLI-specific fields and environment overrides.
package config

import (
	sharedcfg "github.com/leapstack-labs/sqlext/internal/config"
	"github.com/leapstack-labs/sqlext/pkg/schema"
)

// TargetConfig is an alias for the shared target configuration.
type TargetConfig = sharedcfg.TargetConfig

// Config holds all CLI configuration options.
type Config struct {
	ProjectRoot string `koanf:"-"`

	MacrosDir         string               `koanf:"macros_dir"`
	Environment       string               `koanf:"env"`
	Vars              map[string]any       `koanf:"vars"`
	MaxIterations     int                  `koanf:"max_iterations"`
	LenientArgs       bool                 `koanf:"lenient_args"`
	MaxExecSteps      uint64               `koanf:"max_exec_steps"`
	SchemaReplacement []schema.Rule        `koanf:"schema_replacement"`
	Target            *TargetConfig        `koanf:"target"`
	Environments      map[string]EnvConfig `koanf:"environments"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`
	LogRequests  bool   `koanf:"log_requests"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	MacrosDir string         `koanf:"macros_dir"`
	Vars      map[string]any `koanf:"vars"`
	Target    *TargetConfig  `koanf:"target"`
}

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultMacrosDir     = sharedcfg.DefaultMacrosDir
	DefaultEnv           = sharedcfg.DefaultEnv
	DefaultMaxIterations = sharedcfg.DefaultMaxIterations
	DefaultOutput        = "text"
)

// Project returns the shared project view of the configuration.
func (c *Config) Project() *sharedcfg.ProjectConfig {
	return &sharedcfg.ProjectConfig{
		MacrosDir:         c.MacrosDir,
		Env:               c.Environment,
		Vars:              c.Vars,
		MaxIterations:     c.MaxIterations,
		LenientArgs:       c.LenientArgs,
		MaxExecSteps:      c.MaxExecSteps,
		SchemaReplacement: c.SchemaReplacement,
		Target:            c.Target,
	}
}
