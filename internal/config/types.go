// Package config provides shared configuration types for sqlext.
// This package is decoupled from CLI concerns and can be used by any tool
// that needs to load project configuration.
package config

import (
	"fmt"
	"strings"

	starctx "github.com/leapstack-labs/sqlext/internal/starlark"
	"github.com/leapstack-labs/sqlext/pkg/adapter"
	"github.com/leapstack-labs/sqlext/pkg/schema"
)

// TargetConfig holds database target configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // sqlite, postgres, duckdb

	// DSN is passed to the driver verbatim when set.
	DSN string `koanf:"dsn"`

	// File-based databases (SQLite, DuckDB)
	Database string `koanf:"database"` // file path or database name

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, settings)
	Params map[string]any `koanf:"params"`
}

// DefaultSchemaForType returns the default schema for a database type.
func DefaultSchemaForType(dbType string) string {
	switch strings.ToLower(dbType) {
	case "postgres":
		return "public"
	default:
		return "main"
	}
}

// ToTargetInfo converts TargetConfig to a starlark.TargetInfo for exec bodies.
// This extracts only the fields that should be exposed to macros (not credentials).
func (t *TargetConfig) ToTargetInfo() *starctx.TargetInfo {
	return &starctx.TargetInfo{
		Type:     t.Type,
		Schema:   t.Schema,
		Database: t.Database,
	}
}

// ToAdapterConfig converts TargetConfig to the connection settings of an adapter.
func (t *TargetConfig) ToAdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     t.Type,
		DSN:      t.DSN,
		Database: t.Database,
		Host:     t.Host,
		Port:     t.Port,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// Validate checks if the target configuration is valid.
// It uses the adapter registry to determine which adapter types are available.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}

	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}

	return nil
}

// ProjectConfig holds the project configuration needed to build a rewriter.
type ProjectConfig struct {
	MacrosDir         string         `koanf:"macros_dir"`
	Env               string         `koanf:"env"`
	Vars              map[string]any `koanf:"vars"`
	MaxIterations     int            `koanf:"max_iterations"`
	LenientArgs       bool           `koanf:"lenient_args"`
	MaxExecSteps      uint64         `koanf:"max_exec_steps"`
	SchemaReplacement []schema.Rule  `koanf:"schema_replacement"`
	Target            *TargetConfig  `koanf:"target"`
}

// ValidateRules checks that every schema replacement rule compiles.
func (c *ProjectConfig) ValidateRules() error {
	if _, err := schema.NewReplacer(c.SchemaReplacement, nil); err != nil {
		return fmt.Errorf("invalid schema_replacement: %w", err)
	}
	return nil
}
