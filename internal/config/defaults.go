package config

import "github.com/leapstack-labs/sqlext/pkg/adapter"

// Default configuration values.
const (
	DefaultMacrosDir     = "macros"
	DefaultEnv           = "dev"
	DefaultMaxIterations = 1000
	DefaultPostgresPort  = 5432
)

// ApplyDefaults fills the macros dir, environment and iteration ceiling.
func (c *ProjectConfig) ApplyDefaults() {
	if c == nil {
		return
	}
	if c.MacrosDir == "" {
		c.MacrosDir = DefaultMacrosDir
	}
	if c.Env == "" {
		c.Env = DefaultEnv
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	c.Target.ApplyDefaults()
}

// ApplyDefaults resolves driver aliases and fills the schema and port the
// driver expects when they are not set.
func (t *TargetConfig) ApplyDefaults() {
	if t == nil {
		return
	}

	t.Type = adapter.CanonicalName(t.Type)
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" && t.Port == 0 && t.DSN == "" {
		t.Port = DefaultPostgresPort
	}
}
