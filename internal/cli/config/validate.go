package config

import (
	"fmt"
	"os"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	switch c.OutputFormat {
	case "", "text", "json", "table":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or table)", c.OutputFormat)
	}
	return c.Project().ValidateRules()
}

// RequireTarget returns an error when no database target is configured.
func (c *Config) RequireTarget() error {
	if c.Target == nil {
		return fmt.Errorf("no target configured\nHint: Add a target section to sqlext.yaml or set SQLEXT_TARGET_TYPE")
	}
	return nil
}

// MacrosDirExists reports whether the macros directory exists.
func (c *Config) MacrosDirExists() bool {
	info, err := os.Stat(c.MacrosDir)
	return err == nil && info.IsDir()
}
