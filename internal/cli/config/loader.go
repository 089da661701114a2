package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	intconfig "github.com/leapstack-labs/sqlext/internal/config"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// envPrefix prefixes every environment variable read as configuration.
const envPrefix = "SQLEXT_"

// flagKeys maps CLI flags to the configuration keys they override.
// Flags not listed here are command options, not configuration.
var flagKeys = map[string]string{
	"macros-dir":     "macros_dir",
	"env":            "env",
	"lenient-args":   "lenient_args",
	"max-iterations": "max_iterations",
	"verbose":        "verbose",
	"output":         "output",
	"log-requests":   "log_requests",
}

// Package-level config file tracking
var (
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// inferProjectRoot determines the project root from CLI flags and filesystem.
// Priority:
//  1. Explicit --project-dir flag
//  2. Directory of an explicit config file
//  3. Search upward from CWD for sqlext.yaml
//  4. Current working directory
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Lookup("project-dir") != nil && flags.Changed("project-dir") {
		if projectDir, _ := flags.GetString("project-dir"); projectDir != "" {
			if abs, err := filepath.Abs(projectDir); err == nil {
				return abs
			}
			return filepath.Clean(projectDir)
		}
	}

	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}

	cwd, _ := os.Getwd()
	if cwd == "" {
		return "."
	}
	if root := intconfig.FindProjectRoot(cwd); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig clears the tracked config. Used for testing.
func ResetConfig() {
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadConfigWithTarget(cfgFile, "", flags)
}

// LoadConfigWithTarget loads configuration and applies the environment
// section selected by envOverride, or by the env setting when envOverride
// is empty.
//
// Precedence, highest first: flags, SQLEXT_ variables, the selected
// environments.<name> section, the config file, defaults.
func LoadConfigWithTarget(cfgFile string, envOverride string, flags *pflag.FlagSet) (*Config, error) {
	projectRoot := inferProjectRoot(cfgFile, flags)

	// The macros dir given as a flag is relative to the CWD, not the root.
	var flagMacrosDir string
	if flags != nil && flags.Lookup("macros-dir") != nil && flags.Changed("macros-dir") {
		if v, _ := flags.GetString("macros-dir"); v != "" {
			flagMacrosDir, _ = filepath.Abs(v)
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]any{
		"macros_dir":     DefaultMacrosDir,
		"env":            DefaultEnv,
		"max_iterations": DefaultMaxIterations,
		"verbose":        false,
		"output":         DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = intconfig.FindConfigFile(projectRoot)
	}
	configFileUsed = cfgFile
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	overrides, err := loadOverrides(flags)
	if err != nil {
		return nil, err
	}

	envName := envOverride
	if envName == "" {
		envName = overrides.String("env")
	}
	if envName == "" {
		envName = k.String("env")
	}
	if section := k.Cut("environments." + envName); len(section.Keys()) > 0 {
		if err := k.Merge(section); err != nil {
			return nil, fmt.Errorf("failed to apply environment %q: %w", envName, err)
		}
	}
	if err := k.Merge(overrides); err != nil {
		return nil, fmt.Errorf("failed to apply overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot
	cfg.Environment = envName

	if flagMacrosDir != "" {
		cfg.MacrosDir = flagMacrosDir
	} else {
		cfg.MacrosDir = resolvePathRelativeTo(cfg.MacrosDir, projectRoot)
	}

	if cfg.Target != nil {
		cfg.Target.ApplyDefaults()
		expandTargetEnvVars(cfg.Target)
		if err := cfg.Target.Validate(); err != nil {
			return nil, fmt.Errorf("invalid target configuration: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// loadOverrides reads SQLEXT_ variables and changed flags.
func loadOverrides(flags *pflag.FlagSet) (*koanf.Koanf, error) {
	o := koanf.New(".")
	if err := o.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	if flags == nil {
		return o, nil
	}
	if err := o.Load(posflag.ProviderWithFlag(flags, ".", o, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}
	return o, nil
}

// envKey maps an environment variable name to a configuration key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if rest, ok := strings.CutPrefix(key, "target_"); ok {
		return "target." + rest
	}
	return key
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig or LoadConfigWithTarget is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandTargetEnvVars expands environment variables in sensitive target fields.
func expandTargetEnvVars(t *TargetConfig) {
	if t == nil {
		return
	}
	t.DSN = expandEnvVars(t.DSN)
	t.Password = expandEnvVars(t.Password)
	t.User = expandEnvVars(t.User)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
}
