package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "sqlext.yaml"
	ConfigFileNameAlt = "sqlext.yml"
)

// LoadFromDir loads the project config file in dir. It returns nil, nil
// when dir has no config file.
func LoadFromDir(dir string) (*ProjectConfig, error) {
	path := FindConfigFile(dir)
	if path == "" {
		return nil, nil
	}
	return LoadFile(path)
}

// LoadFile loads, defaults and validates a project config file.
func LoadFile(path string) (*ProjectConfig, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]any{
		"macros_dir":     DefaultMacrosDir,
		"env":            DefaultEnv,
		"max_iterations": DefaultMaxIterations,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg ProjectConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	if err := cfg.ValidateRules(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfigFile returns the config file in dir, or "" when there is none.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// FindProjectRoot returns the nearest directory at or above startDir that
// holds a config file, or "" when no ancestor does.
func FindProjectRoot(startDir string) string {
	for dir := startDir; ; {
		if FindConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
