// Package macro loads macro and function libraries from a directory.
//
// .star files are executed as Starlark modules namespaced by filename; each
// public def becomes a SQL function "namespace.name" whose exec body calls
// it. .yaml and .yml files hold plain macros and template functions.
package macro

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sqlmacro "github.com/leapstack-labs/sqlext/pkg/macro"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"gopkg.in/yaml.v3"
)

// fileOptions matches the options exec bodies are run with.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Loader scans a directory for .star and .yaml files.
type Loader struct {
	dir         string
	predeclared starlark.StringDict
	logger      *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPredeclared sets the globals visible to .star files while loading.
func WithPredeclared(globals starlark.StringDict) LoaderOption {
	return func(l *Loader) { l.predeclared = globals }
}

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a new loader for the specified directory.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{dir: dir, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the directory the loader reads.
func (l *Loader) Dir() string { return l.dir }

// LoadedModule represents an executed .star file.
type LoadedModule struct {
	// Namespace is derived from filename (e.g., "datetime" from "datetime.star")
	Namespace string

	// Path is the path to the .star file
	Path string

	// Exports contains all exported functions/values (names not starting with _)
	Exports starlark.StringDict

	// Functions are the SQL functions calling the module's public defs.
	Functions []*sqlmacro.Function
}

// Load executes every .star file in the directory.
// A missing directory yields no modules.
func (l *Loader) Load() ([]*LoadedModule, error) {
	files, err := l.glob("*.star")
	if err != nil {
		return nil, err
	}

	var modules []*LoadedModule
	for _, file := range files {
		module, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	return modules, nil
}

// LoadDefinitions reads every .yaml and .yml file in the directory.
// Entries are returned in file order.
func (l *Loader) LoadDefinitions() ([]sqlmacro.Entry, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matched, err := l.glob(pattern)
		if err != nil {
			return nil, err
		}
		files = append(files, matched...)
	}

	var entries []sqlmacro.Entry
	for _, file := range files {
		defs, err := loadDefinitionFile(file)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded definitions", "file", file, "count", len(defs))
		entries = append(entries, defs...)
	}
	return entries, nil
}

func (l *Loader) glob(pattern string) ([]string, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access macros directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("macros path is not a directory: %s", l.dir)
	}

	files, err := filepath.Glob(filepath.Join(l.dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to scan macros directory: %w", err)
	}
	return files, nil
}

// loadFile executes a single .star file and derives its SQL functions.
func (l *Loader) loadFile(path string) (*LoadedModule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a glob within the macros directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	namespace := strings.TrimSuffix(filepath.Base(path), ".star")
	if err := validateNamespace(namespace); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	thread := &starlark.Thread{
		Name: "load:" + namespace,
		Print: func(_ *starlark.Thread, msg string) {
			l.logger.Debug(msg, "namespace", namespace)
		},
	}

	globals, err := starlark.ExecFileOptions(fileOptions, thread, path, content, l.predeclared)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	exports := make(starlark.StringDict)
	for name, value := range globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}

	defs, err := ScanStarFile(path, content)
	if err != nil {
		return nil, err
	}

	module := &LoadedModule{Namespace: namespace, Path: path, Exports: exports}
	for _, def := range defs {
		fn, err := def.SQLFunction(namespace, path)
		if err != nil {
			l.logger.Warn("function not callable from SQL", "namespace", namespace, "function", def.Name, "error", err)
			continue
		}
		module.Functions = append(module.Functions, fn)
	}
	return module, nil
}

// loadDefinitionFile decodes a mapping of names to either a macro value or
// a function definition.
func loadDefinitionFile(path string) ([]sqlmacro.Entry, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a glob within the macros directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &LoadError{File: path, Line: root.Line, Message: "expected a mapping of names to definitions"}
	}

	entries := make([]sqlmacro.Entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]

		switch value.Kind {
		case yaml.ScalarNode:
			entries = append(entries, sqlmacro.Entry{Name: key.Value, Value: value.Value})

		case yaml.MappingNode:
			var fn sqlmacro.Function
			if err := value.Decode(&fn); err != nil {
				return nil, &LoadError{File: path, Line: value.Line, Message: err.Error()}
			}
			if fn.Name == "" {
				fn.Name = key.Value
			}
			fn.Source = path
			if err := fn.Validate(); err != nil {
				return nil, &LoadError{File: path, Line: key.Line, Message: err.Error()}
			}
			entries = append(entries, sqlmacro.Entry{Name: fn.Name, Func: &fn})

		default:
			return nil, &LoadError{
				File:    path,
				Line:    value.Line,
				Message: fmt.Sprintf("%s: expected a string or a function definition", key.Value),
			}
		}
	}
	return entries, nil
}

// validateNamespace checks if a namespace name is valid.
func validateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}

	for i, r := range name {
		if i == 0 {
			if !isLetter(r) && r != '_' {
				return fmt.Errorf("namespace must start with letter or underscore: %s", name)
			}
		} else if !isLetter(r) && !isDigit(r) && r != '_' {
			return fmt.Errorf("namespace contains invalid character: %s", name)
		}
	}

	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// LoadError represents an error loading a macro file.
type LoadError struct {
	File    string
	Line    int
	Message string
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("macros/%s:%d: %s", filepath.Base(e.File), e.Line, e.Message)
	}
	return fmt.Sprintf("macros/%s: %s", filepath.Base(e.File), e.Message)
}
