package macro

import (
	"fmt"
	"log/slog"
	"sort"

	starctx "github.com/leapstack-labs/sqlext/internal/starlark"
	sqlmacro "github.com/leapstack-labs/sqlext/pkg/macro"
	"go.starlark.net/starlark"
)

// ReservedNamespaces cannot be used as .star filenames.
var ReservedNamespaces = starctx.ReservedNames()

// Registry holds the namespaces and definitions loaded from a directory.
type Registry struct {
	modules     map[string]*LoadedModule
	definitions []sqlmacro.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*LoadedModule)}
}

// Register adds a module. Reserved and duplicate namespaces are rejected.
func (r *Registry) Register(module *LoadedModule) error {
	if starctx.IsReserved(module.Namespace) {
		return &RegistryError{
			Namespace: module.Namespace,
			Message:   "namespace is reserved",
		}
	}
	if existing, ok := r.modules[module.Namespace]; ok {
		return &RegistryError{
			Namespace: module.Namespace,
			Message:   fmt.Sprintf("already defined in %s", existing.Path),
		}
	}
	r.modules[module.Namespace] = module
	return nil
}

// RegisterAll adds modules in order, stopping at the first error.
func (r *Registry) RegisterAll(modules []*LoadedModule) error {
	for _, m := range modules {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Define adds plain macros and template functions.
func (r *Registry) Define(entries ...sqlmacro.Entry) {
	r.definitions = append(r.definitions, entries...)
}

// Get returns the module for a namespace, or nil.
func (r *Registry) Get(namespace string) *LoadedModule {
	return r.modules[namespace]
}

// Has reports whether a namespace is registered.
func (r *Registry) Has(namespace string) bool {
	_, ok := r.modules[namespace]
	return ok
}

// Len returns the number of registered namespaces.
func (r *Registry) Len() int {
	return len(r.modules)
}

// Namespaces returns the registered namespaces, sorted.
func (r *Registry) Namespaces() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns every SQL-visible definition: module functions ordered by
// namespace, then the definitions from .yaml files.
func (r *Registry) Entries() []sqlmacro.Entry {
	var entries []sqlmacro.Entry
	for _, ns := range r.Namespaces() {
		for _, fn := range r.modules[ns].Functions {
			entries = append(entries, sqlmacro.Entry{Name: fn.Name, Func: fn})
		}
	}
	return append(entries, r.definitions...)
}

// MacroRegistry builds a macro registry from Entries. Later entries win.
func (r *Registry) MacroRegistry() (*sqlmacro.Registry, error) {
	reg := sqlmacro.NewRegistry()
	for _, e := range r.Entries() {
		if err := reg.Add(e); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
	}
	return reg, nil
}

// ToStarlarkDict returns the namespaces as Starlark module values.
func (r *Registry) ToStarlarkDict() starlark.StringDict {
	dict := make(starlark.StringDict, len(r.modules))
	for name, m := range r.modules {
		dict[name] = &starlarkModule{name: name, exports: m.Exports}
	}
	return dict
}

// LoadAndRegister loads every library file in dir into a new registry.
// A missing directory yields an empty registry.
func LoadAndRegister(dir string, opts ...LoaderOption) (*Registry, error) {
	loader := NewLoader(dir, opts...)

	modules, err := loader.Load()
	if err != nil {
		return nil, err
	}
	defs, err := loader.LoadDefinitions()
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	if err := registry.RegisterAll(modules); err != nil {
		return nil, err
	}
	registry.Define(defs...)

	loader.logger.Info("loaded macro library",
		slog.String("dir", dir),
		slog.Int("namespaces", registry.Len()),
		slog.Int("definitions", len(defs)))
	return registry, nil
}

// starlarkModule exposes a namespace's exports as attributes.
type starlarkModule struct {
	name    string
	exports starlark.StringDict
}

var _ starlark.HasAttrs = (*starlarkModule)(nil)

func (m *starlarkModule) String() string        { return fmt.Sprintf("<module %s>", m.name) }
func (m *starlarkModule) Type() string          { return "module" }
func (m *starlarkModule) Freeze()               { m.exports.Freeze() }
func (m *starlarkModule) Truth() starlark.Bool  { return starlark.True }
func (m *starlarkModule) AttrNames() []string   { return m.exports.Keys() }
func (m *starlarkModule) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: module") }

func (m *starlarkModule) Attr(name string) (starlark.Value, error) {
	if v, ok := m.exports[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("module %s has no attribute %q", m.name, name)
}

// RegistryError represents a namespace that could not be registered.
type RegistryError struct {
	Namespace string
	Message   string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("namespace %q: %s", e.Namespace, e.Message)
}
