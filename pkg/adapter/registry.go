package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Factory builds an unconnected adapter that logs to logger.
type Factory func(logger *slog.Logger) Adapter

// drivers maps canonical names to factories; aliases maps alternative
// spellings (postgresql, sqlite3) to canonical names. Keys are lower case.
var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
	aliases   = make(map[string]string)
)

// Register makes a driver available under name and any aliases. Drivers
// call it from init. Registering the same name again replaces the factory.
func Register(name string, factory Factory, alias ...string) {
	canonical := strings.ToLower(name)

	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[canonical] = factory
	for _, a := range alias {
		aliases[strings.ToLower(a)] = canonical
	}
}

// resolve returns the canonical driver name for name. Callers hold driversMu.
func resolve(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		return canonical
	}
	return key
}

// CanonicalName maps an alias such as postgresql to its driver name and
// lower-cases anything else.
func CanonicalName(name string) string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	return resolve(name)
}

// Get returns the factory registered under name or one of its aliases.
func Get(name string) (Factory, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	f, ok := drivers[resolve(name)]
	return f, ok
}

// NewAdapter builds the adapter for cfg.Type. A nil logger discards output.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, errors.New("adapter type not specified")
	}

	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger.With(slog.String("adapter", cfg.Type))), nil
}

// ListAdapters returns the canonical driver names, sorted.
func ListAdapters() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	return slices.Sorted(maps.Keys(drivers))
}

// IsRegistered reports whether name or an alias of it is registered.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// UnknownAdapterError is returned for a target type with no registered driver.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q (available: %s)\nHint: check target.type in sqlext.yaml",
		e.Type, strings.Join(e.Available, ", "))
}
