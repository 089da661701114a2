package macro

import (
	"fmt"
	"sync"

	"golang.org/x/text/cases"
)

// Registry maps case-insensitive names to macro entries.
//
// Rewrites only read from a registry. Writes take the lock so a reload can
// swap definitions between rewrites.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string // folded keys in registration order
	version uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// foldName returns the lookup key for a macro name.
// A Caser keeps state, so each call gets its own.
func foldName(name string) string {
	return cases.Fold().String(name)
}

// Set registers a plain string macro, replacing any previous entry.
func (r *Registry) Set(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(Entry{Name: name, Value: value})
}

// Define registers a function, replacing any previous entry.
func (r *Registry) Define(fn *Function) error {
	if err := fn.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(Entry{Name: fn.Name, Func: fn})
	return nil
}

// Add registers an entry of either kind.
func (r *Registry) Add(e Entry) error {
	if e.Func != nil {
		if e.Func.Name == "" {
			e.Func.Name = e.Name
		}
		return r.Define(e.Func)
	}
	if e.Name == "" {
		return fmt.Errorf("macro name cannot be empty")
	}
	r.Set(e.Name, e.Value)
	return nil
}

func (r *Registry) put(e Entry) {
	key := foldName(e.Name)
	if _, exists := r.entries[key]; !exists {
		r.order = append(r.order, key)
	}
	r.entries[key] = e
	r.version++
}

// Remove deletes an entry. It reports whether the entry existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := foldName(name)
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.version++
	return true
}

// Lookup finds an entry by name, ignoring case.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[foldName(name)]
	return e, ok
}

// Has returns true if the name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Entries returns all entries in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.entries[k])
	}
	return out
}

// Functions returns the function entries in registration order.
func (r *Registry) Functions() []*Function {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Function
	for _, k := range r.order {
		if fn := r.entries[k].Func; fn != nil {
			out = append(out, fn)
		}
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Version changes every time the registry is modified.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Replace swaps the registry contents for those of other.
func (r *Registry) Replace(other *Registry) {
	entries := other.Entries()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry, len(entries))
	r.order = r.order[:0]
	for _, e := range entries {
		r.put(e)
	}
	r.version++
}

// Overlay returns a new registry holding the entries of r followed by
// extra. Entries in extra win on name clashes.
func (r *Registry) Overlay(extra ...Entry) (*Registry, error) {
	out := NewRegistry()
	for _, e := range r.Entries() {
		out.put(e)
	}
	for _, e := range extra {
		if err := out.Add(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}
