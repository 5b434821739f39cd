// Package registry implements the process-wide volume registry (spec.md
// 4.E): a single owned collection of named volumes, partitioned into four
// lists (all/configuring/configured/offline) for O(1) membership queries,
// mutated only by whichever goroutine is acting as the control thread.
//
// Grounded on original_source's g_longhorn_bdev_config_head /
// g_longhorn_bdev_configuring_head TAILQ globals, reimplemented as a single
// mutex-guarded struct of four maps rather than intrusive list pointers.
// The registry depends on Entry, not on the root package's *Volume
// directly, for the same reason internal/channel declares its own
// MetricsSink: the teacher's internal packages never import its root
// package, and this keeps that direction intact.
package registry

import (
	"fmt"
	"sync"
)

// Entry is the minimal surface the registry needs from whatever it
// tracks; the root package's *Volume satisfies it without registry ever
// importing that package.
type Entry interface {
	Name() string
}

// Registry holds the process-wide volume set.
type Registry struct {
	mu          sync.RWMutex
	all         map[string]Entry
	configuring map[string]Entry
	configured  map[string]Entry
	offline     map[string]Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		all:         make(map[string]Entry),
		configuring: make(map[string]Entry),
		configured:  make(map[string]Entry),
		offline:     make(map[string]Entry),
	}
}

var (
	defaultMu  sync.RWMutex
	defaultReg *Registry
)

// Default returns the process-wide default registry, creating it on first use.
func Default() *Registry {
	defaultMu.RLock()
	if defaultReg != nil {
		defer defaultMu.RUnlock()
		return defaultReg
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultReg == nil {
		defaultReg = New()
	}
	return defaultReg
}

// SetDefault replaces the process-wide default registry; used by tests and
// by cmd/longhornd to install a fresh registry at startup.
func SetDefault(r *Registry) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultReg = r
}

// Register adds e in the Configuring list. Fails if the name is already taken.
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := e.Name()
	if _, exists := r.all[name]; exists {
		return fmt.Errorf("registry: volume %q already registered", name)
	}
	r.all[name] = e
	r.configuring[name] = e
	return nil
}

// Promote moves name from Configuring to Online (spec.md 4.E: "Nth replica
// attached successfully and geometry agrees").
func (r *Registry) Promote(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.configuring[name]
	if !ok {
		return fmt.Errorf("registry: volume %q is not configuring", name)
	}
	delete(r.configuring, name)
	r.configured[name] = e
	return nil
}

// Demote moves name from Online to Offline (deconfigure or shutdown).
func (r *Registry) Demote(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.configured[name]
	if !ok {
		return fmt.Errorf("registry: volume %q is not online", name)
	}
	delete(r.configured, name)
	r.offline[name] = e
	return nil
}

// Unregister removes name entirely, from whichever partition it is
// currently in, Online included.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.all[name]; !ok {
		return fmt.Errorf("registry: volume %q not found", name)
	}
	delete(r.all, name)
	delete(r.configuring, name)
	delete(r.offline, name)
	delete(r.configured, name)
	return nil
}

// Get looks up a volume by name regardless of state.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.all[name]
	return e, ok
}

// Category selects which partition List returns.
type Category int

const (
	All Category = iota
	Configuring
	Configured
	Offline
)

// List returns every entry in the requested partition. Name lookup within
// the result is left to the caller (spec.md 4.E: "linear in volume count is
// acceptable: small N").
func (r *Registry) List(cat Category) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var src map[string]Entry
	switch cat {
	case Configuring:
		src = r.configuring
	case Configured:
		src = r.configured
	case Offline:
		src = r.offline
	default:
		src = r.all
	}
	out := make([]Entry, 0, len(src))
	for _, e := range src {
		out = append(out, e)
	}
	return out
}

// Len reports the number of registered volumes, any state.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}
