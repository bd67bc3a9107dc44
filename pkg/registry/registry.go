// Package registry holds the set of declared modules for a check run.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/modguard/modguard/pkg/domain"
)

// Registry is an in-memory module registry. Modules are immutable once
// registered. Safe for concurrent readers; watch mode rebuilds a fresh
// Registry per snapshot rather than mutating a live one.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]domain.Module
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		modules: make(map[string]domain.Module),
	}
}

// Register adds a module. It fails with domain.ErrDuplicateModule if a
// module with the same name is already present.
func (r *Registry) Register(m domain.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.modules[m.Name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateModule, m.Name)
	}
	r.modules[m.Name] = m
	return nil
}

// Lookup returns the module registered under name, or
// domain.ErrUnknownModule if absent.
func (r *Registry) Lookup(name string) (domain.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[name]
	if !ok {
		return domain.Module{}, fmt.Errorf("%w: %s", domain.ErrUnknownModule, name)
	}
	return m, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[name]
	return ok
}

// List returns all registered modules sorted by name.
func (r *Registry) List() []domain.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}
