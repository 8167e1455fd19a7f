package vtab

import (
	"strings"
	"sync"

	"quereus/internal/errs"
)

// Registry is a Database's map of registered module names to Modules
// (spec §6.2 registerVtabModule). Per spec §9 ("global registries...owned
// by the Database instance with explicit init/teardown"), a Registry is
// constructed per Database rather than shared as a package global.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	aux     map[string]any
}

// NewRegistry returns an empty module registry.
func NewRegistry() *Registry {
	return &Registry{modules: map[string]Module{}, aux: map[string]any{}}
}

// Register adds a module under name with optional auxiliary data passed
// back to Connect/Destroy calls.
func (r *Registry) Register(name string, m Module, aux any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[strings.ToLower(name)] = m
	r.aux[strings.ToLower(name)] = aux
}

// Lookup resolves a module by name.
func (r *Registry) Lookup(name string) (Module, any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := strings.ToLower(name)
	m, ok := r.modules[key]
	if !ok {
		return nil, nil, errs.New(errs.NotFound, "no such vtab module %q", name)
	}
	return m, r.aux[key], nil
}
