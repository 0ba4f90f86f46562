package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Factory describes one registered strategy: its parameter schema and a
// constructor taking validated parameters.
type Factory struct {
	Schema ParamSchema
	New    func(p Params) (Strategy, error)
}

// Registry holds named strategy factories for lookup and enumeration.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given name, replacing any previous
// registration.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Schema returns the parameter schema for a registered strategy. The second
// return value indicates whether the strategy exists.
func (r *Registry) Schema(name string) (ParamSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f.Schema, true
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build validates raw parameters against the strategy's schema and constructs
// a fresh instance. Each call returns an independent strategy; instances hold
// run-local state and must never be shared between concurrent runs.
func (r *Registry) Build(name string, raw map[string]any) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}

	params, err := f.Schema.Validate(name, raw)
	if err != nil {
		return nil, err
	}
	return f.New(params)
}
