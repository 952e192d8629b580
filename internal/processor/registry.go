package processor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds a processor from its injected dependencies and raw
// options.
type Factory func(deps Deps, options json.RawMessage) (Processor, error)

// Registry maps processor identifiers, as used in configuration, to
// factories. Processors are registered explicitly at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(id string, factory Factory) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("processor id is required")
	}
	if factory == nil {
		return fmt.Errorf("processor %q: factory is required", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("processor %q already registered", id)
	}
	r.factories[id] = factory
	return nil
}

func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(id string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[id]
	return factory, ok
}

// IDs returns the registered identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
