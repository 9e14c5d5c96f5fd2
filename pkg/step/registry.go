package step

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/onestep/pkg/domain"
)

// Registry manages the available steps.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// DefaultRegistry returns a registry with the validating and noop steps.
func DefaultRegistry(opts ...NoopOption) *Registry {
	r := NewRegistry()
	r.Register(NewValidating())
	r.Register(NewNoop(opts...))
	return r
}

// Register adds a step to the registry.
// If a step with the same name exists, it is overwritten.
func (r *Registry) Register(s Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[s.Name()] = s
}

// Lookup returns the step registered under name.
func (r *Registry) Lookup(name string) (Step, error) {
	r.mu.RLock()
	s, ok := r.steps[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", domain.ErrUnknownStep, name, r.Names())
	}
	return s, nil
}

// Names returns the registered step names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a step is registered under name.
func (r *Registry) Has(name string) bool {
	return slices.Contains(r.Names(), name)
}
