// Package provider defines the uniform lookup interface over third-party
// enrichment sources and the guard every call runs under.
package provider

import (
	"context"
	"sync"

	"github.com/sells-group/company-intel/internal/cost"
	"github.com/sells-group/company-intel/internal/model"
)

// Adapter is a single enrichment source.
type Adapter interface {
	// Name returns the provider identifier (matches the chain config entry).
	Name() string
	// Lookup fetches facts and contacts for a company. No results is an
	// empty Result, not an error.
	Lookup(ctx context.Context, domain, name string) (*Result, error)
}

// Result is the complete response from an adapter.
type Result struct {
	Facts    model.Facts              `json:"facts,omitempty"`
	Contacts []model.ContactCandidate `json:"contacts,omitempty"`
	// Usage lists every priced call the lookup made, including calls made
	// before a failure.
	Usage []cost.Usage `json:"-"`
}

// Empty reports whether the result carries no facts or contacts.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Facts) == 0 && len(r.Contacts) == 0)
}

// Registry holds adapters in registration order.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter. Registering a name twice replaces the adapter
// but keeps its original position.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.Name()]; !ok {
		r.order = append(r.order, a.Name())
	}
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil if not found.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// List returns the registered adapter names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Adapters returns every registered adapter in registration order.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
