package compute

import (
	"fmt"
	"sync"
)

// Registry maps provider kinds to adapters so callers resolve the right cloud
// for a given instance without hard-coding one.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderKind]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[ProviderKind]Provider)}
}

func (r *Registry) Register(kind ProviderKind, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		panic("compute: Register provider is nil")
	}
	if _, dup := r.providers[kind]; dup {
		panic(fmt.Sprintf("compute: Register called twice for provider kind %s", kind))
	}
	r.providers[kind] = p
}

func (r *Registry) Get(kind ProviderKind) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("compute: provider for kind %s not registered", kind)
	}
	return p, nil
}

func (r *Registry) Kinds() []ProviderKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]ProviderKind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	return kinds
}
