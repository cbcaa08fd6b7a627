package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Provider produces the value behind a dotted reference.
type Provider func(ctx context.Context) (any, error)

// Registry maps dotted names (module.sub:member) to providers. The host
// populates it at startup; lookups are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. The name may carry the "py:" prefix.
func (r *Registry) Register(name string, provider Provider) error {
	if provider == nil {
		return fmt.Errorf("source: provider for %q is nil", name)
	}
	key := strings.TrimPrefix(name, DottedPrefix)
	if !ValidDottedName(key) {
		return fmt.Errorf("source: invalid dotted name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	if _, exists := r.providers[key]; exists {
		return fmt.Errorf("source: dotted name %q already registered", key)
	}
	r.providers[key] = provider
	return nil
}

// RegisterValue adds a provider returning a fixed value.
func (r *Registry) RegisterValue(name string, value any) error {
	return r.Register(name, func(context.Context) (any, error) {
		return value, nil
	})
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[strings.TrimPrefix(name, DottedPrefix)]
	return provider, ok
}

// Names lists registered names in lexical order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
