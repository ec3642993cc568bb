package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry manages crypto price backends by name and tracks which one is
// active. The active backend is swappable at runtime without touching the
// checker.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]CryptoPriceProvider
	active   string
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]CryptoPriceProvider),
	}
}

// Register adds a backend to the registry. The first registered backend
// becomes the active one.
func (r *Registry) Register(p CryptoPriceProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("backend %q already registered", name)
	}
	r.backends[name] = p
	if r.active == "" {
		r.active = name
	}
	return nil
}

// SetActive selects the backend used for price lookups.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.backends[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	r.active = name
	return nil
}

// Active returns the name of the active backend.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// List returns all registered backend names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name implements CryptoPriceProvider by reporting the active backend.
func (r *Registry) Name() string {
	return r.Active()
}

// FetchPrice implements CryptoPriceProvider by delegating to the active
// backend.
func (r *Registry) FetchPrice(ctx context.Context, id string) (Quote, error) {
	r.mu.RLock()
	backend, ok := r.backends[r.active]
	r.mu.RUnlock()

	if !ok {
		return Quote{}, fmt.Errorf("%w: no active backend", ErrUnknownBackend)
	}
	return backend.FetchPrice(ctx, id)
}
