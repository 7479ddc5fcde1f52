package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrProviderExists is returned when a provider name is registered twice.
	ErrProviderExists = errors.New("provider registry: provider already registered")
	// ErrProviderUnsupported is returned when registering a name outside the supported set.
	ErrProviderUnsupported = errors.New("provider registry: unsupported provider")
)

// Registry holds the configured providers. It is populated at start-up and read afterwards.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a configured provider.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("provider registry: provider is nil")
	}
	name := Normalise(p.Name())
	if !Supported(name) {
		return fmt.Errorf("%w: %s", ErrProviderUnsupported, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[Normalise(name)]
	return p, ok
}

// Names lists configured provider names in sorted order.
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
