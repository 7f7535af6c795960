package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
)

// ProviderRegistry manages resource provider factories per cloud vendor.
type ProviderRegistry interface {
	// Register adds a provider factory. Registering the same name twice
	// is an error.
	Register(name string, factory provider.Factory) error
	// Create instantiates a provider bound to the given account.
	Create(ctx context.Context, account domain.Account) (provider.Provider, error)
	// ListProviders returns the registered provider names.
	ListProviders() []string
}

type providerRegistry struct {
	mu        sync.RWMutex
	factories map[string]provider.Factory
}

func NewProviderRegistry(factories map[string]provider.Factory) ProviderRegistry {
	r := &providerRegistry{factories: make(map[string]provider.Factory)}
	for name, factory := range factories {
		r.factories[name] = factory
	}
	return r
}

func (r *providerRegistry) Register(name string, factory provider.Factory) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("provider %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

func (r *providerRegistry) Create(ctx context.Context, account domain.Account) (provider.Provider, error) {
	r.mu.RLock()
	factory, exists := r.factories[account.Provider]
	r.mu.RUnlock()

	if !exists {
		return nil, domain.NewValidationError("provider %q is not registered", account.Provider)
	}
	return factory(ctx, account)
}

func (r *providerRegistry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
