// Package provider defines the adapter boundary between the reconciliation
// engine and the platforms it manages. The engine never embeds platform
// specifics beyond this interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Read when the identity has no real-world resource.
var ErrNotFound = errors.New("resource not found")

// Provider translates planned operations into concrete API calls against a
// target platform. Attribute maps are fully resolved values keyed by attribute
// name. Every call returning actual state reports the attributes the platform
// confirmed, which may be a subset on failure.
type Provider interface {
	// Name returns the provider's registry name.
	Name() string

	// ResourceSchema returns the attribute schema for a managed resource type.
	ResourceSchema(resourceType string) (*ResourceSchema, error)

	// DataSchema returns the attribute schema for a read-only data source type.
	DataSchema(dataType string) (*ResourceSchema, error)

	// Create provisions a new resource and returns its actual attributes.
	Create(ctx context.Context, identity, resourceType string, attrs map[string]interface{}) (map[string]interface{}, error)

	// Read fetches the current actual attributes for an identity.
	// Returns ErrNotFound when the resource no longer exists.
	Read(ctx context.Context, identity string) (map[string]interface{}, error)

	// Update modifies an existing resource in place and returns its actual attributes.
	Update(ctx context.Context, identity string, attrs map[string]interface{}) (map[string]interface{}, error)

	// Destroy removes an existing resource. Destroying an absent resource is not an error.
	Destroy(ctx context.Context, identity string) error

	// ReadData performs a read-only external lookup. Data sources carry no
	// desired/actual diff and are recomputed on every planning pass.
	ReadData(ctx context.Context, dataType string, args map[string]interface{}) (map[string]interface{}, error)
}

// Factory creates a provider from configuration.
type Factory func(config map[string]string) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register registers a provider factory under a name. Called from provider
// package init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Create instantiates a registered provider.
func Create(name string, config map[string]string) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (registered: %v)", name, Names())
	}
	return factory(config)
}

// Names returns the registered provider names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
