// Package backend defines the storage interface state lives behind, plus a
// registry so backends can self-register from their init functions.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a state object does not exist.
var ErrNotFound = errors.New("state not found")

// ErrLocked is returned when a lock is already held.
var ErrLocked = errors.New("state is locked")

// Backend is the storage contract every state backend implements. Paths are
// slash-separated keys relative to the backend root.
type Backend interface {
	Type() string
	Read(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string, data io.Reader) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
	Lock(ctx context.Context, path string, info LockInfo) (Lock, error)
}

// Lock is a held lock. Unlock releases it.
type Lock interface {
	ID() string
	Unlock(ctx context.Context) error
	Info() LockInfo
}

// LockInfo describes who holds a lock and why.
type LockInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Who       string    `json:"who"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
}

// LockError carries the holder's info alongside ErrLocked so callers can
// show who owns the conflicting lock.
type LockError struct {
	Info LockInfo
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("%v: held by %s for %s since %s",
		e.Err, e.Info.Who, e.Info.Operation, e.Info.Created.Format(time.RFC3339))
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// Config selects and configures a backend.
type Config struct {
	// Type names a registered backend, e.g. "local", "s3", "gcs", "azurerm".
	Type string `json:"type" yaml:"type"`
	// Config holds backend-specific keys such as bucket or path.
	Config map[string]string `json:"config" yaml:"config"`
}

// Factory constructs a backend from its settings.
type Factory func(config map[string]string) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under a type name. Meant to be called
// from init; registering the same name twice panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("state backend %q registered twice", name))
	}
	registry[name] = factory
}

// Create instantiates the backend named by the config.
func Create(config Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown state backend %q (available: %v)", config.Type, Names())
	}
	return factory(config.Config)
}

// Names returns the registered backend type names in sorted order.
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
