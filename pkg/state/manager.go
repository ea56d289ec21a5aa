// Package state persists stack records through pluggable storage backends.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"github.com/strato-labs/stratoctl/pkg/state/backend"
	"github.com/strato-labs/stratoctl/pkg/state/types"
)

// Manager provides high-level state operations over a backend.
type Manager interface {
	GetStack(ctx context.Context, name string) (*types.StackState, error)
	SaveStack(ctx context.Context, state *types.StackState) error
	DeleteStack(ctx context.Context, name string) error
	ListStacks(ctx context.Context) ([]types.StackRef, error)

	// Lock acquires the stack-level lock. Callers must Unlock when done.
	Lock(ctx context.Context, scope LockScope) (backend.Lock, error)

	Backend() backend.Backend
}

// LockScope identifies what is being locked and on whose behalf.
type LockScope struct {
	Stack     string
	Operation string
	Who       string
}

type manager struct {
	backend backend.Backend
}

// NewManager creates a state manager over the given backend.
func NewManager(b backend.Backend) Manager {
	return &manager{backend: b}
}

// NewManagerFromConfig creates a state manager from backend configuration.
func NewManagerFromConfig(config backend.Config) (Manager, error) {
	b, err := backend.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return NewManager(b), nil
}

func (m *manager) Backend() backend.Backend {
	return m.backend
}

func (m *manager) GetStack(ctx context.Context, name string) (*types.StackState, error) {
	return readJSON[types.StackState](ctx, m.backend, stackPath(name))
}

func (m *manager) SaveStack(ctx context.Context, state *types.StackState) error {
	state.Touch()
	return writeJSON(ctx, m.backend, stackPath(state.Name), state)
}

func (m *manager) DeleteStack(ctx context.Context, name string) error {
	paths, err := m.backend.List(ctx, path.Join("stacks", name))
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := m.backend.Delete(ctx, p); err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

func (m *manager) ListStacks(ctx context.Context) ([]types.StackRef, error) {
	paths, err := m.backend.List(ctx, "stacks/")
	if err != nil {
		return nil, err
	}

	// Path format: stacks/<name>/stack.state.json
	names := make(map[string]bool)
	for _, p := range paths {
		parts := splitPath(p)
		if len(parts) >= 2 {
			names[parts[1]] = true
		}
	}

	refs := make([]types.StackRef, 0, len(names))
	for name := range names {
		state, err := m.GetStack(ctx, name)
		if err != nil {
			// Skip stacks whose record cannot be read.
			continue
		}
		refs = append(refs, types.StackRef{
			Name:      state.Name,
			CreatedAt: state.CreatedAt,
			UpdatedAt: state.UpdatedAt,
		})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (m *manager) Lock(ctx context.Context, scope LockScope) (backend.Lock, error) {
	info := backend.LockInfo{
		Who:       scope.Who,
		Operation: scope.Operation,
	}
	return m.backend.Lock(ctx, path.Join("stacks", scope.Stack), info)
}

func stackPath(name string) string {
	return path.Join("stacks", name, "stack.state.json")
}

func splitPath(p string) []string {
	var parts []string
	for p != "" && p != "." && p != "/" {
		dir, file := path.Split(p)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		p = path.Clean(dir)
	}
	return parts
}

func readJSON[T any](ctx context.Context, b backend.Backend, p string) (*T, error) {
	reader, err := b.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var result T
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return &result, nil
}

func writeJSON(ctx context.Context, b backend.Backend, p string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return b.Write(ctx, p, bytes.NewReader(content))
}
