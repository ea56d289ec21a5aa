// Package local stores state on the local filesystem.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strato-labs/stratoctl/pkg/state/backend"
)

func init() {
	backend.Register("local", NewBackend)
}

// staleAfter is how old a lock file must be before another process may
// claim it. Crashed runs leave their lock file behind.
const staleAfter = time.Hour

// Backend stores state files under a base directory. Writes go through a
// temp file and rename so a crash never leaves a half-written state file.
type Backend struct {
	basePath string
	mu       sync.Mutex
	held     map[string]*fileLock
}

// NewBackend creates a local backend. The "path" setting overrides the
// default of ~/.stratoctl/state.
func NewBackend(config map[string]string) (backend.Backend, error) {
	base := config["path"]
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".stratoctl", "state")
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	return &Backend{
		basePath: base,
		held:     make(map[string]*fileLock),
	}, nil
}

func (b *Backend) Type() string {
	return "local"
}

func (b *Backend) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := os.Open(b.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return file, nil
}

func (b *Backend) Write(ctx context.Context, path string, data io.Reader) error {
	fullPath := b.fullPath(path)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".stratoctl-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = io.Copy(tmp, data)
	if closeErr := tmp.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := os.Remove(b.fullPath(path)); err != nil {
		if os.IsNotExist(err) {
			// Deleting something already gone is fine.
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := filepath.Walk(b.fullPath(prefix), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(b.basePath, p)
			paths = append(paths, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(b.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

func (b *Backend) Lock(ctx context.Context, path string, info backend.LockInfo) (backend.Lock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lockKey := path + ".lock"
	if existing, ok := b.held[lockKey]; ok {
		return nil, &backend.LockError{Info: existing.info, Err: backend.ErrLocked}
	}

	lockFilePath := b.fullPath(lockKey)
	if data, err := os.ReadFile(lockFilePath); err == nil {
		var holder backend.LockInfo
		if err := json.Unmarshal(data, &holder); err == nil {
			if time.Since(holder.Created) < staleAfter {
				return nil, &backend.LockError{Info: holder, Err: backend.ErrLocked}
			}
		}
	}

	info.ID = uuid.New().String()
	info.Path = path
	info.Created = time.Now()

	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock info: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(lockFilePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := os.WriteFile(lockFilePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	lock := &fileLock{
		backend:  b,
		key:      lockKey,
		filePath: lockFilePath,
		info:     info,
	}
	b.held[lockKey] = lock
	return lock, nil
}

func (b *Backend) fullPath(path string) string {
	return filepath.Join(b.basePath, filepath.FromSlash(path))
}

type fileLock struct {
	backend  *Backend
	key      string
	filePath string
	info     backend.LockInfo
}

func (l *fileLock) ID() string {
	return l.info.ID
}

func (l *fileLock) Unlock(ctx context.Context) error {
	l.backend.mu.Lock()
	defer l.backend.mu.Unlock()

	delete(l.backend.held, l.key)
	if err := os.Remove(l.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (l *fileLock) Info() backend.LockInfo {
	return l.info
}
