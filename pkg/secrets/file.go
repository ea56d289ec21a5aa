package secrets

import (
	"context"
	"strings"
	"sync"
)

// FileProvider holds secrets in memory, typically loaded from a local
// secrets file at startup.
type FileProvider struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewFileProvider creates a provider over the given key/value pairs.
func NewFileProvider(secrets map[string]string) *FileProvider {
	if secrets == nil {
		secrets = make(map[string]string)
	}
	return &FileProvider{secrets: secrets}
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if value, ok := p.secrets[key]; ok {
		return value, nil
	}
	return "", ErrSecretNotFound
}

func (p *FileProvider) GetBatch(ctx context.Context, keys []string) (map[string]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	results := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := p.secrets[key]; ok {
			results[key] = value
		}
	}
	return results, nil
}

func (p *FileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var keys []string
	for key := range p.secrets {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (p *FileProvider) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secrets[key] = value
	return nil
}

func (p *FileProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.secrets, key)
	return nil
}
