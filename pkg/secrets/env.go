package secrets

import (
	"context"
	"os"
	"strings"
)

const defaultEnvPrefix = "STRATOCTL_SECRET_"

// EnvProvider reads secrets from process environment variables. Keys are
// normalized to SCREAMING_SNAKE_CASE under the configured prefix; a lookup
// without the prefix falls back to the raw variable name.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider with the default prefix.
func NewEnvProvider() *EnvProvider {
	return NewEnvProviderWithPrefix(defaultEnvPrefix)
}

// NewEnvProviderWithPrefix creates an environment provider with a custom
// variable prefix.
func NewEnvProviderWithPrefix(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	if value, ok := os.LookupEnv(p.envName(key)); ok {
		return value, nil
	}
	if value, ok := os.LookupEnv(key); ok {
		return value, nil
	}
	return "", ErrSecretNotFound
}

func (p *EnvProvider) GetBatch(ctx context.Context, keys []string) (map[string]string, error) {
	results := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, err := p.Get(ctx, key); err == nil {
			results[key] = value
		}
	}
	return results, nil
}

func (p *EnvProvider) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, entry := range os.Environ() {
		name, _, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, p.prefix) {
			continue
		}
		key := p.keyName(name)
		if strings.HasPrefix(key, strings.ToLower(prefix)) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (p *EnvProvider) Set(ctx context.Context, key, value string) error {
	return os.Setenv(p.envName(key), value)
}

func (p *EnvProvider) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(p.envName(key))
}

func (p *EnvProvider) envName(key string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	return p.prefix + normalized
}

func (p *EnvProvider) keyName(envName string) string {
	trimmed := strings.TrimPrefix(envName, p.prefix)
	return strings.ToLower(strings.ReplaceAll(trimmed, "_", "-"))
}
