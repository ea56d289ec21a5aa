package mem

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strato-labs/stratoctl/pkg/provider"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(nil)
	require.NoError(t, err)
	return p.(*Provider)
}

func TestCreateReadDestroy(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	attrs, err := p.Create(ctx, "cluster.primary", "cluster", map[string]interface{}{
		"name":   "prod",
		"region": "us-east1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://prod.us-east1.clusters.internal", attrs["endpoint"])

	got, err := p.Read(ctx, "cluster.primary")
	require.NoError(t, err)
	assert.Equal(t, "prod", got["name"])

	// Creating the same identity twice fails.
	_, err = p.Create(ctx, "cluster.primary", "cluster", map[string]interface{}{"name": "prod"})
	require.Error(t, err)

	require.NoError(t, p.Destroy(ctx, "cluster.primary"))
	_, err = p.Read(ctx, "cluster.primary")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	// Destroy is idempotent.
	require.NoError(t, p.Destroy(ctx, "cluster.primary"))
}

func TestUpdateMergesAttributes(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	_, err := p.Create(ctx, "node_pool.workers", "node_pool", map[string]interface{}{
		"name":       "workers",
		"node_count": 1,
	})
	require.NoError(t, err)

	got, err := p.Update(ctx, "node_pool.workers", map[string]interface{}{"node_count": 3})
	require.NoError(t, err)
	assert.Equal(t, 3, got["node_count"])
	assert.Equal(t, "workers", got["name"])

	_, err = p.Update(ctx, "node_pool.ghost", map[string]interface{}{"node_count": 3})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestReadDataPlatformVersions(t *testing.T) {
	p := newProvider(t)

	out, err := p.ReadData(context.Background(), "platform_versions", map[string]interface{}{"region": "us-east1"})
	require.NoError(t, err)
	assert.Equal(t, "1.32.4", out["latest"])
	assert.Contains(t, out["valid_versions"], "1.31.8")

	_, err = p.ReadData(context.Background(), "platform_versions", nil)
	require.Error(t, err)

	_, err = p.ReadData(context.Background(), "dns_records", nil)
	require.Error(t, err)
}

func TestResourceSchemas(t *testing.T) {
	p := newProvider(t)

	cluster, err := p.ResourceSchema("cluster")
	require.NoError(t, err)
	assert.True(t, cluster.Attributes["name"].ForceNew)
	assert.True(t, cluster.Attributes["endpoint"].Computed)
	assert.True(t, cluster.Attributes["version"].HasDefault())

	pool, err := p.ResourceSchema("node_pool")
	require.NoError(t, err)
	assert.True(t, pool.Attributes["machine_type"].ForceNew)

	_, err = p.ResourceSchema("vpc")
	require.Error(t, err)
}

func TestFailOnInjection(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	boom := fmt.Errorf("quota exceeded")
	p.FailOn["cluster.primary"] = boom

	_, err := p.Create(ctx, "cluster.primary", "cluster", map[string]interface{}{"name": "prod"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, p.Exists("cluster.primary"))
}
