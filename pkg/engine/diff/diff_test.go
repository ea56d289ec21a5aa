package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/strato-labs/stratoctl/pkg/provider"
	"github.com/strato-labs/stratoctl/pkg/state/types"
)

func clusterSchema() *provider.ResourceSchema {
	return &provider.ResourceSchema{
		Attributes: map[string]provider.AttributeSchema{
			"name":       {Type: cty.String, Required: true, ForceNew: true},
			"region":     {Type: cty.String, Required: true, ForceNew: true},
			"version":    {Type: cty.String},
			"node_count": {Type: cty.Number},
			"labels":     {Type: cty.Map(cty.String)},
			"endpoint":   {Type: cty.String, Computed: true},
		},
	}
}

func record(attrs map[string]interface{}) *types.ResourceState {
	return &types.ResourceState{
		Identity: "cluster.primary",
		Type:     "cluster",
		Status:   types.ResourceStatusCreated,
		Attrs:    attrs,
	}
}

func TestClassifyCreate(t *testing.T) {
	desired := map[string]interface{}{
		"name":    "prod",
		"region":  "us-east1",
		"version": "1.32.4",
	}

	change := Classify("cluster.primary", "cluster", desired, nil, clusterSchema(), nil)
	assert.Equal(t, ActionCreate, change.Action)
	assert.False(t, change.Destructive())
	require.Len(t, change.Attributes, 3)

	// Attributes come out sorted by name with only New populated.
	assert.Equal(t, "name", change.Attributes[0].Name)
	assert.Equal(t, "prod", change.Attributes[0].New)
	assert.Nil(t, change.Attributes[0].Old)
	assert.Equal(t, "+ cluster.primary", change.Summary())
}

func TestClassifyNoop(t *testing.T) {
	attrs := map[string]interface{}{
		"name":    "prod",
		"region":  "us-east1",
		"version": "1.32.4",
	}

	change := Classify("cluster.primary", "cluster", attrs, record(attrs), clusterSchema(), nil)
	assert.Equal(t, ActionNoop, change.Action)
	assert.Empty(t, change.Attributes)
}

func TestClassifyUpdate(t *testing.T) {
	desired := map[string]interface{}{
		"name":    "prod",
		"region":  "us-east1",
		"version": "1.32.4",
	}
	rec := record(map[string]interface{}{
		"name":    "prod",
		"region":  "us-east1",
		"version": "1.31.8",
	})

	change := Classify("cluster.primary", "cluster", desired, rec, clusterSchema(), nil)
	assert.Equal(t, ActionUpdate, change.Action)
	assert.False(t, change.Destructive())
	require.Len(t, change.Attributes, 1)
	assert.Equal(t, "version", change.Attributes[0].Name)
	assert.Equal(t, "1.31.8", change.Attributes[0].Old)
	assert.Equal(t, "1.32.4", change.Attributes[0].New)
	assert.False(t, change.Attributes[0].ForcesNew)
	assert.Equal(t, "~ cluster.primary", change.Summary())
}

func TestClassifyReplace(t *testing.T) {
	desired := map[string]interface{}{
		"name":   "prod",
		"region": "eu-west2",
	}
	rec := record(map[string]interface{}{
		"name":   "prod",
		"region": "us-east1",
	})

	change := Classify("cluster.primary", "cluster", desired, rec, clusterSchema(), nil)
	assert.Equal(t, ActionReplace, change.Action)
	assert.True(t, change.Destructive())
	require.Len(t, change.Attributes, 1)
	assert.True(t, change.Attributes[0].ForcesNew)
	assert.Equal(t, "-/+ cluster.primary", change.Summary())
}

func TestClassifyIgnoreChangesSuppressesReplace(t *testing.T) {
	desired := map[string]interface{}{
		"name":   "prod",
		"region": "eu-west2",
	}
	rec := record(map[string]interface{}{
		"name":   "prod",
		"region": "us-east1",
	})

	// An ignored attribute produces no change at all, even when the schema
	// marks it ForceNew.
	change := Classify("cluster.primary", "cluster", desired, rec, clusterSchema(), []string{"region"})
	assert.Equal(t, ActionNoop, change.Action)
}

func TestClassifyIgnoreChangesNeverSuppressesCreate(t *testing.T) {
	desired := map[string]interface{}{
		"name":   "prod",
		"region": "us-east1",
	}

	change := Classify("cluster.primary", "cluster", desired, nil, clusterSchema(), []string{"region", "name"})
	assert.Equal(t, ActionCreate, change.Action)
	require.Len(t, change.Attributes, 2)
}

func TestClassifySkipsComputedAttributes(t *testing.T) {
	desired := map[string]interface{}{
		"name":     "prod",
		"region":   "us-east1",
		"endpoint": "https://stale.clusters.internal",
	}
	rec := record(map[string]interface{}{
		"name":     "prod",
		"region":   "us-east1",
		"endpoint": "https://prod.us-east1.clusters.internal",
	})

	change := Classify("cluster.primary", "cluster", desired, rec, clusterSchema(), nil)
	assert.Equal(t, ActionNoop, change.Action)
}

func TestClassifyNumericNormalization(t *testing.T) {
	// State read back from JSON carries float64 where the resolver produced
	// int. The diff must not report that as a change.
	desired := map[string]interface{}{
		"name":       "prod",
		"region":     "us-east1",
		"node_count": 3,
	}
	rec := record(map[string]interface{}{
		"name":       "prod",
		"region":     "us-east1",
		"node_count": float64(3),
	})

	change := Classify("cluster.primary", "cluster", desired, rec, clusterSchema(), nil)
	assert.Equal(t, ActionNoop, change.Action)
}

func TestClassifyNestedNumericNormalization(t *testing.T) {
	desired := map[string]interface{}{
		"name":   "prod",
		"region": "us-east1",
		"labels": map[string]interface{}{"size": 2},
	}
	rec := record(map[string]interface{}{
		"name":   "prod",
		"region": "us-east1",
		"labels": map[string]interface{}{"size": float64(2)},
	})

	change := Classify("cluster.primary", "cluster", desired, rec, clusterSchema(), nil)
	assert.Equal(t, ActionNoop, change.Action)
}

func TestClassifyNewAttributeHasNoOld(t *testing.T) {
	desired := map[string]interface{}{
		"name":    "prod",
		"region":  "us-east1",
		"version": "1.32.4",
	}
	rec := record(map[string]interface{}{
		"name":   "prod",
		"region": "us-east1",
	})

	change := Classify("cluster.primary", "cluster", desired, rec, clusterSchema(), nil)
	assert.Equal(t, ActionUpdate, change.Action)
	require.Len(t, change.Attributes, 1)
	assert.Nil(t, change.Attributes[0].Old)
	assert.Equal(t, "1.32.4", change.Attributes[0].New)
}

func TestClassifyDelete(t *testing.T) {
	rec := record(map[string]interface{}{
		"name":   "prod",
		"region": "us-east1",
	})

	change := ClassifyDelete(rec)
	assert.Equal(t, ActionDelete, change.Action)
	assert.True(t, change.Destructive())
	assert.Equal(t, "cluster.primary", change.Identity)
	require.Len(t, change.Attributes, 2)
	assert.Equal(t, "prod", change.Attributes[0].Old)
	assert.Nil(t, change.Attributes[0].New)
	assert.Equal(t, "- cluster.primary", change.Summary())
}

func TestFormatChanges(t *testing.T) {
	changes := []*Change{
		{Identity: "cluster.primary", Action: ActionNoop},
		{
			Identity: "node_pool.workers[0]",
			Action:   ActionUpdate,
			Attributes: []AttributeChange{
				{Name: "node_count", Old: 1, New: 3},
			},
		},
		{
			Identity: "node_pool.workers[1]",
			Action:   ActionCreate,
			Attributes: []AttributeChange{
				{Name: "name", New: "workers-1"},
			},
		},
	}

	out := FormatChanges(changes)
	assert.NotContains(t, out, "cluster.primary")
	assert.Contains(t, out, "~ node_pool.workers[0]")
	assert.Contains(t, out, "node_count = 1 -> 3")
	assert.Contains(t, out, "+ node_pool.workers[1]")
	assert.Contains(t, out, "name = workers-1")
}
