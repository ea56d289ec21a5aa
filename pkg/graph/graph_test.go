package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strato-labs/stratoctl/pkg/config"
	"github.com/strato-labs/stratoctl/pkg/errors"
)

func resourceNode(resourceType, name string, index, count int) *Node {
	return NewResourceNode(&config.Resource{Type: resourceType, Name: name}, index, count)
}

func TestAddNodeRejectsDuplicates(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(resourceNode("cluster", "primary", 0, 1)))

	err := g.AddNode(resourceNode("cluster", "primary", 0, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddEdgeUnknownNodes(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(resourceNode("cluster", "primary", 0, 1)))

	require.Error(t, g.AddEdge("cluster.primary", "node_pool.workers"))
	require.Error(t, g.AddEdge("node_pool.workers", "cluster.primary"))
}

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(resourceNode("node_pool", "workers", 0, 1)))
	require.NoError(t, g.AddNode(resourceNode("cluster", "primary", 0, 1)))
	require.NoError(t, g.AddNode(NewDataNode(&config.DataSource{Type: "platform_versions", Name: "current"})))
	require.NoError(t, g.AddEdge("node_pool.workers", "cluster.primary"))
	require.NoError(t, g.AddEdge("cluster.primary", "data.platform_versions.current"))

	sorted, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Len(t, sorted, 3)
	assert.Equal(t, "data.platform_versions.current", sorted[0].ID)
	assert.Equal(t, "cluster.primary", sorted[1].ID)
	assert.Equal(t, "node_pool.workers", sorted[2].ID)
}

func TestTopologicalSortIsDeterministic(t *testing.T) {
	build := func() *Graph {
		g := NewGraph("test")
		for _, name := range []string{"delta", "alpha", "charlie", "bravo"} {
			require.NoError(t, g.AddNode(resourceNode("cluster", name, 0, 1)))
		}
		return g
	}

	first, err := build().TopologicalSort()
	require.NoError(t, err)

	// Independent nodes tie-break alphabetically, so repeated sorts agree.
	for i := 0; i < 5; i++ {
		again, err := build().TopologicalSort()
		require.NoError(t, err)
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
		}
	}
	assert.Equal(t, "cluster.alpha", first[0].ID)
	assert.Equal(t, "cluster.delta", first[3].ID)
}

func TestTopologicalSortReportsCycles(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(resourceNode("cluster", "a", 0, 1)))
	require.NoError(t, g.AddNode(resourceNode("cluster", "b", 0, 1)))
	require.NoError(t, g.AddNode(resourceNode("cluster", "standalone", 0, 1)))
	require.NoError(t, g.AddEdge("cluster.a", "cluster.b"))
	require.NoError(t, g.AddEdge("cluster.b", "cluster.a"))

	_, err := g.TopologicalSort()
	require.Error(t, err)

	var typed *errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errors.ErrCodeCycle, typed.Code)

	members, ok := typed.Details["members"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"cluster.a", "cluster.b"}, members)
}

func TestReverseTopologicalSort(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(resourceNode("cluster", "primary", 0, 1)))
	require.NoError(t, g.AddNode(resourceNode("node_pool", "workers", 0, 1)))
	require.NoError(t, g.AddEdge("node_pool.workers", "cluster.primary"))

	sorted, err := g.ReverseTopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, "node_pool.workers", sorted[0].ID)
	assert.Equal(t, "cluster.primary", sorted[1].ID)
}

func TestGetReadyNodes(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddNode(resourceNode("cluster", "primary", 0, 1)))
	require.NoError(t, g.AddNode(resourceNode("node_pool", "workers", 0, 1)))
	require.NoError(t, g.AddEdge("node_pool.workers", "cluster.primary"))

	ready := g.GetReadyNodes()
	require.Len(t, ready, 1)
	assert.Equal(t, "cluster.primary", ready[0].ID)

	g.GetNode("cluster.primary").State = NodeStateSucceeded
	ready = g.GetReadyNodes()
	require.Len(t, ready, 1)
	assert.Equal(t, "node_pool.workers", ready[0].ID)

	g.GetNode("node_pool.workers").State = NodeStateFailed
	assert.Empty(t, g.GetReadyNodes())
	assert.True(t, g.AllTerminal())
	assert.True(t, g.HasFailed())
}

func TestInstancesOfOrdersByIndex(t *testing.T) {
	g := NewGraph("test")
	res := &config.Resource{Type: "node_pool", Name: "workers"}
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, g.AddNode(NewResourceNode(res, i, 3)))
	}

	instances := g.InstancesOf("node_pool", "workers")
	require.Len(t, instances, 3)
	for i, node := range instances {
		assert.Equal(t, i, node.Index)
	}
}
