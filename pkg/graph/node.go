// Package graph provides dependency graph construction and traversal for the
// reconciliation engine.
package graph

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/strato-labs/stratoctl/pkg/config"
)

// NodeKind identifies the kind of a graph node.
type NodeKind string

const (
	NodeKindResource NodeKind = "resource"
	NodeKindData     NodeKind = "data"
)

// NodeState tracks the execution state of a node.
type NodeState string

const (
	NodeStatePending   NodeState = "pending"
	NodeStateRunning   NodeState = "running"
	NodeStateSucceeded NodeState = "succeeded"
	NodeStateFailed    NodeState = "failed"

	// NodeStateBlocked marks a node whose dependency failed. Blocked nodes
	// are never attempted and are reported, not silently skipped.
	NodeStateBlocked NodeState = "blocked"
)

// Node represents one resource instance or data source in the dependency graph.
type Node struct {
	// Unique identity within the graph, e.g. "node_pool.workers[1]" or
	// "data.platform_versions.current".
	ID string

	Kind NodeKind

	// ResourceType and Name identify the declaration the node came from.
	ResourceType string
	Name         string

	// Index is the instance index after count expansion; 0 for uncounted.
	Index int

	// Count is the total cardinality of the declaration the node expanded from.
	Count int

	// Resource is the source declaration for resource nodes, nil for data nodes.
	Resource *config.Resource

	// Data is the source declaration for data nodes, nil for resource nodes.
	Data *config.DataSource

	// Attrs holds the resolved desired values, populated by the resolver.
	Attrs map[string]cty.Value

	// Dependencies - IDs of nodes this node depends on
	DependsOn []string

	// Dependents - IDs of nodes that depend on this node
	DependedOnBy []string

	State NodeState
}

// NewResourceNode creates a graph node for instance index of a resource.
func NewResourceNode(res *config.Resource, index, count int) *Node {
	return &Node{
		ID:           config.InstanceID(res.Type, res.Name, index, count),
		Kind:         NodeKindResource,
		ResourceType: res.Type,
		Name:         res.Name,
		Index:        index,
		Count:        count,
		Resource:     res,
		DependsOn:    []string{},
		DependedOnBy: []string{},
		State:        NodeStatePending,
	}
}

// NewDataNode creates a graph node for a data source.
func NewDataNode(ds *config.DataSource) *Node {
	return &Node{
		ID:           ds.Addr(),
		Kind:         NodeKindData,
		ResourceType: ds.Type,
		Name:         ds.Name,
		Count:        1,
		Data:         ds,
		DependsOn:    []string{},
		DependedOnBy: []string{},
		State:        NodeStatePending,
	}
}

// AddDependency adds a dependency to this node.
func (n *Node) AddDependency(nodeID string) {
	for _, dep := range n.DependsOn {
		if dep == nodeID {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, nodeID)
}

// AddDependent adds a dependent to this node.
func (n *Node) AddDependent(nodeID string) {
	for _, dep := range n.DependedOnBy {
		if dep == nodeID {
			return
		}
	}
	n.DependedOnBy = append(n.DependedOnBy, nodeID)
}

// IsReady returns true if the node is pending and all dependencies succeeded.
func (n *Node) IsReady(g *Graph) bool {
	if n.State != NodeStatePending {
		return false
	}
	for _, depID := range n.DependsOn {
		dep := g.GetNode(depID)
		if dep == nil || dep.State != NodeStateSucceeded {
			return false
		}
	}
	return true
}
