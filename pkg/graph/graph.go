package graph

import (
	"fmt"
	"sort"

	"github.com/strato-labs/stratoctl/pkg/errors"
)

// Graph represents the dependency graph of one stack.
type Graph struct {
	// All nodes in the graph
	Nodes map[string]*Node

	// Stack name
	Stack string
}

// NewGraph creates a new empty graph.
func NewGraph(stack string) *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Stack: stack,
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(node *Node) error {
	if _, exists := g.Nodes[node.ID]; exists {
		return fmt.Errorf("node %s already exists", node.ID)
	}
	g.Nodes[node.ID] = node
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) *Node {
	return g.Nodes[id]
}

// AddEdge adds a dependency edge from dependent to dependency.
func (g *Graph) AddEdge(dependentID, dependencyID string) error {
	dependent := g.GetNode(dependentID)
	if dependent == nil {
		return fmt.Errorf("dependent node %s not found", dependentID)
	}

	dependency := g.GetNode(dependencyID)
	if dependency == nil {
		return fmt.Errorf("dependency node %s not found", dependencyID)
	}

	dependent.AddDependency(dependencyID)
	dependency.AddDependent(dependentID)

	return nil
}

// TopologicalSort returns nodes in topological order (dependencies first).
// A reference cycle is fatal and reported before any planning proceeds.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	// Kahn's algorithm
	inDegree := make(map[string]int)
	for id := range g.Nodes {
		inDegree[id] = len(g.Nodes[id].DependsOn)
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	// Sort queue for deterministic order
	sort.Strings(queue)

	var result []*Node
	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		node := g.Nodes[nodeID]
		result = append(result, node)

		for _, dependentID := range node.DependedOnBy {
			inDegree[dependentID]--
			if inDegree[dependentID] == 0 {
				queue = append(queue, dependentID)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(g.Nodes) {
		// Nodes that were never dequeued are involved in a cycle
		processed := make(map[string]bool)
		for _, n := range result {
			processed[n.ID] = true
		}

		var cycleNodes []string
		for id := range g.Nodes {
			if !processed[id] {
				cycleNodes = append(cycleNodes, id)
			}
		}
		sort.Strings(cycleNodes)

		return nil, errors.CycleError(cycleNodes)
	}

	return result, nil
}

// ReverseTopologicalSort returns nodes in reverse order (dependents first).
// Used for destroy ordering.
func (g *Graph) ReverseTopologicalSort() ([]*Node, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}

	return sorted, nil
}

// GetReadyNodes returns all nodes that are ready to execute.
func (g *Graph) GetReadyNodes() []*Node {
	var ready []*Node
	for _, node := range g.Nodes {
		if node.IsReady(g) {
			ready = append(ready, node)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// ResourceNodes returns all resource nodes, sorted by ID.
func (g *Graph) ResourceNodes() []*Node {
	var nodes []*Node
	for _, node := range g.Nodes {
		if node.Kind == NodeKindResource {
			nodes = append(nodes, node)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// InstancesOf returns the instance nodes of a resource declaration in index order.
func (g *Graph) InstancesOf(resourceType, name string) []*Node {
	var nodes []*Node
	for _, node := range g.Nodes {
		if node.Kind == NodeKindResource && node.ResourceType == resourceType && node.Name == name {
			nodes = append(nodes, node)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Index < nodes[j].Index })
	return nodes
}

// AllTerminal returns true if every node reached a terminal state.
func (g *Graph) AllTerminal() bool {
	for _, node := range g.Nodes {
		switch node.State {
		case NodeStateSucceeded, NodeStateFailed, NodeStateBlocked:
		default:
			return false
		}
	}
	return true
}

// HasFailed returns true if any node has failed.
func (g *Graph) HasFailed() bool {
	for _, node := range g.Nodes {
		if node.State == NodeStateFailed {
			return true
		}
	}
	return false
}
