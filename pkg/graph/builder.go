package graph

import (
	"github.com/hashicorp/hcl/v2"

	"github.com/strato-labs/stratoctl/pkg/config"
	"github.com/strato-labs/stratoctl/pkg/errors"
)

// Builder constructs a dependency graph from a configuration document.
// Repetition counts must already be evaluated (they may only reference
// variables), so expansion happens here while reference resolution stays in
// the resolver.
type Builder struct {
	doc    *config.Document
	counts map[string]int
	graph  *Graph
}

// NewBuilder creates a new graph builder. counts maps resource addresses
// (e.g. "node_pool.workers") to their evaluated cardinality.
func NewBuilder(stack string, doc *config.Document, counts map[string]int) *Builder {
	return &Builder{
		doc:    doc,
		counts: counts,
		graph:  NewGraph(stack),
	}
}

// Build expands counted resources into indexed instances, infers reference
// edges from attribute expressions, and returns the completed graph. Cycles
// are not detected here; TopologicalSort reports them.
func (b *Builder) Build() (*Graph, error) {
	for _, ds := range b.doc.DataSources {
		if err := b.graph.AddNode(NewDataNode(ds)); err != nil {
			return nil, err
		}
	}

	for _, res := range b.doc.Resources {
		count := b.countOf(res)
		for i := 0; i < count; i++ {
			if err := b.graph.AddNode(NewResourceNode(res, i, count)); err != nil {
				return nil, err
			}
		}
	}

	// Second pass: edges. All nodes must exist before cross-references are wired.
	for _, ds := range b.doc.DataSources {
		node := b.graph.GetNode(ds.Addr())
		for attrName, expr := range ds.Attrs {
			if err := b.addExpressionEdges(node, attrName, expr); err != nil {
				return nil, err
			}
		}
	}

	for _, res := range b.doc.Resources {
		count := b.countOf(res)
		for i := 0; i < count; i++ {
			node := b.graph.GetNode(config.InstanceID(res.Type, res.Name, i, count))
			for attrName, expr := range res.Attrs {
				if err := b.addExpressionEdges(node, attrName, expr); err != nil {
					return nil, err
				}
			}
		}
	}

	return b.graph, nil
}

func (b *Builder) countOf(res *config.Resource) int {
	if c, ok := b.counts[res.Addr()]; ok {
		return c
	}
	return 1
}

// addExpressionEdges inspects an expression's variable traversals and wires
// dependency edges for every resource or data source it names.
func (b *Builder) addExpressionEdges(node *Node, attrName string, expr hcl.Expression) error {
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()

		switch root {
		case "var", "count":
			// Variables and the count index never create ordering edges.
			continue
		case "data":
			dataType, dataName, ok := traversalSteps(traversal)
			if !ok {
				continue
			}
			target := b.doc.DataSourceByAddr(dataType, dataName)
			if target == nil {
				return errors.UnresolvedReferenceError(node.ID, attrName, "data."+dataType+"."+dataName)
			}
			if err := b.graph.AddEdge(node.ID, target.Addr()); err != nil {
				return err
			}
		default:
			// A root naming a resource type, e.g. cluster.primary.name.
			resName, ok := firstStepName(traversal)
			if !ok {
				continue
			}
			target := b.doc.ResourceByAddr(root, resName)
			if target == nil {
				return errors.UnresolvedReferenceError(node.ID, attrName, root+"."+resName)
			}
			if err := b.addResourceEdges(node, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// addResourceEdges wires edges from node to the instances of target.
// When both declarations have equal cardinality the dependency maps
// index-to-index: instance i of the dependent relies only on instance i of
// the target. Unequal cardinalities fan in to every instance.
func (b *Builder) addResourceEdges(node *Node, target *config.Resource) error {
	targetCount := b.countOf(target)

	if node.Kind == NodeKindResource && node.Count == targetCount && targetCount > 1 {
		targetID := config.InstanceID(target.Type, target.Name, node.Index, targetCount)
		return b.graph.AddEdge(node.ID, targetID)
	}

	for i := 0; i < targetCount; i++ {
		targetID := config.InstanceID(target.Type, target.Name, i, targetCount)
		if err := b.graph.AddEdge(node.ID, targetID); err != nil {
			return err
		}
	}
	return nil
}

// traversalSteps extracts the two attribute steps after the root, e.g.
// data.platform_versions.current -> ("platform_versions", "current").
func traversalSteps(traversal hcl.Traversal) (string, string, bool) {
	if len(traversal) < 3 {
		return "", "", false
	}
	first, ok := traversal[1].(hcl.TraverseAttr)
	if !ok {
		return "", "", false
	}
	second, ok := traversal[2].(hcl.TraverseAttr)
	if !ok {
		return "", "", false
	}
	return first.Name, second.Name, true
}

// firstStepName extracts the first attribute step after the root.
func firstStepName(traversal hcl.Traversal) (string, bool) {
	if len(traversal) < 2 {
		return "", false
	}
	step, ok := traversal[1].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	return step.Name, true
}
