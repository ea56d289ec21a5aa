// Package planner turns a resolved graph plus recorded state into an
// ordered execution plan.
package planner

import (
	"sort"

	"github.com/strato-labs/stratoctl/pkg/config"
	"github.com/strato-labs/stratoctl/pkg/engine/diff"
	"github.com/strato-labs/stratoctl/pkg/errors"
	"github.com/strato-labs/stratoctl/pkg/graph"
	"github.com/strato-labs/stratoctl/pkg/provider"
	"github.com/strato-labs/stratoctl/pkg/state/types"
)

// PlannedChange pairs a classified change with the graph node that carries
// it. Orphan deletes have no node.
type PlannedChange struct {
	Node    *graph.Node
	Change  *diff.Change
	Record  *types.ResourceState
	Desired map[string]interface{}
}

// Plan is an ordered set of changes. Changes appear in dependency order;
// orphan deletes come last.
type Plan struct {
	Stack   string
	Changes []*PlannedChange

	ToCreate  int
	ToUpdate  int
	ToReplace int
	ToDelete  int
	NoChange  int
}

// IsEmpty reports whether applying the plan would touch anything.
func (p *Plan) IsEmpty() bool {
	return p.ToCreate == 0 && p.ToUpdate == 0 && p.ToReplace == 0 && p.ToDelete == 0
}

// HasDestructive reports whether any change destroys a remote object.
func (p *Plan) HasDestructive() bool {
	for _, pc := range p.Changes {
		if pc.Change.Destructive() {
			return true
		}
	}
	return false
}

// Planner builds plans by classifying each instance against recorded state.
type Planner struct {
	prov provider.Provider
}

// NewPlanner creates a planner using the given provider for schemas.
func NewPlanner(prov provider.Provider) *Planner {
	return &Planner{prov: prov}
}

// Plan compares every resolved resource node against the recorded state and
// adds deletes for recorded instances no longer in the configuration.
// Planning never mutates state; planning twice against the same inputs
// yields the same plan.
func (p *Planner) Plan(doc *config.Document, g *graph.Graph, state *types.StackState) (*Plan, error) {
	plan := &Plan{Stack: stackName(state)}

	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	planned := make(map[string]bool)
	for _, node := range sorted {
		if node.Kind != graph.NodeKindResource {
			continue
		}

		schema, err := p.prov.ResourceSchema(node.ResourceType)
		if err != nil {
			return nil, errors.ValidationError(err.Error(), map[string]interface{}{"identity": node.ID})
		}

		var record *types.ResourceState
		if state != nil {
			record = state.Resource(node.ID)
		}

		// A record whose type no longer matches the declaration at the same
		// identity cannot be expressed as an update or a replace. The operator
		// has to resolve it, typically with state rm.
		if record != nil && record.Type != "" && record.Type != node.ResourceType {
			return nil, errors.DriftError(node.ID, []string{"type"})
		}

		desired := desiredAttrs(node)
		change := diff.Classify(node.ID, node.ResourceType, desired, record, schema, node.Resource.IgnoreChanges)

		plan.add(&PlannedChange{
			Node:    node,
			Change:  change,
			Record:  record,
			Desired: desired,
		})
		planned[node.ID] = true
	}

	// Recorded instances absent from the configuration get destroyed.
	if state != nil {
		for _, identity := range sortedIdentities(state) {
			if planned[identity] {
				continue
			}
			record := state.Resources[identity]
			plan.add(&PlannedChange{
				Change: diff.ClassifyDelete(record),
				Record: record,
			})
		}
	}

	return plan, nil
}

// PlanDestroy plans the removal of every recorded instance, dependents
// before their dependencies.
func (p *Planner) PlanDestroy(g *graph.Graph, state *types.StackState) (*Plan, error) {
	plan := &Plan{Stack: stackName(state)}
	if state == nil {
		return plan, nil
	}

	sorted, err := g.ReverseTopologicalSort()
	if err != nil {
		return nil, err
	}

	planned := make(map[string]bool)
	for _, node := range sorted {
		if node.Kind != graph.NodeKindResource {
			continue
		}
		record := state.Resource(node.ID)
		if record == nil {
			continue
		}
		plan.add(&PlannedChange{
			Node:   node,
			Change: diff.ClassifyDelete(record),
			Record: record,
		})
		planned[node.ID] = true
	}

	// Instances recorded but absent from the graph still get destroyed.
	for _, identity := range sortedIdentities(state) {
		if planned[identity] {
			continue
		}
		record := state.Resources[identity]
		plan.add(&PlannedChange{
			Change: diff.ClassifyDelete(record),
			Record: record,
		})
	}

	return plan, nil
}

func (p *Plan) add(pc *PlannedChange) {
	p.Changes = append(p.Changes, pc)
	switch pc.Change.Action {
	case diff.ActionCreate:
		p.ToCreate++
	case diff.ActionUpdate:
		p.ToUpdate++
	case diff.ActionReplace:
		p.ToReplace++
	case diff.ActionDelete:
		p.ToDelete++
	case diff.ActionNoop:
		p.NoChange++
	}
}

func desiredAttrs(node *graph.Node) map[string]interface{} {
	out := make(map[string]interface{}, len(node.Attrs))
	for name, val := range node.Attrs {
		out[name] = config.FromCtyValue(val)
	}
	return out
}

func sortedIdentities(state *types.StackState) []string {
	identities := make([]string, 0, len(state.Resources))
	for identity := range state.Resources {
		identities = append(identities, identity)
	}
	sort.Strings(identities)
	return identities
}

func stackName(state *types.StackState) string {
	if state == nil {
		return ""
	}
	return state.Name
}
