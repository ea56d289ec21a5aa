// Package resolver evaluates attribute expressions against variables, data
// sources, and cross-resource references, turning a parsed document into a
// graph where every attribute is a concrete value.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/strato-labs/stratoctl/pkg/config"
	"github.com/strato-labs/stratoctl/pkg/errors"
	"github.com/strato-labs/stratoctl/pkg/graph"
	"github.com/strato-labs/stratoctl/pkg/provider"
)

// SecretSource supplies values for the secret() evaluation function.
type SecretSource interface {
	Get(ctx context.Context, name string) (string, error)
}

// Resolver produces concrete attribute values for a configuration document.
type Resolver struct {
	doc   *config.Document
	prov  provider.Provider
	funcs map[string]function.Function

	// vars holds resolved variable values after ResolveVariables.
	vars map[string]cty.Value
}

// NewResolver creates a resolver for the given document and provider.
// secretSource may be nil, in which case secret() calls fail.
func NewResolver(ctx context.Context, doc *config.Document, prov provider.Provider, secretSource SecretSource) *Resolver {
	return &Resolver{
		doc:   doc,
		prov:  prov,
		funcs: standardFunctions(ctx, secretSource),
		vars:  make(map[string]cty.Value),
	}
}

// ResolveVariables merges supplied values over declared per-variable defaults.
// Every declared variable must end up with a value of its declared type.
func (r *Resolver) ResolveVariables(supplied map[string]interface{}) error {
	for _, v := range r.doc.Variables {
		var val cty.Value

		if raw, ok := supplied[v.Name]; ok {
			val = config.ToCtyValue(raw)
		} else if v.HasDefault() {
			val = v.Default
		} else {
			return errors.ValidationError(
				fmt.Sprintf("variable %q has no value and no default", v.Name),
				map[string]interface{}{"identity": "variable." + v.Name})
		}

		if v.Type != cty.DynamicPseudoType {
			converted, err := convert.Convert(val, v.Type)
			if err != nil {
				return errors.TypeMismatchError("variable."+v.Name, "value", v.Type.FriendlyName(), err)
			}
			val = converted
		}

		r.vars[v.Name] = val
	}

	// Reject values for undeclared variables early; a typo here is otherwise
	// silently ignored.
	for name := range supplied {
		if r.doc.VariableByName(name) == nil {
			return errors.ValidationError(
				fmt.Sprintf("value supplied for undeclared variable %q", name),
				map[string]interface{}{"identity": "variable." + name})
		}
	}

	return nil
}

// Variables returns the resolved variable values.
func (r *Resolver) Variables() map[string]cty.Value {
	return r.vars
}

// EvalCounts evaluates every resource's repetition count. Counts may only
// reference variables, so this runs before graph expansion.
func (r *Resolver) EvalCounts() (map[string]int, error) {
	counts := make(map[string]int)
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": r.varsObject()},
		Functions: r.funcs,
	}

	for _, res := range r.doc.Resources {
		if res.CountExpr == nil {
			counts[res.Addr()] = 1
			continue
		}

		val, diags := res.CountExpr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, errors.UnresolvedReferenceError(res.Addr(), "count", diags.Error())
		}

		converted, err := convert.Convert(val, cty.Number)
		if err != nil {
			return nil, errors.TypeMismatchError(res.Addr(), "count", "number", err)
		}

		count, _ := converted.AsBigFloat().Int64()
		if count < 0 {
			return nil, errors.ValidationError(
				fmt.Sprintf("%s: count must not be negative", res.Addr()),
				map[string]interface{}{"identity": res.Addr(), "attribute": "count"})
		}
		counts[res.Addr()] = int(count)
	}

	return counts, nil
}

// ResolveGraph walks the graph in topological order and fills every node's
// Attrs with concrete values. Data sources are read through the provider on
// every pass; resources evaluate configuration expressions and fall back to
// per-attribute schema defaults.
func (r *Resolver) ResolveGraph(ctx context.Context, g *graph.Graph) error {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return err
	}

	for _, node := range sorted {
		switch node.Kind {
		case graph.NodeKindData:
			if err := r.resolveDataNode(ctx, g, node); err != nil {
				return err
			}
		case graph.NodeKindResource:
			if err := r.resolveResourceNode(g, node); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *Resolver) resolveDataNode(ctx context.Context, g *graph.Graph, node *graph.Node) error {
	evalCtx := r.evalContext(g, node)

	args := make(map[string]interface{}, len(node.Data.Attrs))
	for name, expr := range node.Data.Attrs {
		val, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return errors.UnresolvedReferenceError(node.ID, name, diags.Error())
		}
		if !val.IsWhollyKnown() {
			return errors.UnresolvedReferenceError(node.ID, name, expressionText(expr))
		}
		args[name] = config.FromCtyValue(val)
	}

	actual, err := r.prov.ReadData(ctx, node.ResourceType, args)
	if err != nil {
		return errors.ProviderError(node.ID, "read", err)
	}

	node.Attrs = make(map[string]cty.Value, len(actual))
	for name, val := range actual {
		node.Attrs[name] = config.ToCtyValue(val)
	}
	node.State = graph.NodeStateSucceeded

	return nil
}

func (r *Resolver) resolveResourceNode(g *graph.Graph, node *graph.Node) error {
	schema, err := r.prov.ResourceSchema(node.ResourceType)
	if err != nil {
		return errors.ValidationError(
			fmt.Sprintf("%s: %v", node.ID, err),
			map[string]interface{}{"identity": node.ID})
	}

	for name := range node.Resource.Attrs {
		if _, ok := schema.Attributes[name]; !ok {
			return errors.ValidationError(
				fmt.Sprintf("%s: unsupported attribute %q", node.ID, name),
				map[string]interface{}{"identity": node.ID, "attribute": name})
		}
	}

	evalCtx := r.evalContext(g, node)
	node.Attrs = make(map[string]cty.Value)

	for _, name := range schema.AttributeNames() {
		attrSchema := schema.Attributes[name]
		expr, declared := node.Resource.Attrs[name]

		var val cty.Value
		switch {
		case declared:
			var diags hcl.Diagnostics
			val, diags = expr.Value(evalCtx)
			if diags.HasErrors() {
				return errors.UnresolvedReferenceError(node.ID, name, diags.Error())
			}
			if !val.IsWhollyKnown() {
				return errors.UnresolvedReferenceError(node.ID, name, expressionText(expr))
			}
		case attrSchema.HasDefault():
			val = attrSchema.Default
		case attrSchema.Computed:
			// Assigned by the platform after apply; nothing to resolve.
			continue
		case attrSchema.Required:
			return errors.ValidationError(
				fmt.Sprintf("%s: required attribute %q not set", node.ID, name),
				map[string]interface{}{"identity": node.ID, "attribute": name})
		default:
			continue
		}

		converted, err := convert.Convert(val, attrSchema.Type)
		if err != nil {
			return errors.TypeMismatchError(node.ID, name, attrSchema.Type.FriendlyName(), err)
		}
		node.Attrs[name] = converted
	}

	return nil
}

// evalContext builds the HCL evaluation context for one node: variables, the
// count index, resolved data sources, and desired values of other resources.
// Counted resources are bound as tuples so index-correlated lookups
// (list[count.index], element(list, count.index)) stay explicit; instances not
// yet resolved appear as unknowns, which is fine as long as the evaluated
// element itself is known.
func (r *Resolver) evalContext(g *graph.Graph, node *graph.Node) *hcl.EvalContext {
	variables := map[string]cty.Value{
		"var": r.varsObject(),
	}

	if node.Kind == graph.NodeKindResource {
		variables["count"] = cty.ObjectVal(map[string]cty.Value{
			"index": cty.NumberIntVal(int64(node.Index)),
		})
	}

	if dataObj := r.dataObject(g); dataObj != cty.NilVal {
		variables["data"] = dataObj
	}

	// Group resource instances by type -> name.
	byType := make(map[string]map[string]cty.Value)
	for _, res := range r.doc.Resources {
		instances := g.InstancesOf(res.Type, res.Name)
		if len(instances) == 0 {
			continue
		}

		// A counted declaration binds as a tuple at any cardinality, so
		// sibling[count.index] works even when count evaluates to 1. Only
		// unbracketed declarations bind as plain objects.
		var bound cty.Value
		if res.CountExpr == nil {
			bound = instanceValue(instances[0])
		} else {
			elems := make([]cty.Value, len(instances))
			for i, inst := range instances {
				elems[i] = instanceValue(inst)
			}
			bound = cty.TupleVal(elems)
		}

		if byType[res.Type] == nil {
			byType[res.Type] = make(map[string]cty.Value)
		}
		byType[res.Type][res.Name] = bound
	}

	for resType, names := range byType {
		variables[resType] = cty.ObjectVal(names)
	}

	return &hcl.EvalContext{
		Variables: variables,
		Functions: r.funcs,
	}
}

func (r *Resolver) varsObject() cty.Value {
	if len(r.vars) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(r.vars)
}

func (r *Resolver) dataObject(g *graph.Graph) cty.Value {
	byType := make(map[string]map[string]cty.Value)
	for _, ds := range r.doc.DataSources {
		node := g.GetNode(ds.Addr())
		if node == nil {
			continue
		}
		if byType[ds.Type] == nil {
			byType[ds.Type] = make(map[string]cty.Value)
		}
		byType[ds.Type][ds.Name] = instanceValue(node)
	}
	if len(byType) == 0 {
		return cty.NilVal
	}

	out := make(map[string]cty.Value, len(byType))
	for dsType, names := range byType {
		out[dsType] = cty.ObjectVal(names)
	}
	return cty.ObjectVal(out)
}

// instanceValue returns the resolved attribute object for a node, or an
// unknown placeholder when the node has not been resolved yet.
func instanceValue(node *graph.Node) cty.Value {
	if node.Attrs == nil {
		return cty.UnknownVal(cty.DynamicPseudoType)
	}
	if len(node.Attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(node.Attrs)
}

func expressionText(expr hcl.Expression) string {
	rng := expr.Range()
	return fmt.Sprintf("expression at %s", rng.String())
}

// SortedVarNames returns declared variable names in sorted order.
func (r *Resolver) SortedVarNames() []string {
	names := make([]string, 0, len(r.vars))
	for name := range r.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
