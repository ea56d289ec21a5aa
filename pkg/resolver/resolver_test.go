package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/strato-labs/stratoctl/pkg/config"
	"github.com/strato-labs/stratoctl/pkg/errors"
	"github.com/strato-labs/stratoctl/pkg/graph"
	"github.com/strato-labs/stratoctl/pkg/provider/mem"
)

func parseDoc(t *testing.T, src string) *config.Document {
	t.Helper()
	doc, err := config.NewParser().ParseBytes([]byte(src), "stack.hcl")
	require.NoError(t, err)
	return doc
}

func memProvider(t *testing.T) *mem.Provider {
	t.Helper()
	p, err := mem.NewProvider(nil)
	require.NoError(t, err)
	return p.(*mem.Provider)
}

// resolveAll runs the full pipeline: variables, counts, graph build, graph
// resolution. Returns the resolved graph.
func resolveAll(t *testing.T, src string, vars map[string]interface{}) *graph.Graph {
	t.Helper()
	ctx := context.Background()
	doc := parseDoc(t, src)
	r := NewResolver(ctx, doc, memProvider(t), nil)
	require.NoError(t, r.ResolveVariables(vars))

	counts, err := r.EvalCounts()
	require.NoError(t, err)

	g, err := graph.NewBuilder("test", doc, counts).Build()
	require.NoError(t, err)
	require.NoError(t, r.ResolveGraph(ctx, g))
	return g
}

func TestResolveVariables(t *testing.T) {
	doc := parseDoc(t, `
variable "region" {
  type    = string
  default = "us-east1"
}

variable "node_count" {
  type = number
}
`)

	r := NewResolver(context.Background(), doc, memProvider(t), nil)
	require.NoError(t, r.ResolveVariables(map[string]interface{}{"node_count": 5}))

	vars := r.Variables()
	assert.Equal(t, "us-east1", vars["region"].AsString())
	assert.True(t, vars["node_count"].RawEquals(cty.NumberIntVal(5)))
}

func TestResolveVariablesSuppliedOverridesDefault(t *testing.T) {
	doc := parseDoc(t, `
variable "region" {
  type    = string
  default = "us-east1"
}
`)

	r := NewResolver(context.Background(), doc, memProvider(t), nil)
	require.NoError(t, r.ResolveVariables(map[string]interface{}{"region": "eu-west2"}))
	assert.Equal(t, "eu-west2", r.Variables()["region"].AsString())
}

func TestResolveVariablesMissingRequired(t *testing.T) {
	doc := parseDoc(t, `
variable "region" {
  type = string
}
`)

	r := NewResolver(context.Background(), doc, memProvider(t), nil)
	err := r.ResolveVariables(nil)
	require.Error(t, err)

	var typed *errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errors.ErrCodeValidation, typed.Code)
	assert.Contains(t, err.Error(), `"region"`)
}

func TestResolveVariablesRejectsUndeclared(t *testing.T) {
	doc := parseDoc(t, `
variable "region" {
  type    = string
  default = "us-east1"
}
`)

	r := NewResolver(context.Background(), doc, memProvider(t), nil)
	err := r.ResolveVariables(map[string]interface{}{"regoin": "us-east1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared variable")
}

func TestResolveVariablesTypeMismatch(t *testing.T) {
	doc := parseDoc(t, `
variable "node_count" {
  type = number
}
`)

	r := NewResolver(context.Background(), doc, memProvider(t), nil)
	err := r.ResolveVariables(map[string]interface{}{"node_count": "lots"})
	require.Error(t, err)

	var typed *errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errors.ErrCodeTypeMismatch, typed.Code)
}

func TestEvalCounts(t *testing.T) {
	doc := parseDoc(t, `
variable "pool_count" {
  type    = number
  default = 3
}

resource "cluster" "primary" {
  name   = "prod"
  region = "us-east1"
}

resource "node_pool" "workers" {
  count   = var.pool_count
  name    = "workers"
  cluster = "prod"
  region  = "us-east1"
}
`)

	r := NewResolver(context.Background(), doc, memProvider(t), nil)
	require.NoError(t, r.ResolveVariables(nil))

	counts, err := r.EvalCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["cluster.primary"])
	assert.Equal(t, 3, counts["node_pool.workers"])
}

func TestEvalCountsRejectsNegative(t *testing.T) {
	doc := parseDoc(t, `
resource "node_pool" "workers" {
  count = -1
  name  = "workers"
}
`)

	r := NewResolver(context.Background(), doc, memProvider(t), nil)
	require.NoError(t, r.ResolveVariables(nil))

	_, err := r.EvalCounts()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestResolveGraphAppliesSchemaDefaults(t *testing.T) {
	g := resolveAll(t, `
resource "cluster" "primary" {
  name   = "prod"
  region = "us-east1"
}
`, nil)

	node := g.GetNode("cluster.primary")
	require.NotNil(t, node)
	assert.Equal(t, "prod", node.Attrs["name"].AsString())
	assert.Equal(t, "latest", node.Attrs["version"].AsString())
	assert.False(t, node.Attrs["network_policy"].True())

	// Computed attributes stay unset until the provider assigns them.
	_, ok := node.Attrs["endpoint"]
	assert.False(t, ok)
}

func TestResolveGraphCrossResourceReference(t *testing.T) {
	g := resolveAll(t, `
resource "cluster" "primary" {
  name   = "prod"
  region = "us-east1"
}

resource "node_pool" "workers" {
  name    = "workers"
  cluster = cluster.primary.name
  region  = cluster.primary.region
}
`, nil)

	node := g.GetNode("node_pool.workers")
	require.NotNil(t, node)
	assert.Equal(t, "prod", node.Attrs["cluster"].AsString())
	assert.Equal(t, "us-east1", node.Attrs["region"].AsString())
}

func TestResolveGraphDataSource(t *testing.T) {
	g := resolveAll(t, `
data "platform_versions" "current" {
  region = "us-east1"
}

resource "cluster" "primary" {
  name    = "prod"
  region  = "us-east1"
  version = data.platform_versions.current.latest
}
`, nil)

	ds := g.GetNode("data.platform_versions.current")
	require.NotNil(t, ds)
	assert.Equal(t, graph.NodeStateSucceeded, ds.State)
	assert.Equal(t, "1.32.4", ds.Attrs["latest"].AsString())

	cluster := g.GetNode("cluster.primary")
	require.NotNil(t, cluster)
	assert.Equal(t, "1.32.4", cluster.Attrs["version"].AsString())
}

func TestResolveGraphCountIndexInterpolation(t *testing.T) {
	g := resolveAll(t, `
resource "node_pool" "workers" {
  count   = 3
  name    = "workers-${count.index}"
  cluster = "prod"
  region  = "us-east1"
}
`, nil)

	for i := 0; i < 3; i++ {
		node := g.InstancesOf("node_pool", "workers")[i]
		assert.Equal(t, graph.NodeKindResource, node.Kind)
		require.NotNil(t, node.Attrs["name"])
		assert.Equal(t, map[int]string{0: "workers-0", 1: "workers-1", 2: "workers-2"}[i], node.Attrs["name"].AsString())
	}
}

func TestResolveGraphIndexCorrelatedElementLookup(t *testing.T) {
	g := resolveAll(t, `
variable "zones" {
  type    = string
  default = "us-east1-b,us-east1-c,us-east1-d"
}

resource "node_pool" "workers" {
  count   = 3
  name    = "workers-${count.index}"
  cluster = "prod"
  region  = "us-east1"
  zone    = element(split(",", var.zones), count.index)
}
`, nil)

	instances := g.InstancesOf("node_pool", "workers")
	require.Len(t, instances, 3)
	assert.Equal(t, "us-east1-b", instances[0].Attrs["zone"].AsString())
	assert.Equal(t, "us-east1-c", instances[1].Attrs["zone"].AsString())
	assert.Equal(t, "us-east1-d", instances[2].Attrs["zone"].AsString())
}

func TestResolveGraphCountedSiblingIndexing(t *testing.T) {
	// Instance i reads element i of a counted declaration. cluster.cells[0]
	// resolves before node_pool.pools[1] does, so the pools tuple still
	// carries an unknown placeholder at index 1. Indexing element 0 must
	// succeed regardless.
	g := resolveAll(t, `
resource "node_pool" "pools" {
  count   = 2
  name    = "pool-${count.index}"
  cluster = "prod"
  region  = "us-east1"
}

resource "cluster" "cells" {
  count  = 2
  name   = node_pool.pools[count.index].name
  region = "us-east1"
}
`, nil)

	cells := g.InstancesOf("cluster", "cells")
	require.Len(t, cells, 2)
	assert.Equal(t, "pool-0", cells[0].Attrs["name"].AsString())
	assert.Equal(t, "pool-1", cells[1].Attrs["name"].AsString())
}

func TestResolveGraphCountedSiblingIndexingSingleInstance(t *testing.T) {
	// A counted declaration stays indexable when the count evaluates to 1,
	// so scaling a pair of correlated declarations down to one instance
	// does not break the lookup.
	g := resolveAll(t, `
variable "cells" {
  type    = number
  default = 1
}

resource "node_pool" "pools" {
  count   = var.cells
  name    = "pool-${count.index}"
  cluster = "prod"
  region  = "us-east1"
}

resource "cluster" "cells" {
  count  = var.cells
  name   = node_pool.pools[count.index].name
  region = "us-east1"
}
`, nil)

	cells := g.InstancesOf("cluster", "cells")
	require.Len(t, cells, 1)
	assert.Equal(t, "pool-0", cells[0].Attrs["name"].AsString())
}

func TestResolveGraphUnsupportedAttribute(t *testing.T) {
	ctx := context.Background()
	doc := parseDoc(t, `
resource "cluster" "primary" {
  name     = "prod"
  region   = "us-east1"
  flavour  = "large"
}
`)

	r := NewResolver(ctx, doc, memProvider(t), nil)
	require.NoError(t, r.ResolveVariables(nil))

	g, err := graph.NewBuilder("test", doc, nil).Build()
	require.NoError(t, err)

	err = r.ResolveGraph(ctx, g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported attribute "flavour"`)
}

func TestResolveGraphMissingRequiredAttribute(t *testing.T) {
	ctx := context.Background()
	doc := parseDoc(t, `
resource "cluster" "primary" {
  name = "prod"
}
`)

	r := NewResolver(ctx, doc, memProvider(t), nil)
	require.NoError(t, r.ResolveVariables(nil))

	g, err := graph.NewBuilder("test", doc, nil).Build()
	require.NoError(t, err)

	err = r.ResolveGraph(ctx, g)
	require.Error(t, err)

	var typed *errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errors.ErrCodeValidation, typed.Code)
	assert.Contains(t, err.Error(), `required attribute "region"`)
}

func TestResolveGraphAttributeTypeMismatch(t *testing.T) {
	ctx := context.Background()
	doc := parseDoc(t, `
resource "node_pool" "workers" {
  name       = "workers"
  cluster    = "prod"
  region     = "us-east1"
  node_count = "not-a-number"
}
`)

	r := NewResolver(ctx, doc, memProvider(t), nil)
	require.NoError(t, r.ResolveVariables(nil))

	g, err := graph.NewBuilder("test", doc, nil).Build()
	require.NoError(t, err)

	err = r.ResolveGraph(ctx, g)
	require.Error(t, err)

	var typed *errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errors.ErrCodeTypeMismatch, typed.Code)
}

type staticSecrets map[string]string

func (s staticSecrets) Get(_ context.Context, name string) (string, error) {
	val, ok := s[name]
	if !ok {
		return "", errors.NotFoundError("secret", name)
	}
	return val, nil
}

func TestSecretFunction(t *testing.T) {
	ctx := context.Background()
	doc := parseDoc(t, `
resource "cluster" "primary" {
  name   = "prod"
  region = "us-east1"
  labels = {
    owner = secret("owner-team")
  }
}
`)

	r := NewResolver(ctx, doc, memProvider(t), staticSecrets{"owner-team": "platform"})
	require.NoError(t, r.ResolveVariables(nil))

	g, err := graph.NewBuilder("test", doc, nil).Build()
	require.NoError(t, err)
	require.NoError(t, r.ResolveGraph(ctx, g))

	labels := g.GetNode("cluster.primary").Attrs["labels"]
	assert.Equal(t, "platform", labels.Index(cty.StringVal("owner")).AsString())
}

func TestSecretFunctionWithoutSource(t *testing.T) {
	ctx := context.Background()
	doc := parseDoc(t, `
resource "cluster" "primary" {
  name   = secret("cluster-name")
  region = "us-east1"
}
`)

	r := NewResolver(ctx, doc, memProvider(t), nil)
	require.NoError(t, r.ResolveVariables(nil))

	g, err := graph.NewBuilder("test", doc, nil).Build()
	require.NoError(t, err)

	err = r.ResolveGraph(ctx, g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no secret source configured")
}
