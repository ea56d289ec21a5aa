package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/strato-labs/stratoctl/pkg/errors"
)

func TestParseVariables(t *testing.T) {
	src := `
version = "1"

variable "region" {
  type        = string
  description = "Deployment region"
  default     = "us-east1"
}

variable "node_count" {
  type    = number
  default = 3
}

variable "enable_policy" {
  type    = bool
  default = false
}

variable "zones" {
  type    = list
  default = ["a", "b"]
}

variable "labels" {
  type    = map
  default = { team = "platform" }
}

variable "api_token" {
  type      = string
  sensitive = true
}
`

	doc, err := NewParser().ParseBytes([]byte(src), "stack.hcl")
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Version)
	require.Len(t, doc.Variables, 6)

	region := doc.VariableByName("region")
	require.NotNil(t, region)
	assert.Equal(t, cty.String, region.Type)
	assert.Equal(t, "Deployment region", region.Description)
	assert.True(t, region.HasDefault())
	assert.Equal(t, "us-east1", region.Default.AsString())
	assert.False(t, region.Sensitive)

	count := doc.VariableByName("node_count")
	require.NotNil(t, count)
	assert.Equal(t, cty.Number, count.Type)

	zones := doc.VariableByName("zones")
	require.NotNil(t, zones)
	assert.Equal(t, cty.List(cty.String), zones.Type)
	assert.Equal(t, 2, zones.Default.LengthInt())

	labels := doc.VariableByName("labels")
	require.NotNil(t, labels)
	assert.Equal(t, cty.Map(cty.String), labels.Type)

	token := doc.VariableByName("api_token")
	require.NotNil(t, token)
	assert.True(t, token.Sensitive)
	assert.False(t, token.HasDefault())
}

func TestParseVariableDefaultTypeMismatch(t *testing.T) {
	src := `
variable "node_count" {
  type    = number
  default = "not-a-number"
}
`

	_, err := NewParser().ParseBytes([]byte(src), "stack.hcl")
	require.Error(t, err)

	var typed *errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errors.ErrCodeTypeMismatch, typed.Code)
}

func TestParseVariableBadTypeKeyword(t *testing.T) {
	src := `
variable "region" {
  type = tuple
}
`

	_, err := NewParser().ParseBytes([]byte(src), "stack.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type keyword")
}

func TestParseResources(t *testing.T) {
	src := `
resource "cluster" "primary" {
  name    = "prod"
  region  = var.region
  version = data.platform_versions.current.latest
}

resource "node_pool" "workers" {
  count   = 3
  name    = "workers-${count.index}"
  cluster = cluster.primary.name
  region  = var.region

  lifecycle {
    ignore_changes = ["labels", "node_count"]
  }
}

data "platform_versions" "current" {
  region = var.region
}

variable "region" {
  type    = string
  default = "us-east1"
}
`

	doc, err := NewParser().ParseBytes([]byte(src), "stack.hcl")
	require.NoError(t, err)
	require.Len(t, doc.Resources, 2)
	require.Len(t, doc.DataSources, 1)

	primary := doc.ResourceByAddr("cluster", "primary")
	require.NotNil(t, primary)
	assert.Equal(t, "cluster.primary", primary.Addr())
	assert.Nil(t, primary.CountExpr)
	assert.Contains(t, primary.Attrs, "name")
	assert.Contains(t, primary.Attrs, "region")
	assert.Contains(t, primary.Attrs, "version")
	assert.NotContains(t, primary.Attrs, "count")
	assert.Empty(t, primary.IgnoreChanges)

	workers := doc.ResourceByAddr("node_pool", "workers")
	require.NotNil(t, workers)
	assert.NotNil(t, workers.CountExpr)
	assert.NotContains(t, workers.Attrs, "count")
	assert.NotContains(t, workers.Attrs, "lifecycle")
	assert.Equal(t, []string{"labels", "node_count"}, workers.IgnoreChanges)

	versions := doc.DataSourceByAddr("platform_versions", "current")
	require.NotNil(t, versions)
	assert.Equal(t, "data.platform_versions.current", versions.Addr())
	assert.Contains(t, versions.Attrs, "region")
}

func TestParseDuplicateDeclarations(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "duplicate resource",
			src: `
resource "cluster" "primary" {
  name = "a"
}
resource "cluster" "primary" {
  name = "b"
}
`,
			want: "cluster.primary",
		},
		{
			name: "duplicate variable",
			src: `
variable "region" {}
variable "region" {}
`,
			want: "variable.region",
		},
		{
			name: "duplicate data source",
			src: `
data "platform_versions" "current" {}
data "platform_versions" "current" {}
`,
			want: "data.platform_versions.current",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().ParseBytes([]byte(tt.src), "stack.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "duplicate declaration")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseInvalidIgnoreChanges(t *testing.T) {
	src := `
resource "cluster" "primary" {
  name = "prod"

  lifecycle {
    ignore_changes = "labels"
  }
}
`

	_, err := NewParser().ParseBytes([]byte(src), "stack.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ignore_changes must be a list")
}

func TestParseSyntaxError(t *testing.T) {
	_, err := NewParser().ParseBytes([]byte(`resource "cluster" {`), "broken.hcl")
	require.Error(t, err)

	var typed *errors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errors.ErrCodeParse, typed.Code)
}

func TestInstanceID(t *testing.T) {
	assert.Equal(t, "cluster.primary", InstanceID("cluster", "primary", 0, 1))
	assert.Equal(t, "node_pool.workers[0]", InstanceID("node_pool", "workers", 0, 3))
	assert.Equal(t, "node_pool.workers[2]", InstanceID("node_pool", "workers", 2, 3))
}
