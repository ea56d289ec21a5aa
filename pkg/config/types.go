// Package config loads declarative stack configurations into an in-memory
// desired-state document. Attribute expressions stay unevaluated until the
// resolver runs them against variables, data sources, and resource references.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Document is the parsed form of one stack configuration file.
type Document struct {
	// Path is the source file the document was parsed from.
	Path string

	// Version is the declared schema version of the document.
	Version string

	Variables   []*Variable
	Resources   []*Resource
	DataSources []*DataSource
}

// Variable is a declared input with an optional per-attribute default.
type Variable struct {
	Name        string
	Type        cty.Type
	Description string
	Sensitive   bool

	// Default is the fallback substituted when no value is supplied.
	// Only meaningful when hasDefault is set.
	Default cty.Value

	DeclRange hcl.Range

	// Set by the parser when the declaration carries a default attribute.
	// cty.Value is not comparable with ==, so presence is tracked here.
	hasDefault bool
}

// HasDefault reports whether the variable declares a default value.
func (v *Variable) HasDefault() bool {
	return v.hasDefault
}

// Resource is one declared resource node: a type, a logical name, raw
// attribute expressions, an optional repetition count, and lifecycle policy.
type Resource struct {
	Type string
	Name string

	// Attrs maps attribute names to their unevaluated expressions.
	Attrs map[string]hcl.Expression

	// CountExpr is the repetition count expression, nil when undeclared.
	// A counted resource expands into N indexed instances.
	CountExpr hcl.Expression

	// IgnoreChanges lists attribute names excluded from diffing entirely.
	IgnoreChanges []string

	DeclRange hcl.Range
}

// Addr returns the resource's configuration address, e.g. "node_pool.workers".
func (r *Resource) Addr() string {
	return r.Type + "." + r.Name
}

// DataSource is a read-only external lookup resolved before dependent
// resources are planned. It has no desired/actual diff.
type DataSource struct {
	Type string
	Name string

	// Attrs maps argument names to their unevaluated expressions.
	Attrs map[string]hcl.Expression

	DeclRange hcl.Range
}

// Addr returns the data source's configuration address, e.g.
// "data.platform_versions.current".
func (d *DataSource) Addr() string {
	return "data." + d.Type + "." + d.Name
}

// ResourceByAddr returns the resource with the given type and name, or nil.
func (d *Document) ResourceByAddr(resourceType, name string) *Resource {
	for _, r := range d.Resources {
		if r.Type == resourceType && r.Name == name {
			return r
		}
	}
	return nil
}

// DataSourceByAddr returns the data source with the given type and name, or nil.
func (d *Document) DataSourceByAddr(dataType, name string) *DataSource {
	for _, ds := range d.DataSources {
		if ds.Type == dataType && ds.Name == name {
			return ds
		}
	}
	return nil
}

// VariableByName returns the declared variable with the given name, or nil.
func (d *Document) VariableByName(name string) *Variable {
	for _, v := range d.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// InstanceID returns the state identity for instance index of a counted
// resource. Uncounted resources are keyed without brackets.
func InstanceID(resourceType, name string, index, count int) string {
	if count <= 1 {
		return resourceType + "." + name
	}
	return fmt.Sprintf("%s.%s[%d]", resourceType, name, index)
}
