package provider

import (
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// AttributeSchema declares the constraint for one attribute of a resource type.
// Defaults are explicit and per-attribute, never ambient.
type AttributeSchema struct {
	// Type is the cty type constraint values must convert to.
	Type cty.Type

	// Required attributes must be set in configuration (unless a default exists).
	Required bool

	// Default is substituted when configuration omits the attribute.
	// cty.NilVal means no default.
	Default cty.Value

	// ForceNew marks the attribute immutable: a change requires
	// destroying and recreating the resource.
	ForceNew bool

	// Computed attributes are assigned by the platform and never diffed
	// against configuration.
	Computed bool
}

// HasDefault reports whether a default value is declared.
func (a AttributeSchema) HasDefault() bool {
	return a.Default != cty.NilVal
}

// ResourceSchema declares the attributes of a resource or data source type.
type ResourceSchema struct {
	Attributes map[string]AttributeSchema
}

// AttributeNames returns attribute names in sorted order for deterministic
// iteration.
func (s *ResourceSchema) AttributeNames() []string {
	names := make([]string, 0, len(s.Attributes))
	for name := range s.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
