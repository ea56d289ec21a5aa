// Package mem implements an in-memory provider that simulates a managed
// Kubernetes platform (clusters, node pools, a platform-versions lookup).
// It backs local dry-runs and the engine's own tests; no network calls.
package mem

import (
	"context"
	"fmt"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/strato-labs/stratoctl/pkg/provider"
)

func init() {
	provider.Register("mem", NewProvider)
}

// Provider keeps all actual state in process memory, keyed by identity.
type Provider struct {
	mu        sync.RWMutex
	resources map[string]record

	// FailOn forces an error for a specific identity, letting tests
	// exercise partial-failure and blocked-dependent behavior.
	FailOn map[string]error
}

type record struct {
	resourceType string
	attrs        map[string]interface{}
}

// NewProvider creates a new in-memory provider.
func NewProvider(_ map[string]string) (provider.Provider, error) {
	return &Provider{
		resources: make(map[string]record),
		FailOn:    make(map[string]error),
	}, nil
}

func (p *Provider) Name() string {
	return "mem"
}

// ResourceSchema returns schemas for the simulated platform's resource types.
func (p *Provider) ResourceSchema(resourceType string) (*provider.ResourceSchema, error) {
	switch resourceType {
	case "cluster":
		return &provider.ResourceSchema{
			Attributes: map[string]provider.AttributeSchema{
				"name":           {Type: cty.String, Required: true, ForceNew: true},
				"region":         {Type: cty.String, Required: true, ForceNew: true},
				"version":        {Type: cty.String, Default: cty.StringVal("latest")},
				"network_policy": {Type: cty.Bool, Default: cty.False},
				"labels":         {Type: cty.Map(cty.String), Default: cty.MapValEmpty(cty.String)},
				"endpoint":       {Type: cty.String, Computed: true},
			},
		}, nil
	case "node_pool":
		return &provider.ResourceSchema{
			Attributes: map[string]provider.AttributeSchema{
				"name":         {Type: cty.String, Required: true, ForceNew: true},
				"cluster":      {Type: cty.String, Required: true, ForceNew: true},
				"region":       {Type: cty.String, Required: true, ForceNew: true},
				"zone":         {Type: cty.String, Default: cty.StringVal("")},
				"machine_type": {Type: cty.String, Default: cty.StringVal("standard-2"), ForceNew: true},
				"node_count":   {Type: cty.Number, Default: cty.NumberIntVal(1)},
				"disk_size_gb": {Type: cty.Number, Default: cty.NumberIntVal(100)},
				"preemptible":  {Type: cty.Bool, Default: cty.False, ForceNew: true},
				"labels":       {Type: cty.Map(cty.String), Default: cty.MapValEmpty(cty.String)},
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}
}

// DataSchema returns schemas for the simulated platform's data source types.
func (p *Provider) DataSchema(dataType string) (*provider.ResourceSchema, error) {
	switch dataType {
	case "platform_versions":
		return &provider.ResourceSchema{
			Attributes: map[string]provider.AttributeSchema{
				"region":         {Type: cty.String, Required: true},
				"latest":         {Type: cty.String, Computed: true},
				"valid_versions": {Type: cty.List(cty.String), Computed: true},
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown data source type %q", dataType)
	}
}

func (p *Provider) Create(ctx context.Context, identity, resourceType string, attrs map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.failure(identity); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.resources[identity]; exists {
		return nil, fmt.Errorf("resource %s already exists", identity)
	}

	actual := cloneAttrs(attrs)
	if resourceType == "cluster" {
		actual["endpoint"] = fmt.Sprintf("https://%v.%v.clusters.internal", attrs["name"], attrs["region"])
	}

	p.resources[identity] = record{resourceType: resourceType, attrs: actual}
	return cloneAttrs(actual), nil
}

func (p *Provider) Read(ctx context.Context, identity string) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.resources[identity]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return cloneAttrs(rec.attrs), nil
}

func (p *Provider) Update(ctx context.Context, identity string, attrs map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.failure(identity); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.resources[identity]
	if !ok {
		return nil, provider.ErrNotFound
	}

	actual := cloneAttrs(rec.attrs)
	for k, v := range attrs {
		actual[k] = v
	}
	p.resources[identity] = record{resourceType: rec.resourceType, attrs: actual}
	return cloneAttrs(actual), nil
}

func (p *Provider) Destroy(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.failure(identity); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Destroying an absent resource is idempotent
	delete(p.resources, identity)
	return nil
}

func (p *Provider) ReadData(ctx context.Context, dataType string, args map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch dataType {
	case "platform_versions":
		region, _ := args["region"].(string)
		if region == "" {
			return nil, fmt.Errorf("platform_versions requires a region")
		}
		return map[string]interface{}{
			"region":         region,
			"latest":         "1.32.4",
			"valid_versions": []interface{}{"1.32.4", "1.31.8", "1.30.12"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown data source type %q", dataType)
	}
}

// Seed installs a record directly, bypassing Create. Test helper.
func (p *Provider) Seed(identity, resourceType string, attrs map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources[identity] = record{resourceType: resourceType, attrs: cloneAttrs(attrs)}
}

// Exists reports whether an identity has a live record. Test helper.
func (p *Provider) Exists(identity string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.resources[identity]
	return ok
}

func (p *Provider) failure(identity string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err, ok := p.FailOn[identity]; ok {
		return err
	}
	return nil
}

func cloneAttrs(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
