// Package diff compares desired resource attributes against recorded state
// and classifies what the executor must do about the difference.
package diff

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/strato-labs/stratoctl/pkg/provider"
	"github.com/strato-labs/stratoctl/pkg/state/types"
)

// Action classifies what must happen to a resource instance.
type Action string

const (
	ActionNoop    Action = "noop"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
)

// AttributeChange records one attribute's old and new value.
type AttributeChange struct {
	Name      string      `json:"name"`
	Old       interface{} `json:"old"`
	New       interface{} `json:"new"`
	ForcesNew bool        `json:"forces_new"`
}

// Change is the classified difference for one resource instance.
type Change struct {
	Identity     string            `json:"identity"`
	ResourceType string            `json:"resource_type"`
	Action       Action            `json:"action"`
	Attributes   []AttributeChange `json:"attributes,omitempty"`
}

// Destructive reports whether applying this change destroys a remote object.
func (c *Change) Destructive() bool {
	return c.Action == ActionDelete || c.Action == ActionReplace
}

// Summary renders a one-line description, e.g. "~ node_pool.workers[1]".
func (c *Change) Summary() string {
	var sigil string
	switch c.Action {
	case ActionCreate:
		sigil = "+"
	case ActionUpdate:
		sigil = "~"
	case ActionReplace:
		sigil = "-/+"
	case ActionDelete:
		sigil = "-"
	default:
		sigil = " "
	}
	return fmt.Sprintf("%s %s", sigil, c.Identity)
}

// Classify compares desired attributes against the recorded state of one
// instance. A nil record means the instance was never created. ignoreChanges
// lists attribute names whose drift in desired configuration must not
// produce an update; it never suppresses create or delete.
func Classify(identity, resourceType string, desired map[string]interface{}, record *types.ResourceState, schema *provider.ResourceSchema, ignoreChanges []string) *Change {
	change := &Change{
		Identity:     identity,
		ResourceType: resourceType,
	}

	if record == nil {
		change.Action = ActionCreate
		for _, name := range sortedKeys(desired) {
			change.Attributes = append(change.Attributes, AttributeChange{
				Name: name,
				New:  desired[name],
			})
		}
		return change
	}

	ignored := make(map[string]bool, len(ignoreChanges))
	for _, name := range ignoreChanges {
		ignored[name] = true
	}

	forcesNew := false
	for _, name := range sortedKeys(desired) {
		if ignored[name] {
			continue
		}

		attrSchema, known := schema.Attributes[name]
		if known && attrSchema.Computed {
			continue
		}

		old, has := record.Attrs[name]
		if has && valuesEqual(old, desired[name]) {
			continue
		}

		attrChange := AttributeChange{
			Name: name,
			New:  desired[name],
		}
		if has {
			attrChange.Old = old
		}
		if known && attrSchema.ForceNew {
			attrChange.ForcesNew = true
			forcesNew = true
		}
		change.Attributes = append(change.Attributes, attrChange)
	}

	switch {
	case len(change.Attributes) == 0:
		change.Action = ActionNoop
	case forcesNew:
		change.Action = ActionReplace
	default:
		change.Action = ActionUpdate
	}
	return change
}

// ClassifyDelete produces a delete change for a recorded instance that no
// longer appears in the desired configuration.
func ClassifyDelete(record *types.ResourceState) *Change {
	change := &Change{
		Identity:     record.Identity,
		ResourceType: record.Type,
		Action:       ActionDelete,
	}
	for _, name := range sortedKeys(record.Attrs) {
		change.Attributes = append(change.Attributes, AttributeChange{
			Name: name,
			Old:  record.Attrs[name],
		})
	}
	return change
}

// valuesEqual compares attribute values structurally. JSON round trips turn
// ints into float64, so numbers compare by value across Go types.
func valuesEqual(a, b interface{}) bool {
	if na, ok := toFloat(a); ok {
		if nb, ok := toFloat(b); ok {
			return na == nb
		}
		return false
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// normalize rewrites nested numbers to float64 so DeepEqual does not trip
// over int versus float64 inside maps and slices.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, inner := range t {
			out[k] = normalize(inner)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(t))
		for k, inner := range t {
			out[k] = inner
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, inner := range t {
			out[i] = normalize(inner)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, inner := range t {
			out[i] = inner
		}
		return out
	default:
		if f, ok := toFloat(v); ok {
			return f
		}
		return v
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatChanges renders a plan-style listing of all non-noop changes.
func FormatChanges(changes []*Change) string {
	var b strings.Builder
	for _, c := range changes {
		if c.Action == ActionNoop {
			continue
		}
		b.WriteString(c.Summary())
		b.WriteString("\n")
		for _, attr := range c.Attributes {
			switch c.Action {
			case ActionCreate:
				fmt.Fprintf(&b, "    %s = %v\n", attr.Name, attr.New)
			case ActionDelete:
				fmt.Fprintf(&b, "    %s = %v (destroyed)\n", attr.Name, attr.Old)
			default:
				suffix := ""
				if attr.ForcesNew {
					suffix = " (forces replacement)"
				}
				fmt.Fprintf(&b, "    %s = %v -> %v%s\n", attr.Name, attr.Old, attr.New, suffix)
			}
		}
	}
	return b.String()
}
