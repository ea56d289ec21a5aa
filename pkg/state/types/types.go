// Package types defines the persisted state model.
package types

import (
	"time"
)

// StackStatus describes the overall condition of a stack.
type StackStatus string

const (
	StackStatusReady    StackStatus = "ready"
	StackStatusApplying StackStatus = "applying"
	StackStatusFailed   StackStatus = "failed"
)

// ResourceStatus describes the condition of a single resource instance.
type ResourceStatus string

const (
	ResourceStatusCreated ResourceStatus = "created"
	ResourceStatusTainted ResourceStatus = "tainted"
)

// StackState is the full persisted record for one stack: every resource
// instance the engine has successfully created or updated.
type StackState struct {
	Name      string      `json:"name"`
	Serial    uint64      `json:"serial"`
	Status    StackStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	// Resources is keyed by instance identity, e.g. "node_pool.workers[1]".
	Resources map[string]*ResourceState `json:"resources"`
}

// NewStackState creates an empty stack record.
func NewStackState(name string) *StackState {
	now := time.Now().UTC()
	return &StackState{
		Name:      name,
		Status:    StackStatusReady,
		CreatedAt: now,
		UpdatedAt: now,
		Resources: make(map[string]*ResourceState),
	}
}

// Resource returns the record for an identity, or nil.
func (s *StackState) Resource(identity string) *ResourceState {
	return s.Resources[identity]
}

// SetResource stores a record under its identity.
func (s *StackState) SetResource(r *ResourceState) {
	if s.Resources == nil {
		s.Resources = make(map[string]*ResourceState)
	}
	s.Resources[r.Identity] = r
}

// RemoveResource drops the record for an identity.
func (s *StackState) RemoveResource(identity string) {
	delete(s.Resources, identity)
}

// Touch bumps the serial and update timestamp before a save.
func (s *StackState) Touch() {
	s.Serial++
	s.UpdatedAt = time.Now().UTC()
}

// ResourceState is the persisted record for one resource instance. Attrs
// holds the confirmed values reported back by the provider, not the desired
// configuration.
type ResourceState struct {
	Identity     string                 `json:"identity"`
	Type         string                 `json:"type"`
	Name         string                 `json:"name"`
	Index        int                    `json:"index"`
	Status       ResourceStatus         `json:"status"`
	StatusReason string                 `json:"status_reason,omitempty"`
	Attrs        map[string]interface{} `json:"attrs"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// StackRef is a lightweight listing entry for a stored stack.
type StackRef struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
