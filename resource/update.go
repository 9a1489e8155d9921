package resource

import (
	"reflect"

	"github.com/vinayprograms/resourcekit/errors"
)

// Update is a partial update. Nil fields keep their current value. Identity,
// status and provenance fields have no counterpart here and so cannot be
// changed through an update.
type Update struct {
	Name         *string           `json:"name,omitempty"`
	Type         *Type             `json:"type,omitempty"`
	Address      *string           `json:"address,omitempty"`
	CPUCores     *int              `json:"cpu_cores,omitempty"`
	MemoryGB     *float64          `json:"memory_gb,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	Capabilities map[string]any    `json:"capabilities,omitempty"`
}

// FieldChange records one changed field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff maps JSON field names to their changes.
type Diff map[string]FieldChange

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d) == 0
}

// Validate checks the fields present in the update.
func (u Update) Validate() error {
	if u.Name != nil && *u.Name == "" {
		return errors.Validation("name", "must not be empty")
	}
	if u.Type != nil && !u.Type.Valid() {
		return errors.Validation("type", "unknown type "+string(*u.Type))
	}
	if u.Address != nil && *u.Address == "" {
		return errors.Validation("address", "must not be empty")
	}
	if u.CPUCores != nil && *u.CPUCores < 0 {
		return errors.Validation("cpu_cores", "must not be negative")
	}
	if u.MemoryGB != nil && *u.MemoryGB < 0 {
		return errors.Validation("memory_gb", "must not be negative")
	}
	return nil
}

// Normalize returns a copy of u whose capabilities are in their JSON shape,
// matching what Definition.Normalize produces.
func (u Update) Normalize() (Update, error) {
	if u.Capabilities == nil {
		return u, nil
	}
	caps, err := NormalizeCapabilities(u.Capabilities)
	if err != nil {
		return Update{}, err
	}
	if caps == nil {
		caps = map[string]any{}
	}
	u.Capabilities = caps
	return u, nil
}

// Apply merges the update into r's definition and returns what changed.
// Labels and Capabilities replace the whole map when non-nil; an empty map
// clears them.
func (u Update) Apply(r *Resource) Diff {
	diff := Diff{}
	if u.Name != nil && *u.Name != r.Name {
		diff["name"] = FieldChange{Old: r.Name, New: *u.Name}
		r.Name = *u.Name
	}
	if u.Type != nil && *u.Type != r.Type {
		diff["type"] = FieldChange{Old: r.Type, New: *u.Type}
		r.Type = *u.Type
	}
	if u.Address != nil && *u.Address != r.Address {
		diff["address"] = FieldChange{Old: r.Address, New: *u.Address}
		r.Address = *u.Address
	}
	if u.CPUCores != nil && *u.CPUCores != r.CPUCores {
		diff["cpu_cores"] = FieldChange{Old: r.CPUCores, New: *u.CPUCores}
		r.CPUCores = *u.CPUCores
	}
	if u.MemoryGB != nil && *u.MemoryGB != r.MemoryGB {
		diff["memory_gb"] = FieldChange{Old: r.MemoryGB, New: *u.MemoryGB}
		r.MemoryGB = *u.MemoryGB
	}
	if u.Labels != nil {
		next := Definition{Labels: u.Labels}.Clone().Labels
		if len(next) == 0 {
			next = nil
		}
		if !reflect.DeepEqual(next, r.Labels) {
			diff["labels"] = FieldChange{Old: r.Labels, New: next}
			r.Labels = next
		}
	}
	if u.Capabilities != nil {
		next := Definition{Capabilities: u.Capabilities}.Clone().Capabilities
		if len(next) == 0 {
			next = nil
		}
		if !reflect.DeepEqual(next, r.Capabilities) {
			diff["capabilities"] = FieldChange{Old: r.Capabilities, New: next}
			r.Capabilities = next
		}
	}
	return diff
}
