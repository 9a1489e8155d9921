package resource

import (
	"encoding/json"
	"fmt"

	"github.com/vinayprograms/resourcekit/errors"
)

// Marshal encodes a resource for the state backend.
func Marshal(r *Resource) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal resource %s: %w", r.ID, err)
	}
	return data, nil
}

// Unmarshal decodes a resource written by Marshal. Timestamps come back as
// time.Time values in UTC.
func Unmarshal(data []byte) (*Resource, error) {
	var r Resource
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal resource: %w", err)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("unmarshal resource: missing id")
	}
	if !r.Status.Valid() {
		return nil, fmt.Errorf("unmarshal resource %s: unknown status %q", r.ID, r.Status)
	}
	r.AddedAt = r.AddedAt.UTC()
	if r.UpdatedAt != nil {
		t := r.UpdatedAt.UTC()
		r.UpdatedAt = &t
	}
	return &r, nil
}

// Normalize returns a copy of d in the shape it has after a Marshal and
// Unmarshal round trip. Capability values become JSON types ([]any,
// float64, map[string]any) and empty maps become nil, so a definition held
// in memory compares equal to the one reloaded from the store.
func (d Definition) Normalize() (Definition, error) {
	c := d.Clone()
	if len(c.Labels) == 0 {
		c.Labels = nil
	}
	caps, err := NormalizeCapabilities(c.Capabilities)
	if err != nil {
		return Definition{}, err
	}
	c.Capabilities = caps
	return c, nil
}

// NormalizeCapabilities converts capability values to their JSON shape.
// An empty map normalizes to nil.
func NormalizeCapabilities(caps map[string]any) (map[string]any, error) {
	if len(caps) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(caps)
	if err != nil {
		return nil, errors.Validation("capabilities", "must be JSON-encodable: "+err.Error())
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Validation("capabilities", err.Error())
	}
	return out, nil
}
