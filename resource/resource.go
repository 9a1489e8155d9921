package resource

import (
	"fmt"
	"reflect"
	"time"

	"github.com/vinayprograms/resourcekit/errors"
)

// MaxHealthHistory caps the number of health results kept per resource.
const MaxHealthHistory = 100

// Type is the kind of resource.
type Type string

const (
	TypeWorker  Type = "worker"
	TypeStorage Type = "storage"
	TypeCache   Type = "cache"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeWorker, TypeStorage, TypeCache:
		return true
	}
	return false
}

// Types lists every known type.
func Types() []Type {
	return []Type{TypeWorker, TypeStorage, TypeCache}
}

// Status is the lifecycle state of a resource.
type Status string

const (
	StatusOnline    Status = "online"
	StatusDraining  Status = "draining"
	StatusUnhealthy Status = "unhealthy"
	StatusOffline   Status = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusDraining, StatusUnhealthy, StatusOffline:
		return true
	}
	return false
}

// Statuses lists every known status.
func Statuses() []Status {
	return []Status{StatusOnline, StatusDraining, StatusUnhealthy, StatusOffline}
}

// Definition is the caller-supplied description of a resource.
type Definition struct {
	// Name is unique across all registered resources.
	Name string `json:"name"`

	Type Type `json:"type"`

	// Address is the connection string in host:port form.
	Address string `json:"address"`

	CPUCores int     `json:"cpu_cores,omitempty"`
	MemoryGB float64 `json:"memory_gb,omitempty"`

	// Labels are exact-match query tags.
	Labels map[string]string `json:"labels,omitempty"`

	// Capabilities describe per-type features, e.g. "formats": ["parquet", "csv"].
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// HealthCheckResult is a single point-in-time probe outcome.
type HealthCheckResult struct {
	Timestamp time.Time `json:"timestamp"`
	Healthy   bool      `json:"healthy"`
	LatencyMS float64   `json:"latency_ms"`
	Reason    string    `json:"reason,omitempty"`
}

// Resource is a registered resource.
type Resource struct {
	ID string `json:"id"`
	Definition

	Status    Status     `json:"status"`
	AddedAt   time.Time  `json:"added_at"`
	AddedBy   string     `json:"added_by"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// HealthHistory holds the most recent results, oldest first.
	HealthHistory []HealthCheckResult `json:"health_history,omitempty"`
}

// IsWorker reports whether the resource is a compute worker.
func (r *Resource) IsWorker() bool {
	return r.Type == TypeWorker
}

// IsAvailable reports whether the resource is an online worker.
func (r *Resource) IsAvailable() bool {
	return r.IsWorker() && r.Status == StatusOnline
}

// HasLabel reports whether the label key is set to value.
func (r *Resource) HasLabel(key, value string) bool {
	v, ok := r.Labels[key]
	return ok && v == value
}

// HasCapability reports whether the capability is present. A nil value
// matches on presence alone; otherwise the capability must equal value, or
// contain it when the capability is a list.
func (r *Resource) HasCapability(name string, value any) bool {
	have, ok := r.Capabilities[name]
	if !ok {
		return false
	}
	if value == nil {
		return true
	}
	switch list := have.(type) {
	case []any:
		for _, item := range list {
			if sameValue(item, value) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range list {
			if sameValue(item, value) {
				return true
			}
		}
		return false
	}
	return sameValue(have, value)
}

// sameValue compares scalars by their printed form so that an int and the
// float64 it decodes to from JSON compare equal.
func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// RecordHealth appends a result, evicting the oldest beyond MaxHealthHistory.
func (r *Resource) RecordHealth(result HealthCheckResult) {
	r.HealthHistory = append(r.HealthHistory, result)
	if over := len(r.HealthHistory) - MaxHealthHistory; over > 0 {
		r.HealthHistory = append(r.HealthHistory[:0:0], r.HealthHistory[over:]...)
	}
}

// LastHealth returns the most recent result, if any.
func (r *Resource) LastHealth() (HealthCheckResult, bool) {
	if len(r.HealthHistory) == 0 {
		return HealthCheckResult{}, false
	}
	return r.HealthHistory[len(r.HealthHistory)-1], true
}

// Clone returns a deep copy.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	c := *r
	c.Definition = r.Definition.Clone()
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		c.UpdatedAt = &t
	}
	if r.HealthHistory != nil {
		c.HealthHistory = make([]HealthCheckResult, len(r.HealthHistory))
		copy(c.HealthHistory, r.HealthHistory)
	}
	return &c
}

// Clone returns a deep copy.
func (d Definition) Clone() Definition {
	c := d
	if d.Labels != nil {
		c.Labels = make(map[string]string, len(d.Labels))
		for k, v := range d.Labels {
			c.Labels[k] = v
		}
	}
	if d.Capabilities != nil {
		c.Capabilities = make(map[string]any, len(d.Capabilities))
		for k, v := range d.Capabilities {
			c.Capabilities[k] = cloneValue(v)
		}
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Validate checks the required fields of a definition.
func Validate(def Definition) error {
	if def.Name == "" {
		return errors.Validation("name", "must not be empty")
	}
	if !def.Type.Valid() {
		return errors.Validation("type", fmt.Sprintf("%q is not one of worker, storage, cache", def.Type))
	}
	if def.Address == "" {
		return errors.Validation("address", "must not be empty")
	}
	if def.CPUCores < 0 {
		return errors.Validation("cpu_cores", "must not be negative")
	}
	if def.MemoryGB < 0 {
		return errors.Validation("memory_gb", "must not be negative")
	}
	return nil
}
