package registry

import (
	"encoding/json"
	"time"

	"github.com/vinayprograms/resourcekit/resource"
)

// EventType names what happened to a resource. Values double as bus subjects.
type EventType string

const (
	EventAdded   EventType = "resource:added"
	EventRemoved EventType = "resource:removed"
	EventUpdated EventType = "resource:updated"
)

// UpdateKind discriminates resource:updated events.
type UpdateKind string

const (
	KindUpdated       UpdateKind = "updated"
	KindHealthChanged UpdateKind = "health_changed"
	KindStatusChanged UpdateKind = "status_changed"
)

// Event is one committed change. Resource is the state after the change;
// for removals its status is offline. Receivers must not modify it.
type Event struct {
	Type EventType  `json:"event"`
	Kind UpdateKind `json:"type,omitempty"`

	Resource *resource.Resource `json:"resource"`

	// PreviousStatus is set for health_changed and status_changed.
	PreviousStatus resource.Status `json:"previous_status,omitempty"`

	// Changes is set for updated.
	Changes resource.Diff `json:"changes,omitempty"`

	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// Watch returns a channel of registry events. Slow receivers miss events
// rather than block the registry. The channel is closed by Stop.
func (r *Registry) Watch() <-chan Event {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()

	ch := make(chan Event, watchBuffer)
	if r.stopped {
		close(ch)
		return ch
	}
	r.watchers = append(r.watchers, ch)
	return ch
}

const watchBuffer = 64

// emit delivers an event to watchers and the bus. Callers hold the entry
// lock so events for one resource are delivered in commit order.
func (r *Registry) emit(ev Event) {
	ev.Timestamp = time.Now().UTC()
	if r.metrics != nil {
		r.metrics.observeEvent(ev)
	}

	r.watchMu.Lock()
	for _, ch := range r.watchers {
		select {
		case ch <- ev:
		default:
			// Channel full, skip
		}
	}
	r.watchMu.Unlock()

	if r.bus == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn("event_encode_failed", map[string]interface{}{"event": string(ev.Type), "error": err.Error()})
		return
	}
	if err := r.bus.Publish(string(ev.Type), data); err != nil {
		r.logger.Warn("event_publish_failed", map[string]interface{}{"event": string(ev.Type), "error": err.Error()})
	}
}

// closeWatchers closes every watch channel once.
func (r *Registry) closeWatchers() {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	for _, ch := range r.watchers {
		close(ch)
	}
	r.watchers = nil
}
