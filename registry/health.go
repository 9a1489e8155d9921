package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/resourcekit/health"
	"github.com/vinayprograms/resourcekit/resource"
	"github.com/vinayprograms/resourcekit/telemetry"
)

// probe runs one health check for res.
func (r *Registry) probe(ctx context.Context, res *resource.Resource) resource.HealthCheckResult {
	ctx, span := r.tracer.StartProbeSpan(ctx, res.ID)
	result := r.checker.Check(ctx, res.Definition)
	r.tracer.EndProbeSpan(span, telemetry.ProbeSpanOptions{
		ResourceID: res.ID,
		Healthy:    result.Healthy,
		LatencyMS:  result.LatencyMS,
		Reason:     result.Reason,
		Address:    res.Address,
	})

	if r.metrics != nil {
		r.metrics.observeCheck(res.Type, result)
	}
	r.logger.HealthCheck(res.ID, result.Healthy, time.Duration(result.LatencyMS*float64(time.Millisecond)), result.Reason)
	return result
}

// tick is the monitor callback for one resource. Probe failures are never
// returned to anyone; they only surface as status transitions.
func (r *Registry) tick(ctx context.Context, id string) {
	e, ok := r.entries.Get(id)
	if !ok {
		return
	}

	probed := e.load()
	result := r.probe(ctx, probed)
	if ctx.Err() != nil {
		return
	}

	if err := e.lock(ctx); err != nil {
		return
	}
	defer e.unlock()

	if e.removed || !r.monitor.Active(id) {
		return
	}

	prev := e.load()
	if prev.Address != probed.Address {
		// Moved while the probe ran; the next tick checks the new address.
		return
	}
	next := prev.Clone()
	next.RecordHealth(result)

	status, changed := health.Evaluate(next.HealthHistory, next.Status, r.cfg.UnhealthyThreshold)
	if !changed {
		r.persistHistory(ctx, e, next)
		return
	}

	next.Status = status
	reason := fmt.Sprintf("health: %s -> %s", prev.Status, status)
	if err := r.commit(ctx, e, prev, next, SystemActor, reason); err != nil {
		// The window is re-evaluated on the next tick.
		r.logger.Warn("health_transition_failed", map[string]interface{}{
			"id":    id,
			"to":    string(status),
			"error": err.Error(),
		})
		return
	}

	if r.metrics != nil {
		r.metrics.observeTransition(prev.Status, status)
	}
	r.logger.StatusChanged(id, string(prev.Status), string(status), string(SystemActor))
	r.emit(Event{
		Type:           EventUpdated,
		Kind:           KindHealthChanged,
		Resource:       next,
		PreviousStatus: prev.Status,
		Actor:          SystemActor,
	})
}

// persistHistory saves a probe that did not change status. It is not a
// ledgered mutation; on a store failure the result is dropped so memory
// never runs ahead of the store.
func (r *Registry) persistHistory(ctx context.Context, e *entry, next *resource.Resource) {
	data, err := resource.Marshal(next)
	if err == nil {
		err = r.store.Set(ctx, r.key(next.ID), data)
	}
	if err != nil {
		r.logger.Warn("health_history_not_saved", map[string]interface{}{
			"id":    next.ID,
			"error": err.Error(),
		})
		return
	}
	e.snap.Store(next)
}
