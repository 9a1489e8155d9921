package registry

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/resourcekit/drain"
	"github.com/vinayprograms/resourcekit/errors"
	"github.com/vinayprograms/resourcekit/ledger"
	"github.com/vinayprograms/resourcekit/resource"
	"github.com/vinayprograms/resourcekit/telemetry"
)

// AddResource validates def, probes it once and registers it online.
func (r *Registry) AddResource(ctx context.Context, def resource.Definition, actor Actor) (_ *resource.Resource, err error) {
	ctx, span := r.tracer.StartOperationSpan(ctx, "add")
	opts := telemetry.OperationSpanOptions{
		Name:    def.Name,
		Type:    string(def.Type),
		Actor:   string(actor),
		Address: def.Address,
		Labels:  def.Labels,
	}
	defer func() {
		r.tracer.EndOperationSpan(span, opts, err)
		r.observeOp("add", err)
	}()

	if r.isStopped() {
		return nil, errors.New(errors.ErrCodeClosed, "registry stopped")
	}
	if err := resource.Validate(def); err != nil {
		return nil, err
	}
	if def, err = def.Normalize(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	opts.ResourceID = id
	if err := r.reserveName(def.Name, id); err != nil {
		return nil, err
	}
	registered := false
	defer func() {
		if !registered {
			r.releaseName(def.Name, id)
		}
	}()

	res := &resource.Resource{
		ID:         id,
		Definition: def,
		Status:     resource.StatusOnline,
		AddedBy:    string(actor),
	}

	result := r.probe(ctx, res)
	if !result.Healthy {
		return nil, errors.Unhealthy(def.Name, result.Reason)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled(err)
	}

	res.AddedAt = time.Now().UTC()
	res.RecordHealth(result)

	e := newEntry(res)
	if err := r.commit(ctx, nil, nil, res, actor, "resource added"); err != nil {
		return nil, err
	}

	// The entry is published locked so a first tick cannot overtake the
	// added event.
	e.sem <- struct{}{}
	r.entries.Set(id, e)
	registered = true
	r.monitor.Start(id, r.tick)

	r.logger.ResourceAdded(id, def.Name, string(def.Type), string(actor))
	r.emit(Event{Type: EventAdded, Resource: res, Actor: actor})
	e.unlock()

	return res.Clone(), nil
}

// UpdateResource merges the provided fields into the resource. A payload
// that changes nothing is still committed and recorded.
func (r *Registry) UpdateResource(ctx context.Context, id string, update resource.Update, actor Actor) (_ *resource.Resource, err error) {
	ctx, span := r.tracer.StartOperationSpan(ctx, "update")
	opts := telemetry.OperationSpanOptions{ResourceID: id, Actor: string(actor)}
	defer func() {
		r.tracer.EndOperationSpan(span, opts, err)
		r.observeOp("update", err)
	}()

	e, err := r.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.unlock()

	if err := update.Validate(); err != nil {
		return nil, err
	}
	if update, err = update.Normalize(); err != nil {
		return nil, err
	}

	prev := e.load()
	next := prev.Clone()
	diff := update.Apply(next)
	now := time.Now().UTC()
	next.UpdatedAt = &now
	opts.Name = next.Name

	renamed := next.Name != prev.Name
	if renamed {
		if err := r.reserveName(next.Name, id); err != nil {
			return nil, err
		}
	}

	if err := r.commit(ctx, e, prev, next, actor, "resource updated"); err != nil {
		if renamed {
			r.releaseName(next.Name, id)
		}
		return nil, err
	}
	if renamed {
		r.releaseName(prev.Name, id)
	}

	r.logger.Info("resource_updated", map[string]interface{}{
		"id":      id,
		"changed": len(diff),
		"actor":   string(actor),
	})
	r.emit(Event{Type: EventUpdated, Kind: KindUpdated, Resource: next, Changes: diff, Actor: actor})
	return next.Clone(), nil
}

// DrainResource stops the resource from taking new work. Draining an
// already draining resource is a no-op.
func (r *Registry) DrainResource(ctx context.Context, id string, actor Actor) (_ *resource.Resource, err error) {
	ctx, span := r.tracer.StartOperationSpan(ctx, "drain")
	opts := telemetry.OperationSpanOptions{ResourceID: id, Actor: string(actor), ToStatus: string(resource.StatusDraining)}
	defer func() {
		r.tracer.EndOperationSpan(span, opts, err)
		r.observeOp("drain", err)
	}()

	res, from, err := r.setStatus(ctx, id, resource.StatusDraining, actor, "drain")
	opts.FromStatus = string(from)
	return res, err
}

// ResumeResource returns a draining resource to online.
func (r *Registry) ResumeResource(ctx context.Context, id string, actor Actor) (_ *resource.Resource, err error) {
	ctx, span := r.tracer.StartOperationSpan(ctx, "resume")
	opts := telemetry.OperationSpanOptions{ResourceID: id, Actor: string(actor), ToStatus: string(resource.StatusOnline)}
	defer func() {
		r.tracer.EndOperationSpan(span, opts, err)
		r.observeOp("resume", err)
	}()

	res, from, err := r.setStatus(ctx, id, resource.StatusOnline, actor, "resume")
	opts.FromStatus = string(from)
	return res, err
}

// setStatus applies an operator status change. It returns the status the
// resource had before the call.
func (r *Registry) setStatus(ctx context.Context, id string, to resource.Status, actor Actor, op string) (*resource.Resource, resource.Status, error) {
	e, err := r.acquire(ctx, id)
	if err != nil {
		return nil, "", err
	}
	defer e.unlock()

	prev := e.load()
	from := prev.Status

	switch {
	case to == resource.StatusDraining && from == resource.StatusDraining:
		return prev.Clone(), from, nil
	case to == resource.StatusOnline && from != resource.StatusDraining:
		return nil, from, errors.InvalidState(id, string(from), op)
	case !resource.CanTransition(from, to):
		return nil, from, errors.InvalidState(id, string(from), op)
	}

	next := prev.Clone()
	next.Status = to
	if err := r.commit(ctx, e, prev, next, actor, "status changed to "+string(to)); err != nil {
		return nil, from, err
	}

	if r.metrics != nil {
		r.metrics.observeTransition(from, to)
	}
	r.logger.StatusChanged(id, string(from), string(to), string(actor))
	r.emit(Event{
		Type:           EventUpdated,
		Kind:           KindStatusChanged,
		Resource:       next,
		PreviousStatus: from,
		Actor:          actor,
	})
	return next.Clone(), from, nil
}

// RemoveResource deregisters a resource. Unless force is set the resource
// is drained first and removal waits, up to the drain timeout, for its work
// to finish. On timeout the resource stays draining and a DRAIN_TIMEOUT
// error is returned. Concurrent removals of one resource share a single
// wait and a single teardown.
func (r *Registry) RemoveResource(ctx context.Context, id string, actor Actor, force bool) (err error) {
	ctx, span := r.tracer.StartOperationSpan(ctx, "remove")
	opts := telemetry.OperationSpanOptions{ResourceID: id, Actor: string(actor), Force: force, ToStatus: string(resource.StatusOffline)}
	defer func() {
		r.tracer.EndOperationSpan(span, opts, err)
		r.observeOp("remove", err)
	}()

	if force {
		return r.teardown(ctx, id, actor, true)
	}

	e, ok := r.entries.Get(id)
	if !ok {
		return errors.NotFound(id)
	}

	err = r.drainer.Run(ctx, id,
		func(ctx context.Context) error {
			if _, _, err := r.setStatus(ctx, id, resource.StatusDraining, actor, "remove"); err != nil {
				return err
			}
			r.logger.DrainStarted(id, r.drainer.Timeout())
			return nil
		},
		func(ctx context.Context) error {
			return r.teardown(ctx, id, actor, false)
		},
	)
	switch {
	case err == nil:
		return nil
	case e.drained.Load():
		// A removal this call overlapped finished first.
		return nil
	case stderrors.Is(err, drain.ErrTimeout):
		if r.metrics != nil {
			r.metrics.drainTimeouts.Inc()
		}
		r.logger.DrainTimeout(id, r.drainer.Timeout())
		return errors.DrainTimeout(id, r.drainer.Timeout(), errors.WithCause(err))
	default:
		return errors.Wrap(err, "remove resource", errors.WithResourceID(id))
	}
}

// teardown removes a resource: stop its monitor, delete the record, record
// the removal, then drop it from memory. Unless forced the resource must
// still be draining.
func (r *Registry) teardown(ctx context.Context, id string, actor Actor, force bool) error {
	e, err := r.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer e.unlock()

	prev := e.load()
	if !force && prev.Status != resource.StatusDraining {
		return errors.InvalidState(id, string(prev.Status), "remove")
	}

	wasMonitored := r.monitor.Stop(id)
	restart := func() {
		if wasMonitored {
			r.monitor.Start(id, r.tick)
		}
	}

	if err := r.store.Delete(ctx, r.key(id)); err != nil {
		restart()
		return errors.StateBackend(err, "delete", errors.WithResourceID(id))
	}
	if err := r.ledger.RecordChange(ctx, ledger.Change{
		EntityType:    ledger.EntityResource,
		EntityID:      id,
		PreviousState: prev,
		Actor:         string(actor),
		Reason:        "resource removed",
	}); err != nil {
		r.revert(ctx, id, prev, "remove")
		restart()
		return errors.Ledger(err, errors.WithResourceID(id))
	}

	final := prev.Clone()
	final.Status = resource.StatusOffline
	e.removed = true
	e.drained.Store(!force)
	e.snap.Store(final)
	r.entries.Remove(id)
	r.releaseName(prev.Name, id)

	if r.metrics != nil {
		r.metrics.observeTransition(prev.Status, resource.StatusOffline)
	}
	r.logger.ResourceRemoved(id, prev.Name, string(actor), force)
	r.emit(Event{Type: EventRemoved, Resource: final, PreviousStatus: prev.Status, Actor: actor})
	return nil
}

// acquire returns the locked entry for id.
func (r *Registry) acquire(ctx context.Context, id string) (*entry, error) {
	e, ok := r.entries.Get(id)
	if !ok {
		return nil, errors.NotFound(id)
	}
	if err := e.lock(ctx); err != nil {
		return nil, errors.Canceled(err)
	}
	if e.removed {
		e.unlock()
		return nil, errors.NotFound(id)
	}
	return e, nil
}

func (r *Registry) observeOp(op string, err error) {
	if r.metrics != nil {
		r.metrics.observeOperation(op, err)
	}
}
