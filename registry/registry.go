package registry

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/vinayprograms/resourcekit/bus"
	"github.com/vinayprograms/resourcekit/drain"
	"github.com/vinayprograms/resourcekit/errors"
	"github.com/vinayprograms/resourcekit/health"
	"github.com/vinayprograms/resourcekit/ledger"
	"github.com/vinayprograms/resourcekit/logging"
	"github.com/vinayprograms/resourcekit/resource"
	"github.com/vinayprograms/resourcekit/state"
	"github.com/vinayprograms/resourcekit/telemetry"
)

// Actor identifies who initiated a mutation. The registry records it and
// never interprets it.
type Actor string

// SystemActor is recorded for transitions the registry makes on its own.
const SystemActor Actor = "system"

// Registry tracks resources for one node.
type Registry struct {
	cfg     Config
	store   state.Store
	ledger  ledger.Ledger
	checker health.Checker
	bus     bus.Publisher
	logger  *logging.Logger
	metrics *Metrics
	tracer  *telemetry.Tracer

	monitor *health.Monitor
	drainer *drain.Coordinator

	entries cmap.ConcurrentMap[string, *entry]

	// names maps resource name to id, including names held by adds in flight.
	namesMu sync.Mutex
	names   map[string]string

	initMu      sync.Mutex
	initialized bool

	watchMu  sync.Mutex
	watchers []chan Event
	stopped  bool
}

// entry is the registry slot for one resource id.
type entry struct {
	// sem serializes health ticks and mutations for this id.
	sem chan struct{}

	// snap is the latest committed state. Snapshots are never modified
	// after they are stored.
	snap atomic.Pointer[resource.Resource]

	// removed is set by teardown. Guarded by sem.
	removed bool

	// drained is set when a non-forced removal tore the entry down.
	drained atomic.Bool
}

func newEntry(r *resource.Resource) *entry {
	e := &entry{sem: make(chan struct{}, 1)}
	e.snap.Store(r)
	return e
}

func (e *entry) lock(ctx context.Context) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) unlock() {
	<-e.sem
}

func (e *entry) load() *resource.Resource {
	return e.snap.Load()
}

// New creates a registry. Zero-valued tunables take their defaults.
func New(cfg Config) (*Registry, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger.WithComponent("registry")
	return &Registry{
		cfg:     cfg,
		store:   cfg.Store,
		ledger:  cfg.Ledger,
		checker: cfg.Checker,
		bus:     cfg.Bus,
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		monitor: health.NewMonitor(cfg.CheckInterval),
		drainer: drain.NewCoordinator(drain.Config{
			Timeout:      cfg.DrainTimeout,
			PollInterval: cfg.DrainPollInterval,
			Idle:         cfg.Idle,
		}),
		entries: cmap.New[*entry](),
		names:   make(map[string]string),
	}, nil
}

// Initialize loads persisted resources and starts monitoring them. Only
// the first successful call does anything.
func (r *Registry) Initialize(ctx context.Context) (err error) {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.initialized {
		return nil
	}
	if r.isStopped() {
		return errors.New(errors.ErrCodeClosed, "registry stopped")
	}

	ctx, span := r.tracer.StartOperationSpan(ctx, "initialize")
	defer func() { r.tracer.EndOperationSpan(span, telemetry.OperationSpanOptions{Actor: string(SystemActor)}, err) }()

	keys, err := r.store.Keys(ctx, r.cfg.KeyPrefix+"*")
	if err != nil {
		return errors.StateBackend(err, "keys")
	}

	var loaded []*resource.Resource
	for _, key := range keys {
		if r.isReservedKey(key) {
			continue
		}
		data, err := r.store.Get(ctx, key)
		if stderrors.Is(err, state.ErrNotFound) {
			continue
		}
		if err != nil {
			return errors.StateBackend(err, "get", errors.WithMetadata("key", key))
		}
		res, err := resource.Unmarshal(data)
		if err != nil {
			r.logger.Warn("corrupt_record_skipped", map[string]interface{}{"key": key, "error": err.Error()})
			continue
		}
		if r.key(res.ID) != key {
			r.logger.Warn("mismatched_record_skipped", map[string]interface{}{"key": key, "id": res.ID})
			continue
		}
		if r.entries.Has(res.ID) {
			r.logger.Debug("registered_record_skipped", map[string]interface{}{"key": key, "id": res.ID})
			continue
		}
		if err := r.reserveName(res.Name, res.ID); err != nil {
			r.logger.Warn("duplicate_name_skipped", map[string]interface{}{"key": key, "name": res.Name})
			continue
		}
		loaded = append(loaded, res)
	}

	if err := r.ledger.RecordChange(ctx, ledger.Change{
		EntityType: ledger.EntityRegistry,
		EntityID:   "resource_registry",
		NewState:   map[string]int{"loaded": len(loaded)},
		Actor:      string(SystemActor),
		Reason:     "resource_registry initialized",
	}); err != nil {
		for _, res := range loaded {
			r.releaseName(res.Name, res.ID)
		}
		return errors.Ledger(err)
	}

	for _, res := range loaded {
		if !r.entries.SetIfAbsent(res.ID, newEntry(res)) {
			continue
		}
		r.monitor.Start(res.ID, r.tick)
	}
	r.initialized = true
	r.logger.Info("initialized", map[string]interface{}{"loaded": len(loaded)})
	return nil
}

// Stop ends every health monitor and closes watch channels. Resources stay
// registered and persisted.
func (r *Registry) Stop() {
	r.monitor.StopAll()
	r.closeWatchers()
}

func (r *Registry) isStopped() bool {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	return r.stopped
}

// key returns the store key for a resource id.
func (r *Registry) key(id string) string {
	return r.cfg.KeyPrefix + id
}

// isReservedKey reports whether key is a sub-key under the prefix, such as
// "resources.:health:<id>", rather than a resource record.
func (r *Registry) isReservedKey(key string) bool {
	rest := strings.TrimPrefix(key, r.cfg.KeyPrefix)
	return rest == "" || strings.ContainsAny(rest, ":.")
}

// --- Name index ---

// reserveName claims name for id. Claiming a name already held by id is a no-op.
func (r *Registry) reserveName(name, id string) error {
	r.namesMu.Lock()
	defer r.namesMu.Unlock()
	if holder, ok := r.names[name]; ok && holder != id {
		return errors.DuplicateName(name)
	}
	r.names[name] = id
	return nil
}

// releaseName frees name if id holds it.
func (r *Registry) releaseName(name, id string) {
	r.namesMu.Lock()
	defer r.namesMu.Unlock()
	if r.names[name] == id {
		delete(r.names, name)
	}
}

func (r *Registry) idForName(name string) (string, bool) {
	r.namesMu.Lock()
	defer r.namesMu.Unlock()
	id, ok := r.names[name]
	return id, ok
}

// --- Commit ---

// commit makes next the committed state of e: store, then ledger, then
// memory. prev is nil for a new resource. A ledger failure reverts the
// store write. Callers hold e's lock and emit the event themselves.
func (r *Registry) commit(ctx context.Context, e *entry, prev, next *resource.Resource, actor Actor, reason string) error {
	data, err := resource.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "encode resource", errors.WithResourceID(next.ID))
	}
	if err := r.store.Set(ctx, r.key(next.ID), data); err != nil {
		return errors.StateBackend(err, "set", errors.WithResourceID(next.ID))
	}

	change := ledger.Change{
		EntityType: ledger.EntityResource,
		EntityID:   next.ID,
		NewState:   next,
		Actor:      string(actor),
		Reason:     reason,
	}
	if prev != nil {
		change.PreviousState = prev
	}
	if err := r.ledger.RecordChange(ctx, change); err != nil {
		r.revert(ctx, next.ID, prev, "commit")
		return errors.Ledger(err, errors.WithResourceID(next.ID))
	}

	if e != nil {
		e.snap.Store(next)
	}
	return nil
}

// revert restores the persisted record of id to prev, or deletes it when
// prev is nil. It runs even if ctx is already canceled.
func (r *Registry) revert(ctx context.Context, id string, prev *resource.Resource, op string) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if prev == nil {
		err = r.store.Delete(ctx, r.key(id))
	} else {
		var data []byte
		if data, err = resource.Marshal(prev); err == nil {
			err = r.store.Set(ctx, r.key(id), data)
		}
	}
	if err != nil {
		r.logger.RollbackFailed(id, op, err)
	}
}
