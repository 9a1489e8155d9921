// Package registry is the hot-swappable resource registry.
//
// A Registry holds the compute, storage and cache resources known to a
// node. Resources are added and removed at runtime without a restart: each
// one is probed on its own schedule, moves between online and unhealthy as
// its trailing health window dictates, and is drained before removal.
//
// # Basic Usage
//
//	reg, err := registry.New(registry.Config{
//	    Store:  state.NewMemoryStore(),
//	    Ledger: ledger.NewMemoryLedger(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer reg.Stop()
//
//	if err := reg.Initialize(ctx); err != nil {
//	    return err
//	}
//
//	w1, err := reg.AddResource(ctx, resource.Definition{
//	    Name:    "w1",
//	    Type:    resource.TypeWorker,
//	    Address: "10.0.0.7:9000",
//	}, "alice")
//
// Swap it out:
//
//	err = reg.RemoveResource(ctx, w1.ID, "alice", false)
//	if errors.Is(err, errors.ErrCodeDrainTimeout) {
//	    // still draining; retry or force
//	}
//
// # Commit Order
//
// Every mutation writes the state backend, then the ledger, then swaps the
// in-memory snapshot, then emits an event. A ledger failure reverts the
// state write. A failed mutation leaves memory and persisted state as they
// were and returns the error to the caller.
//
// # Events
//
// Watch returns a channel of Events. When Config.Bus is set the same events
// are published as JSON on subjects named after the event type, e.g.
// "resource:added".
//
// # Concurrency
//
// Operations on one resource id are serialized; operations on different
// ids run in parallel. Queries read the latest committed snapshot without
// I/O.
package registry
