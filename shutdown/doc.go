// Package shutdown orders the teardown of a registry node.
//
// Handlers are registered with a phase; lower phases run first and
// handlers sharing a phase run concurrently. resourced registers:
//
//   - PhaseRegistry: stop health monitors
//   - PhaseEvents: close the event bus and journal
//   - PhaseBackends: close the ledger and state backend
//   - PhaseTelemetry: flush spans
//
// Usage:
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.RegisterFuncWithPhase("registry", func(ctx context.Context) error {
//	    reg.Stop()
//	    return nil
//	}, shutdown.PhaseRegistry)
//	coord.HandleSignals()
//	<-coord.Done()
//
// Stopping the registry never removes resources or touches persisted state;
// the next node to start reloads them.
package shutdown
