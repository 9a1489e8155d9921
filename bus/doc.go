// Package bus carries registry events to subscribers outside the process.
//
// The registry publishes one JSON message per transition on the subjects
// "resource:added", "resource:removed" and "resource:updated". Dashboards and
// schedulers subscribe through any MessageBus:
//
//	b, _ := bus.NewNATSBus(bus.NATSConfig{URL: "nats://localhost:4222"})
//	sub, _ := b.Subscribe("resource:updated")
//	for msg := range sub.Messages() {
//	    // decode registry.Event from msg.Data
//	}
//
// MemoryBus delivers in-process and is meant for tests and single-node use.
package bus
