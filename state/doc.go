// Package state provides the durable key-value backends the registry
// persists resources to.
//
// The Store interface is deliberately narrow: Get, Set, Delete and prefix
// Keys listing. Four backends implement it:
//
//   - MemoryStore: in-process map, for tests and single-node setups
//   - NATSStore: NATS JetStream KV bucket
//   - EtcdStore: etcd v3 under a key namespace
//   - RedisStore: plain string keys with SCAN-based listing
//
// # Usage
//
//	conn, _ := nats.Connect(nats.DefaultURL)
//	store, _ := state.NewNATSStore(ctx, state.NATSStoreConfig{
//	    Conn:   conn,
//	    Bucket: "resources",
//	})
//	defer store.Close()
//
//	_ = store.Set(ctx, "resources.0f8fad5b", data)
//	keys, _ := store.Keys(ctx, "resources.*")
//
// Keys must satisfy ValidateKey on every backend so that a registry can move
// between backends without renaming its records.
package state
