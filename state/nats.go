package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore implements Store using a NATS JetStream KV bucket.
type NATSStore struct {
	kv     jetstream.KeyValue
	config NATSStoreConfig
	closed atomic.Bool
}

// NATSStoreConfig holds NATS KV store configuration.
type NATSStoreConfig struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Bucket is the KV bucket name.
	Bucket string

	// Replicas is the bucket replication factor.
	// Default: 1
	Replicas int

	// History is the number of revisions to keep per key.
	// Default: 1
	History int

	// MaxValueSize is the maximum value size in bytes.
	// Default: 1MB
	MaxValueSize int32

	// OpTimeout bounds each KV call when the caller's context has no deadline.
	// Default: 5s
	OpTimeout time.Duration
}

// DefaultNATSStoreConfig returns configuration with sensible defaults.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		Bucket:       "resources",
		Replicas:     1,
		History:      1,
		MaxValueSize: 1024 * 1024,
		OpTimeout:    5 * time.Second,
	}
}

func (c *NATSStoreConfig) applyDefaults() {
	def := DefaultNATSStoreConfig()
	if c.Bucket == "" {
		c.Bucket = def.Bucket
	}
	if c.Replicas <= 0 {
		c.Replicas = def.Replicas
	}
	if c.History <= 0 {
		c.History = def.History
	}
	if c.MaxValueSize <= 0 {
		c.MaxValueSize = def.MaxValueSize
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = def.OpTimeout
	}
}

// NewNATSStore binds to (creating if needed) a JetStream KV bucket.
func NewNATSStore(ctx context.Context, cfg NATSStoreConfig) (*NATSStore, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	cfg.applyDefaults()

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       cfg.Bucket,
		Description:  "resource registry records",
		History:      uint8(cfg.History),
		MaxValueSize: cfg.MaxValueSize,
		Replicas:     cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", cfg.Bucket, err)
	}

	return &NATSStore{kv: kv, config: cfg}, nil
}

// opContext applies OpTimeout unless ctx already carries a deadline.
func (s *NATSStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.OpTimeout)
}

// Get retrieves a value by key.
func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Set stores a value.
func (s *NATSStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Keys returns all live keys matching a pattern, sorted.
func (s *NATSStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	defer lister.Stop()

	var keys []string
	for key := range lister.Keys() {
		if MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Bucket returns the KV bucket name.
func (s *NATSStore) Bucket() string {
	return s.config.Bucket
}

// Close marks the store closed. The NATS connection belongs to the caller.
func (s *NATSStore) Close() error {
	s.closed.Store(true)
	return nil
}
