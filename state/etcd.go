package state

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore implements Store on etcd v3. Keys are stored under Namespace so
// several registries can share one cluster.
type EtcdStore struct {
	client    *clientv3.Client
	namespace string
	owned     bool
	closed    atomic.Bool
}

// EtcdStoreConfig holds etcd store configuration.
type EtcdStoreConfig struct {
	// Client is an existing client. When nil, one is dialed from Endpoints
	// and closed with the store.
	Client *clientv3.Client

	Endpoints   []string
	DialTimeout time.Duration

	// Namespace is prepended to every key. Default: "/resourcekit/"
	Namespace string
}

// NewEtcdStore creates an etcd-backed store.
func NewEtcdStore(cfg EtcdStoreConfig) (*EtcdStore, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "/resourcekit/"
	}
	if !strings.HasSuffix(cfg.Namespace, "/") {
		cfg.Namespace += "/"
	}

	client, owned := cfg.Client, false
	if client == nil {
		if len(cfg.Endpoints) == 0 {
			return nil, fmt.Errorf("etcd endpoints required")
		}
		if cfg.DialTimeout <= 0 {
			cfg.DialTimeout = 5 * time.Second
		}
		c, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Endpoints,
			DialTimeout: cfg.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("etcd dial: %w", err)
		}
		client, owned = c, true
	}

	return &EtcdStore{client: client, namespace: cfg.Namespace, owned: owned}, nil
}

// Get retrieves a value by key.
func (s *EtcdStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	resp, err := s.client.Get(ctx, s.namespace+key)
	if err != nil {
		return nil, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

// Set stores a value.
func (s *EtcdStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.check(key); err != nil {
		return err
	}
	if _, err := s.client.Put(ctx, s.namespace+key, string(value)); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (s *EtcdStore) Delete(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if _, err := s.client.Delete(ctx, s.namespace+key); err != nil {
		return fmt.Errorf("etcd delete %s: %w", key, err)
	}
	return nil
}

// Keys returns all keys matching a pattern, in etcd's lexical order.
func (s *EtcdStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	prefix, wildcard := patternPrefix(pattern)
	opts := []clientv3.OpOption{clientv3.WithKeysOnly()}
	if wildcard {
		opts = append(opts, clientv3.WithPrefix())
	}

	resp, err := s.client.Get(ctx, s.namespace+prefix, opts...)
	if err != nil {
		return nil, fmt.Errorf("etcd list %s: %w", pattern, err)
	}

	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, strings.TrimPrefix(string(kv.Key), s.namespace))
	}
	return keys, nil
}

// Close closes the client if the store dialed it.
func (s *EtcdStore) Close() error {
	if s.closed.Swap(true) || !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *EtcdStore) check(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}
