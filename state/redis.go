package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis string keys.
type RedisStore struct {
	client    redis.Cmdable
	namespace string
	scanCount int64
	closer    func() error
	closed    atomic.Bool
}

// RedisStoreConfig holds Redis store configuration.
type RedisStoreConfig struct {
	// Client is an existing client. When nil, one is created from Addr.
	Client redis.Cmdable

	Addr     string
	Password string
	DB       int

	// Namespace is prepended to every key. Default: "resourcekit:"
	Namespace string

	// ScanCount is the COUNT hint for SCAN. Default: 256
	ScanCount int64
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	ns := strings.TrimSpace(cfg.Namespace)
	if ns == "" {
		ns = "resourcekit:"
	}

	if cfg.ScanCount <= 0 {
		cfg.ScanCount = 256
	}

	s := &RedisStore{client: cfg.Client, namespace: ns, scanCount: cfg.ScanCount}
	if s.client == nil {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis address required")
		}
		c := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		s.client, s.closer = c, c.Close
	}
	return s, nil
}

// Get retrieves a value by key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.namespace+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, nil
}

// Set stores a value without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.check(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.namespace+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.namespace+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Keys returns all keys matching a pattern, sorted. Listing uses SCAN so it
// never blocks the server the way KEYS does.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	prefix, wildcard := patternPrefix(pattern)
	match := s.namespace + escapeGlob(prefix)
	if wildcard {
		match += "*"
	}

	seen := make(map[string]struct{})
	iter := s.client.Scan(ctx, 0, match, s.scanCount).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), s.namespace)
		if MatchPattern(pattern, key) {
			seen[key] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}

	// SCAN may return a key more than once.
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the client if the store created it.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) || s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *RedisStore) check(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `?`, `\?`, `[`, `\[`, `]`, `\]`, `*`, `\*`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
