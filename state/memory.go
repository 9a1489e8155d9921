package state

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryStore implements Store using in-memory storage.
// Useful for testing and single-process scenarios.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed atomic.Bool
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a value.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Keys returns all keys matching a pattern, sorted.
func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if MatchPattern(pattern, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close shuts down the store.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *MemoryStore) check(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}
