package state

import (
	"context"
	"errors"
	"strings"
)

// Common errors.
var (
	ErrNotFound   = errors.New("key not found")
	ErrClosed     = errors.New("store closed")
	ErrInvalidKey = errors.New("invalid key")
)

// Store is the persistence contract consumed by the registry.
type Store interface {
	// Get retrieves a value by key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value, replacing any previous one.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key.
	// Returns nil if the key does not exist.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys matching a pattern.
	// Pattern supports * wildcard at the end (e.g., "resources.*").
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases the backend.
	Close() error
}

// ValidateKey checks if a key is valid.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, " \t\r\n*>") {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") {
		return ErrInvalidKey
	}
	if len(key) > 1024 {
		return ErrInvalidKey
	}
	return nil
}

// MatchPattern checks if a key matches a pattern.
// Supports * wildcard at the end (e.g., "resources.*" matches "resources.abc").
func MatchPattern(pattern, key string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == key
}

// patternPrefix returns the literal prefix of a trailing-wildcard pattern
// and whether the pattern had a wildcard.
func patternPrefix(pattern string) (string, bool) {
	if strings.HasSuffix(pattern, "*") {
		return strings.TrimSuffix(pattern, "*"), true
	}
	return pattern, false
}
