package state

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"resources.0f8fad5b-d9cb", nil},
		{"resources.health.abc", nil},
		{"", ErrInvalidKey},
		{"has space", ErrInvalidKey},
		{".leading", ErrInvalidKey},
		{"trailing.", ErrInvalidKey},
		{"wild*", ErrInvalidKey},
		{strings.Repeat("k", 1025), ErrInvalidKey},
	}
	for _, tt := range tests {
		if got := ValidateKey(tt.key); got != tt.want {
			t.Errorf("ValidateKey(%.20q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, key string
		want         bool
	}{
		{"*", "anything", true},
		{"resources.*", "resources.abc", true},
		{"resources.*", "resources.", true},
		{"resources.*", "other.abc", false},
		{"resources.abc", "resources.abc", true},
		{"resources.abc", "resources.abcd", false},
	}
	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.key); got != tt.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
		}
	}
}

// testStore runs the behavior every backend must share.
func testStore(t *testing.T, s Store, prefix string) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		if _, err := s.Get(ctx, prefix+"missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("set get overwrite", func(t *testing.T) {
		key := prefix + "a"
		if err := s.Set(ctx, key, []byte("one")); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		if err := s.Set(ctx, key, []byte("two")); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if string(got) != "two" {
			t.Errorf("Get = %q, want two", got)
		}
	})

	t.Run("keys by prefix", func(t *testing.T) {
		for _, k := range []string{"b", "c", "sub.health.b"} {
			if err := s.Set(ctx, prefix+k, []byte(k)); err != nil {
				t.Fatalf("Set error: %v", err)
			}
		}
		if err := s.Set(ctx, "elsewhere.x", []byte("x")); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		keys, err := s.Keys(ctx, prefix+"*")
		if err != nil {
			t.Fatalf("Keys error: %v", err)
		}
		want := map[string]bool{prefix + "a": true, prefix + "b": true, prefix + "c": true, prefix + "sub.health.b": true}
		if len(keys) != len(want) {
			t.Fatalf("Keys = %v, want %d keys", keys, len(want))
		}
		for _, k := range keys {
			if !want[k] {
				t.Errorf("unexpected key %q", k)
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		key := prefix + "a"
		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("Delete error: %v", err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after Delete = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, key); err != nil {
			t.Errorf("Delete(missing) = %v, want nil", err)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		if err := s.Set(ctx, "bad key", []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Set(bad key) = %v, want ErrInvalidKey", err)
		}
	})
}
