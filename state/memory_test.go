package state

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore(), "resources.")
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	buf := []byte("original")
	if err := s.Set(ctx, "k", buf); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	buf[0] = 'X'

	got, _ := s.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored value aliased caller buffer: %q", got)
	}
	got[0] = 'Y'
	again, _ := s.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("returned value aliased store: %q", again)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Close()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := s.Set(ctx, "k", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
	if _, err := s.Keys(ctx, "*"); !errors.Is(err, ErrClosed) {
		t.Errorf("Keys after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	if err := s.Set(ctx, "k", []byte("v")); !errors.Is(err, context.Canceled) {
		t.Errorf("Set with canceled ctx = %v, want context.Canceled", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}
