package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps the chain in process memory.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

// RecordChange appends a change to the chain.
func (l *MemoryLedger) RecordChange(ctx context.Context, change Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var seq uint64 = 1
	prevHash := ""
	if n := len(l.entries); n > 0 {
		seq = l.entries[n-1].Seq + 1
		prevHash = l.entries[n-1].Hash
	}

	e, err := newEntry(change, seq, prevHash, l.now())
	if err != nil {
		return err
	}
	l.entries = append(l.entries, e)
	return nil
}

// Entries returns a copy of every entry in order.
func (l *MemoryLedger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// History returns the entries recorded for one entity, in order.
func (l *MemoryLedger) History(entityID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Verify checks the hash chain.
func (l *MemoryLedger) Verify() error {
	return Verify(l.Entries())
}
