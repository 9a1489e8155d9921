// Package ledger records every registry mutation as an append-only,
// hash-chained audit trail.
//
// Each Entry carries the sha256 hash of its predecessor, so rewriting any
// past entry breaks Verify for everything after it.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrChainBroken is returned by Verify when an entry does not link to its predecessor.
var ErrChainBroken = errors.New("ledger chain broken")

// EntityType names what a change is about.
type EntityType string

const (
	EntityResource EntityType = "resource"
	EntityRegistry EntityType = "resource_registry"
)

// Change is one recorded transition. States are JSON-encoded on record; a
// nil state is recorded as JSON null.
type Change struct {
	EntityType    EntityType
	EntityID      string
	PreviousState any
	NewState      any
	Actor         string
	Reason        string
}

// Ledger records changes. Implementations must be safe for concurrent use.
type Ledger interface {
	RecordChange(ctx context.Context, change Change) error
}

// Entry is a recorded change as stored.
type Entry struct {
	ID            string          `json:"id"`
	Seq           uint64          `json:"seq"`
	Timestamp     time.Time       `json:"timestamp"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	PreviousState json.RawMessage `json:"previous_state"`
	NewState      json.RawMessage `json:"new_state"`
	Actor         string          `json:"actor"`
	Reason        string          `json:"reason,omitempty"`
	PrevHash      string          `json:"prev_hash"`
	Hash          string          `json:"hash"`
}

// IsRemoval reports whether the entry records an entity going away.
func (e Entry) IsRemoval() bool {
	return isNull(e.NewState)
}

// IsCreation reports whether the entry records an entity coming into existence.
func (e Entry) IsCreation() bool {
	return isNull(e.PreviousState)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// newEntry builds the next entry in a chain. Timestamps are truncated to
// microseconds so they survive a round trip through Postgres unchanged.
func newEntry(change Change, seq uint64, prevHash string, now time.Time) (Entry, error) {
	prev, err := json.Marshal(change.PreviousState)
	if err != nil {
		return Entry{}, fmt.Errorf("encode previous state: %w", err)
	}
	next, err := json.Marshal(change.NewState)
	if err != nil {
		return Entry{}, fmt.Errorf("encode new state: %w", err)
	}

	e := Entry{
		ID:            uuid.NewString(),
		Seq:           seq,
		Timestamp:     now.UTC().Truncate(time.Microsecond),
		EntityType:    change.EntityType,
		EntityID:      change.EntityID,
		PreviousState: prev,
		NewState:      next,
		Actor:         change.Actor,
		Reason:        change.Reason,
		PrevHash:      prevHash,
	}
	e.Hash = e.computeHash()
	return e, nil
}

// computeHash hashes every field except Hash itself.
func (e Entry) computeHash() string {
	payload := struct {
		ID            string          `json:"id"`
		Seq           uint64          `json:"seq"`
		Timestamp     string          `json:"timestamp"`
		EntityType    EntityType      `json:"entity_type"`
		EntityID      string          `json:"entity_id"`
		PreviousState json.RawMessage `json:"previous_state"`
		NewState      json.RawMessage `json:"new_state"`
		Actor         string          `json:"actor"`
		Reason        string          `json:"reason"`
		PrevHash      string          `json:"prev_hash"`
	}{
		ID:            e.ID,
		Seq:           e.Seq,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		PreviousState: orNull(e.PreviousState),
		NewState:      orNull(e.NewState),
		Actor:         e.Actor,
		Reason:        e.Reason,
		PrevHash:      e.PrevHash,
	}
	// Marshal cannot fail: every field is a string, number or valid raw JSON.
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// Verify checks that entries form an unbroken chain starting at the first one.
func Verify(entries []Entry) error {
	prevHash := ""
	for i, e := range entries {
		if e.PrevHash != prevHash {
			return fmt.Errorf("%w: entry %d (%s) prev_hash mismatch", ErrChainBroken, e.Seq, e.ID)
		}
		if e.computeHash() != e.Hash {
			return fmt.Errorf("%w: entry %d (%s) hash mismatch", ErrChainBroken, e.Seq, e.ID)
		}
		if i > 0 && e.Seq != entries[i-1].Seq+1 {
			return fmt.Errorf("%w: sequence gap before entry %d", ErrChainBroken, e.Seq)
		}
		prevHash = e.Hash
	}
	return nil
}
