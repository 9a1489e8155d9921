package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type snapshot struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func record(t *testing.T, l Ledger, c Change) {
	t.Helper()
	if err := l.RecordChange(context.Background(), c); err != nil {
		t.Fatalf("RecordChange error: %v", err)
	}
}

func TestMemoryLedgerRecord(t *testing.T) {
	l := NewMemoryLedger()

	record(t, l, Change{
		EntityType: EntityResource,
		EntityID:   "r-1",
		NewState:   snapshot{ID: "r-1", Status: "online"},
		Actor:      "alice",
		Reason:     "resource added",
	})
	record(t, l, Change{
		EntityType:    EntityResource,
		EntityID:      "r-1",
		PreviousState: snapshot{ID: "r-1", Status: "online"},
		Actor:         "alice",
		Reason:        "resource removed",
	})

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(entries))
	}

	first, second := entries[0], entries[1]
	if !first.IsCreation() || first.IsRemoval() {
		t.Error("first entry should be a creation")
	}
	if !second.IsRemoval() || second.IsCreation() {
		t.Error("second entry should be a removal")
	}
	if string(second.NewState) != "null" {
		t.Errorf("removal new_state = %s, want null", second.NewState)
	}

	var got snapshot
	if err := json.Unmarshal(first.NewState, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.Status != "online" {
		t.Errorf("new_state.status = %q, want online", got.Status)
	}

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seq = %d,%d, want 1,2", first.Seq, second.Seq)
	}
	if first.PrevHash != "" || second.PrevHash != first.Hash {
		t.Error("entries are not chained")
	}
	if first.ID == "" || first.ID == second.ID {
		t.Error("entry ids must be unique")
	}
	if err := l.Verify(); err != nil {
		t.Errorf("Verify error: %v", err)
	}
}

func TestMemoryLedgerHistory(t *testing.T) {
	l := NewMemoryLedger()
	record(t, l, Change{EntityType: EntityResource, EntityID: "a", Actor: "x"})
	record(t, l, Change{EntityType: EntityResource, EntityID: "b", Actor: "x"})
	record(t, l, Change{EntityType: EntityResource, EntityID: "a", Actor: "x"})

	if got := len(l.History("a")); got != 2 {
		t.Errorf("len(History(a)) = %d, want 2", got)
	}
	if got := len(l.History("missing")); got != 0 {
		t.Errorf("len(History(missing)) = %d, want 0", got)
	}
}

func TestMemoryLedgerConcurrent(t *testing.T) {
	l := NewMemoryLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.RecordChange(context.Background(), Change{EntityType: EntityResource, EntityID: "r", Actor: "x"})
		}()
	}
	wg.Wait()

	if l.Len() != 50 {
		t.Errorf("Len() = %d, want 50", l.Len())
	}
	if err := l.Verify(); err != nil {
		t.Errorf("Verify error: %v", err)
	}
}

func TestMemoryLedgerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := NewMemoryLedger()
	if err := l.RecordChange(ctx, Change{}); !errors.Is(err, context.Canceled) {
		t.Errorf("RecordChange = %v, want context.Canceled", err)
	}
	if l.Len() != 0 {
		t.Error("canceled record must not append")
	}
}

func TestMemoryLedgerRejectsUnencodableState(t *testing.T) {
	l := NewMemoryLedger()
	err := l.RecordChange(context.Background(), Change{NewState: make(chan int)})
	if err == nil {
		t.Fatal("expected encode error")
	}
	if l.Len() != 0 {
		t.Error("failed record must not append")
	}
}

// --- Verify ---

func TestVerifyDetectsTampering(t *testing.T) {
	l := NewMemoryLedger()
	for _, reason := range []string{"added", "drained", "removed"} {
		record(t, l, Change{EntityType: EntityResource, EntityID: "r", Actor: "x", Reason: reason})
	}

	tests := map[string]func([]Entry){
		"edited reason":  func(e []Entry) { e[1].Reason = "resumed" },
		"edited state":   func(e []Entry) { e[0].NewState = json.RawMessage(`{"status":"offline"}`) },
		"dropped entry":  func(e []Entry) { copy(e[1:], e[2:]) },
		"relinked entry": func(e []Entry) { e[2].PrevHash = e[0].Hash },
	}
	for name, tamper := range tests {
		t.Run(name, func(t *testing.T) {
			entries := l.Entries()
			tamper(entries)
			if name == "dropped entry" {
				entries = entries[:2]
			}
			if err := Verify(entries); !errors.Is(err, ErrChainBroken) {
				t.Errorf("Verify = %v, want ErrChainBroken", err)
			}
		})
	}

	if err := Verify(nil); err != nil {
		t.Errorf("Verify(nil) = %v, want nil", err)
	}
}

func TestValidTable(t *testing.T) {
	for name, want := range map[string]bool{
		"resource_ledger": true,
		"ledger2":         true,
		"":                false,
		"drop table;":     false,
		"Upper":           false,
	} {
		if got := validTable(name); got != want {
			t.Errorf("validTable(%q) = %v, want %v", name, got, want)
		}
	}
}
