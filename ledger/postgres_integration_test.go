//go:build integration

package ledger

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPostgresLedgerIntegration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}

	table := fmt.Sprintf("ledger_test_%d", time.Now().UnixNano())
	l, err := NewPostgresLedgerFromPool(ctx, pool, table)
	if err != nil {
		t.Fatalf("NewPostgresLedgerFromPool error: %v", err)
	}
	defer pool.Exec(ctx, "DROP TABLE "+table)

	if err := l.RecordChange(ctx, Change{EntityType: EntityResource, EntityID: "r-1", NewState: map[string]string{"status": "online"}, Actor: "alice"}); err != nil {
		t.Fatalf("RecordChange error: %v", err)
	}
	if err := l.RecordChange(ctx, Change{EntityType: EntityResource, EntityID: "r-1", PreviousState: map[string]string{"status": "online"}, Actor: "alice"}); err != nil {
		t.Fatalf("RecordChange error: %v", err)
	}

	history, err := l.History(ctx, "r-1")
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(history) != 2 || !history[1].IsRemoval() {
		t.Fatalf("History = %+v, want creation then removal", history)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify error: %v", err)
	}
}
