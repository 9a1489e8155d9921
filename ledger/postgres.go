package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger stores the chain in a single table. Appends serialize on a
// table lock so concurrent writers from several nodes still form one chain.
type PostgresLedger struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

// NewPostgresLedger connects to dsn and ensures the schema exists.
func NewPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	l := &PostgresLedger{pool: pool, table: "resource_ledger", owned: true}
	if err := l.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

// NewPostgresLedgerFromPool uses an existing pool, which the caller keeps ownership of.
func NewPostgresLedgerFromPool(ctx context.Context, pool *pgxpool.Pool, table string) (*PostgresLedger, error) {
	if table == "" {
		table = "resource_ledger"
	}
	if !validTable(table) {
		return nil, fmt.Errorf("invalid ledger table name %q", table)
	}
	l := &PostgresLedger{pool: pool, table: table}
	if err := l.initSchema(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func validTable(name string) bool {
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return name != ""
}

// Close releases the pool if the ledger created it.
func (l *PostgresLedger) Close() {
	if l.owned {
		l.pool.Close()
	}
}

func (l *PostgresLedger) initSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	seq BIGINT PRIMARY KEY,
	id UUID NOT NULL UNIQUE,
	recorded_at TIMESTAMPTZ NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	previous_state JSON NOT NULL,
	new_state JSON NOT NULL,
	actor TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	prev_hash TEXT NOT NULL,
	hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_entity_idx ON %[1]s (entity_id, seq);
`, l.table))
	if err != nil {
		return fmt.Errorf("init ledger schema: %w", err)
	}
	return nil
}

// RecordChange appends a change to the chain.
func (l *PostgresLedger) RecordChange(ctx context.Context, change Change) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("LOCK TABLE %s IN EXCLUSIVE MODE", l.table)); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}

	var (
		lastSeq  int64
		prevHash string
	)
	err = tx.QueryRow(ctx, fmt.Sprintf("SELECT seq, hash FROM %s ORDER BY seq DESC LIMIT 1", l.table)).Scan(&lastSeq, &prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read ledger head: %w", err)
	}

	e, err := newEntry(change, uint64(lastSeq)+1, prevHash, time.Now())
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (
	seq, id, recorded_at, entity_type, entity_id, previous_state, new_state,
	actor, reason, prev_hash, hash
) VALUES ($1, $2, $3, $4, $5, $6::json, $7::json, $8, $9, $10, $11)`, l.table),
		int64(e.Seq), e.ID, e.Timestamp, string(e.EntityType), e.EntityID,
		string(e.PreviousState), string(e.NewState), e.Actor, e.Reason, e.PrevHash, e.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger entry: %w", err)
	}
	return nil
}

const entryColumns = `seq, id::text, recorded_at, entity_type, entity_id,
	previous_state::text, new_state::text, actor, reason, prev_hash, hash`

// Entries returns every entry in order.
func (l *PostgresLedger) Entries(ctx context.Context) ([]Entry, error) {
	return l.query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY seq", entryColumns, l.table))
}

// History returns the entries recorded for one entity, in order.
func (l *PostgresLedger) History(ctx context.Context, entityID string) ([]Entry, error) {
	return l.query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE entity_id = $1 ORDER BY seq", entryColumns, l.table), entityID)
}

// Verify checks the hash chain of the whole table.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	entries, err := l.Entries(ctx)
	if err != nil {
		return err
	}
	return Verify(entries)
}

func (l *PostgresLedger) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			seq        int64
			entityType string
			prev, next string
		)
		if err := rows.Scan(&seq, &e.ID, &e.Timestamp, &entityType, &e.EntityID,
			&prev, &next, &e.Actor, &e.Reason, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.EntityType = EntityType(entityType)
		e.Timestamp = e.Timestamp.UTC()
		e.PreviousState = []byte(prev)
		e.NewState = []byte(next)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return out, nil
}
