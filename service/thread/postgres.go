package thread

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists each thread as a jsonb snapshot row. Save replaces
// the whole collection inside one transaction, which gives the atomic
// whole-snapshot semantics the Store contract requires.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the threads table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			snapshot JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create threads table: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) ([]*Thread, error) {
	rows, err := s.pool.Query(ctx, `SELECT snapshot FROM threads ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan thread row: %w", err)
		}
		var t Thread
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("failed to decode thread snapshot: %w", err)
		}
		threads = append(threads, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read thread rows: %w", err)
	}
	return threads, nil
}

// Save implements Store. The previous collection is replaced wholesale.
func (s *PostgresStore) Save(ctx context.Context, threads []*Thread) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM threads`); err != nil {
		return fmt.Errorf("failed to clear threads: %w", err)
	}

	for _, t := range threads {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode thread %s: %w", t.ID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO threads (id, snapshot, updated_at) VALUES ($1, $2, $3)`,
			t.ID, raw, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert thread %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit thread snapshot: %w", err)
	}
	return nil
}
