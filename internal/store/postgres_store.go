// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// PostgresFlowStore is the alternative FlowStore backend selected via
// STROM_STORAGE_BACKEND=postgres (see config), for deployments that already
// run a shared Postgres instance and want flows alongside other state
// rather than on local disk.
type PostgresFlowStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresFlowStore connects to dsn and ensures the flows table exists.
func OpenPostgresFlowStore(ctx context.Context, dsn string) (*PostgresFlowStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	s := &PostgresFlowStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresFlowStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS strom_flows (
			id   TEXT PRIMARY KEY,
			doc  JSONB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("store: create flows table: %w", err)
	}
	return nil
}

func (s *PostgresFlowStore) Close() { s.pool.Close() }

func (s *PostgresFlowStore) LoadAll() (map[string]model.Flow, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `SELECT doc FROM strom_flows`)
	if err != nil {
		return nil, fmt.Errorf("store: postgres load all: %w", err)
	}
	defer rows.Close()

	flows := make(map[string]model.Flow)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan flow row: %w", err)
		}
		var f model.Flow
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("store: decode flow row: %w", err)
		}
		flows[f.ID] = f
	}
	return flows, rows.Err()
}

func (s *PostgresFlowStore) SaveAll(flows map[string]model.Flow) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin postgres tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM strom_flows`); err != nil {
		return fmt.Errorf("store: clear flows table: %w", err)
	}
	for _, f := range flows {
		if err := upsertFlow(ctx, tx, f); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit postgres tx: %w", err)
	}
	return nil
}

func (s *PostgresFlowStore) SaveFlow(flow model.Flow) error {
	ctx := context.Background()
	return upsertFlow(ctx, s.pool, flow)
}

func (s *PostgresFlowStore) DeleteFlow(id string) error {
	ctx := context.Background()
	tag, err := s.pool.Exec(ctx, `DELETE FROM strom_flows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: postgres delete flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: flow %q", ErrNotFound, id)
	}
	return nil
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertFlow(ctx context.Context, q execer, flow model.Flow) error {
	buf, err := json.Marshal(flow.StripRuntimeData())
	if err != nil {
		return fmt.Errorf("store: marshal flow: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO strom_flows (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, flow.ID, buf)
	if err != nil {
		return fmt.Errorf("store: upsert flow: %w", err)
	}
	return nil
}
