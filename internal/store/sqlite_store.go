// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// SQLiteFlowStore is a single-file, pure-Go alternative FlowStore backend for
// embedded strom deployments that want a queryable flows table without
// running a separate database process.
type SQLiteFlowStore struct {
	db *sql.DB
}

// OpenSQLiteFlowStore opens (creating if absent) the sqlite file at path and
// ensures the flows table exists.
func OpenSQLiteFlowStore(path string) (*SQLiteFlowStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite db: %w", err)
	}
	s := &SQLiteFlowStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteFlowStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS strom_flows (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`)
	if err != nil {
		return fmt.Errorf("store: create flows table: %w", err)
	}
	return nil
}

func (s *SQLiteFlowStore) Close() error { return s.db.Close() }

func (s *SQLiteFlowStore) LoadAll() (map[string]model.Flow, error) {
	rows, err := s.db.Query(`SELECT doc FROM strom_flows`)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite load all: %w", err)
	}
	defer rows.Close()

	flows := make(map[string]model.Flow)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan flow row: %w", err)
		}
		var f model.Flow
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("store: decode flow row: %w", err)
		}
		flows[f.ID] = f
	}
	return flows, rows.Err()
}

func (s *SQLiteFlowStore) SaveAll(flows map[string]model.Flow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin sqlite tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM strom_flows`); err != nil {
		return fmt.Errorf("store: clear flows table: %w", err)
	}
	for _, f := range flows {
		if err := sqliteUpsertFlow(tx, f); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit sqlite tx: %w", err)
	}
	return nil
}

func (s *SQLiteFlowStore) SaveFlow(flow model.Flow) error {
	return sqliteUpsertFlow(s.db, flow)
}

func (s *SQLiteFlowStore) DeleteFlow(id string) error {
	res, err := s.db.Exec(`DELETE FROM strom_flows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: sqlite delete flow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: sqlite delete flow: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: flow %q", ErrNotFound, id)
	}
	return nil
}

// sqliteExecer is satisfied by both *sql.DB and *sql.Tx.
type sqliteExecer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func sqliteUpsertFlow(q sqliteExecer, flow model.Flow) error {
	buf, err := json.Marshal(flow.StripRuntimeData())
	if err != nil {
		return fmt.Errorf("store: marshal flow: %w", err)
	}
	_, err = q.Exec(`
		INSERT INTO strom_flows (id, doc) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`, flow.ID, string(buf))
	if err != nil {
		return fmt.Errorf("store: upsert flow: %w", err)
	}
	return nil
}
