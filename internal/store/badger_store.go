// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// BadgerFlowStore is an embedded-KV alternative to JSONFlowStore: each flow
// is a key "flow:<id>" holding its JSON encoding. Badger's own WAL/value-log
// fsync discipline supplies the atomicity a file-rename gives the JSON
// backend, so no extra temp-file dance is needed here.
type BadgerFlowStore struct {
	db *badger.DB
}

func OpenBadgerFlowStore(path string) (*BadgerFlowStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger db: %w", err)
	}
	return &BadgerFlowStore{db: db}, nil
}

func (s *BadgerFlowStore) Close() error { return s.db.Close() }

func flowKey(id string) []byte { return []byte("flow:" + id) }

func (s *BadgerFlowStore) LoadAll() (map[string]model.Flow, error) {
	flows := make(map[string]model.Flow)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("flow:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				var f model.Flow
				if err := json.Unmarshal(val, &f); err != nil {
					return err
				}
				flows[f.ID] = f
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: badger load all: %w", err)
	}
	return flows, nil
}

func (s *BadgerFlowStore) SaveAll(flows map[string]model.Flow) error {
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := []byte("flow:")
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, append([]byte(nil), it.Item().Key()...))
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, f := range flows {
			buf, err := json.Marshal(f.StripRuntimeData())
			if err != nil {
				return err
			}
			if err := txn.Set(flowKey(f.ID), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerFlowStore) SaveFlow(flow model.Flow) error {
	buf, err := json.Marshal(flow.StripRuntimeData())
	if err != nil {
		return fmt.Errorf("store: marshal flow: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(flowKey(flow.ID), buf)
	})
}

func (s *BadgerFlowStore) DeleteFlow(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(flowKey(id))
		if err != nil {
			return err
		}
		return txn.Delete(flowKey(id))
	})
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: flow %q", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("store: badger delete flow: %w", err)
	}
	return nil
}
