// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/eyevinn-osaas/strom-go/internal/log"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// JSONFlowStore is the primary FlowStore backend: a single JSON file,
// written atomically via a temp file + rename, with an in-memory read
// cache invalidated on every write.
type JSONFlowStore struct {
	path string

	mu    sync.RWMutex
	cache map[string]model.Flow
	has   bool
}

func NewJSONFlowStore(path string) *JSONFlowStore {
	return &JSONFlowStore{path: path}
}

func (s *JSONFlowStore) LoadAll() (map[string]model.Flow, error) {
	s.mu.RLock()
	if s.has {
		defer s.mu.RUnlock()
		return cloneFlows(s.cache), nil
	}
	s.mu.RUnlock()

	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}

	flows := make(map[string]model.Flow, len(doc.Flows))
	for _, f := range doc.Flows {
		flows[f.ID] = f
	}

	s.mu.Lock()
	s.cache = cloneFlows(flows)
	s.has = true
	s.mu.Unlock()

	return flows, nil
}

func (s *JSONFlowStore) readDocument() (flowsDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.L().Info().Str("path", s.path).Msg("flow store file does not exist, starting empty")
			return flowsDocument{Version: CurrentVersion}, nil
		}
		return flowsDocument{}, fmt.Errorf("store: read flows file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return flowsDocument{Version: CurrentVersion}, nil
	}

	var doc flowsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return flowsDocument{}, fmt.Errorf("store: parse flows file: %w", err)
	}
	if doc.Version > CurrentVersion {
		return flowsDocument{}, fmt.Errorf("%w: got %d, max supported %d", ErrUnsupportedVersion, doc.Version, CurrentVersion)
	}
	return doc, nil
}

func (s *JSONFlowStore) SaveAll(flows map[string]model.Flow) error {
	doc := flowsDocument{Version: CurrentVersion, Flows: make([]model.Flow, 0, len(flows))}
	for _, f := range flows {
		doc.Flows = append(doc.Flows, f.StripRuntimeData())
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal flows: %w", err)
	}

	if err := atomicWrite(s.path, data); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache = cloneFlows(flows)
	s.has = true
	s.mu.Unlock()
	return nil
}

func (s *JSONFlowStore) SaveFlow(flow model.Flow) error {
	flows, err := s.LoadAll()
	if err != nil {
		return err
	}
	flows[flow.ID] = flow
	return s.SaveAll(flows)
}

func (s *JSONFlowStore) DeleteFlow(id string) error {
	flows, err := s.LoadAll()
	if err != nil {
		return err
	}
	if _, ok := flows[id]; !ok {
		return fmt.Errorf("%w: flow %q", ErrNotFound, id)
	}
	delete(flows, id)
	return s.SaveAll(flows)
}

// JSONBlockStore is the equivalent JSON-file backend for user block
// definitions, sharing the same document shape and atomic-write discipline.
type JSONBlockStore struct {
	path string
}

func NewJSONBlockStore(path string) *JSONBlockStore {
	return &JSONBlockStore{path: path}
}

func (s *JSONBlockStore) LoadAll() ([]model.BlockDefinition, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read blocks file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var doc blocksDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: parse blocks file: %w", err)
	}
	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: got %d, max supported %d", ErrUnsupportedVersion, doc.Version, CurrentVersion)
	}
	return doc.Blocks, nil
}

func (s *JSONBlockStore) SaveAll(blocks []model.BlockDefinition) error {
	doc := blocksDocument{Version: CurrentVersion, Blocks: blocks}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal blocks: %w", err)
	}
	return atomicWrite(s.path, data)
}

// atomicWrite commits data to path via a pending temp file, fsyncing
// before an atomic rename so a crash mid-write never leaves a torn file.
func atomicWrite(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("store: create pending file: %w", err)
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil {
			log.L().Debug().Err(cerr).Msg("cleanup pending store file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("store: write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("store: commit pending file: %w", err)
	}
	return nil
}

func cloneFlows(in map[string]model.Flow) map[string]model.Flow {
	out := make(map[string]model.Flow, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
