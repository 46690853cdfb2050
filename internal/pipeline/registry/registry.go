// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry implements the Block Registry: built-in block
// definitions (immutable, compiled-in) plus a persisted set of
// user-defined composite blocks.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/eyevinn-osaas/strom-go/internal/log"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
	"github.com/eyevinn-osaas/strom-go/internal/store"
)

// Registry answers "give me the definition for block id X" and owns
// mutation of user-defined blocks. Built-in definitions are supplied at
// construction and never change for the registry's lifetime; many readers
// may call GetByID/GetAll concurrently while a single writer mutates user
// blocks.
type Registry struct {
	mu      sync.RWMutex
	builtin []model.BlockDefinition
	user    []model.BlockDefinition
	store   store.BlockStore
}

// New builds a registry from a fixed built-in set and a pluggable
// persistence backend for user blocks. Call Load to populate user blocks
// from the backend.
func New(builtin []model.BlockDefinition, backend store.BlockStore) *Registry {
	return &Registry{builtin: builtin, store: backend}
}

// Load reads user blocks from the backend, replacing the in-memory set.
func (r *Registry) Load() error {
	blocks, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("registry: load user blocks: %w", err)
	}
	r.mu.Lock()
	r.user = blocks
	r.mu.Unlock()
	return nil
}

// GetAll returns built-in blocks followed by user blocks.
func (r *Registry) GetAll() []model.BlockDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.BlockDefinition, 0, len(r.builtin)+len(r.user))
	out = append(out, r.builtin...)
	out = append(out, r.user...)
	return out
}

// GetByID looks up a definition by id, checking built-ins first.
func (r *Registry) GetByID(id string) (model.BlockDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.builtin {
		if b.ID == id {
			return b, true
		}
	}
	for _, b := range r.user {
		if b.ID == id {
			return b, true
		}
	}
	return model.BlockDefinition{}, false
}

// GetCategories returns the sorted set of distinct categories across all
// blocks.
func (r *Registry) GetCategories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, b := range r.builtin {
		seen[b.Category] = struct{}{}
	}
	for _, b := range r.user {
		seen[b.Category] = struct{}{}
	}
	cats := make([]string, 0, len(seen))
	for c := range seen {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// AddUser registers a new user-defined block. If block.ID is empty or
// carries the builtin prefix, a fresh user.<uuid> id is assigned; a bare id
// is namespaced under user.; an id already in use (built-in or user) fails.
func (r *Registry) AddUser(block model.BlockDefinition) (model.BlockDefinition, error) {
	block.BuiltIn = false
	switch {
	case block.ID == "" || hasPrefix(block.ID, model.BuiltinPrefix):
		block.ID = model.UserPrefix + uuid.NewString()
	case !hasPrefix(block.ID, model.UserPrefix):
		block.ID = model.UserPrefix + block.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findLocked(block.ID) != nil {
		return model.BlockDefinition{}, fmt.Errorf("registry: block %q already exists", block.ID)
	}
	r.user = append(r.user, block)
	if err := r.store.SaveAll(r.user); err != nil {
		r.user = r.user[:len(r.user)-1]
		return model.BlockDefinition{}, fmt.Errorf("registry: persist user blocks: %w", err)
	}
	log.L().Info().Str("block_id", block.ID).Msg("added user block")
	return block, nil
}

// UpdateUser replaces an existing user block in place. Built-in ids are
// rejected.
func (r *Registry) UpdateUser(block model.BlockDefinition) error {
	if block.BuiltIn || hasPrefix(block.ID, model.BuiltinPrefix) {
		return fmt.Errorf("registry: cannot update built-in block %q", block.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.user {
		if b.ID == block.ID {
			prev := r.user[i]
			r.user[i] = block
			if err := r.store.SaveAll(r.user); err != nil {
				r.user[i] = prev
				return fmt.Errorf("registry: persist user blocks: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("registry: block %q not found", block.ID)
}

// DeleteUser removes a user block. Built-in ids are rejected. Returns
// whether a block was actually removed.
func (r *Registry) DeleteUser(id string) (bool, error) {
	if hasPrefix(id, model.BuiltinPrefix) {
		return false, fmt.Errorf("registry: cannot delete built-in block %q", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.user {
		if b.ID == id {
			removed := r.user[i]
			r.user = append(r.user[:i], r.user[i+1:]...)
			if err := r.store.SaveAll(r.user); err != nil {
				r.user = append(r.user[:i], append([]model.BlockDefinition{removed}, r.user[i:]...)...)
				return false, fmt.Errorf("registry: persist user blocks: %w", err)
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *Registry) findLocked(id string) *model.BlockDefinition {
	for i := range r.builtin {
		if r.builtin[i].ID == id {
			return &r.builtin[i]
		}
	}
	for i := range r.user {
		if r.user[i].ID == id {
			return &r.user[i]
		}
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
