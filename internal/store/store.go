// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store implements the Flow Store: versioned, atomically
// written persistence for flows and user block definitions, behind a
// pluggable backend interface so JSON-file, Badger, and Postgres
// implementations are interchangeable.
package store

import (
	"errors"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// ErrNotFound is returned by DeleteFlow when the id is not present.
var ErrNotFound = errors.New("store: not found")

// ErrUnsupportedVersion is returned when a persisted document's version is
// higher than this build knows how to read.
var ErrUnsupportedVersion = errors.New("store: unsupported document version")

// CurrentVersion is the document version this build writes.
const CurrentVersion = 1

// FlowStore persists Flows. The JSON-file backend writes a versioned
// document via temp-file-then-rename and serves reads from an in-memory
// cache replaced on every write; the other backends rely on their own
// database's atomicity and read from it directly.
type FlowStore interface {
	LoadAll() (map[string]model.Flow, error)
	SaveAll(flows map[string]model.Flow) error
	SaveFlow(flow model.Flow) error
	DeleteFlow(id string) error
}

// BlockStore persists user-defined block definitions the same way.
type BlockStore interface {
	LoadAll() ([]model.BlockDefinition, error)
	SaveAll(blocks []model.BlockDefinition) error
}

// flowsDocument is the on-disk shape: {"version":1,"flows":[...]}.
type flowsDocument struct {
	Version int         `json:"version"`
	Flows   []model.Flow `json:"flows"`
}

// blocksDocument is the on-disk shape: {"version":1,"blocks":[...]}.
type blocksDocument struct {
	Version int                     `json:"version"`
	Blocks  []model.BlockDefinition `json:"blocks"`
}
