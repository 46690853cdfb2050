// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

func TestJSONFlowStore_EmptyWhenFileMissing(t *testing.T) {
	s := NewJSONFlowStore(filepath.Join(t.TempDir(), "flows.json"))
	flows, err := s.LoadAll()
	require.NoError(t, err)
	require.Empty(t, flows)
}

func TestJSONFlowStore_SaveAndLoadRoundTrip(t *testing.T) {
	s := NewJSONFlowStore(filepath.Join(t.TempDir(), "flows.json"))
	f := model.Flow{ID: "f1", Name: "Test Flow", State: model.StateNull}
	require.NoError(t, s.SaveFlow(f))

	flows, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, flows, 1)
	require.Equal(t, "Test Flow", flows["f1"].Name)
}

func TestJSONFlowStore_DeleteFlow(t *testing.T) {
	s := NewJSONFlowStore(filepath.Join(t.TempDir(), "flows.json"))
	require.NoError(t, s.SaveFlow(model.Flow{ID: "f1", Name: "A"}))
	require.NoError(t, s.DeleteFlow("f1"))

	flows, err := s.LoadAll()
	require.NoError(t, err)
	require.Empty(t, flows)
}

func TestJSONFlowStore_DeleteMissingFails(t *testing.T) {
	s := NewJSONFlowStore(filepath.Join(t.TempDir(), "flows.json"))
	err := s.DeleteFlow("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJSONFlowStore_StripsRuntimeDataOnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.json")
	s := NewJSONFlowStore(path)
	f := model.Flow{
		ID:   "f1",
		Name: "A",
		Blocks: []model.BlockInstance{
			{ID: "b1", RuntimeData: map[string]string{"sdp": "v=0"}},
		},
	}
	require.NoError(t, s.SaveFlow(f))

	fresh := NewJSONFlowStore(path)
	flows, err := fresh.LoadAll()
	require.NoError(t, err)
	require.Nil(t, flows["f1"].Blocks[0].RuntimeData)
}

func TestJSONBlockStore_RoundTrip(t *testing.T) {
	s := NewJSONBlockStore(filepath.Join(t.TempDir(), "blocks.json"))
	require.NoError(t, s.SaveAll([]model.BlockDefinition{{ID: "user.x", Name: "X"}}))

	blocks, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, "X", blocks[0].Name)
}
