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

func newTestSQLiteStore(t *testing.T) *SQLiteFlowStore {
	t.Helper()
	s, err := OpenSQLiteFlowStore(filepath.Join(t.TempDir(), "flows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteFlowStore_SaveLoadDelete(t *testing.T) {
	s := newTestSQLiteStore(t)

	flow := model.Flow{ID: "f1", Name: "studio-mix"}
	require.NoError(t, s.SaveFlow(flow))

	loaded, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "studio-mix", loaded["f1"].Name)

	require.NoError(t, s.DeleteFlow("f1"))
	loaded, err = s.LoadAll()
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestSQLiteFlowStore_DeleteFlow_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	err := s.DeleteFlow("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteFlowStore_SaveFlow_Upserts(t *testing.T) {
	s := newTestSQLiteStore(t)

	require.NoError(t, s.SaveFlow(model.Flow{ID: "f1", Name: "a"}))
	require.NoError(t, s.SaveFlow(model.Flow{ID: "f1", Name: "b"}))

	loaded, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "b", loaded["f1"].Name)
}
