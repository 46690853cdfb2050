// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
	"github.com/eyevinn-osaas/strom-go/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	backend := store.NewJSONBlockStore(filepath.Join(t.TempDir(), "blocks.json"))
	builtin := []model.BlockDefinition{
		{ID: "builtin.aes67_input", Name: "AES67 Input", Category: "Inputs", BuiltIn: true},
		{ID: "builtin.mixer", Name: "Mixer", Category: "Processing", BuiltIn: true},
	}
	r := New(builtin, backend)
	require.NoError(t, r.Load())
	return r
}

func TestRegistry_GetByID_Builtin(t *testing.T) {
	r := newTestRegistry(t)
	b, ok := r.GetByID("builtin.aes67_input")
	require.True(t, ok)
	require.Equal(t, "AES67 Input", b.Name)
}

func TestRegistry_AddUser_AssignsPrefix(t *testing.T) {
	r := newTestRegistry(t)
	added, err := r.AddUser(model.BlockDefinition{ID: "my_block", Name: "My Block", Category: "Test"})
	require.NoError(t, err)
	require.Equal(t, "user.my_block", added.ID)

	got, ok := r.GetByID("user.my_block")
	require.True(t, ok)
	require.Equal(t, "My Block", got.Name)
}

func TestRegistry_AddUser_GeneratesIDWhenEmpty(t *testing.T) {
	r := newTestRegistry(t)
	added, err := r.AddUser(model.BlockDefinition{Name: "Anon", Category: "Test"})
	require.NoError(t, err)
	require.Contains(t, added.ID, model.UserPrefix)
}

func TestRegistry_AddUser_DuplicateIDFails(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.AddUser(model.BlockDefinition{ID: "dup", Category: "Test"})
	require.NoError(t, err)
	_, err = r.AddUser(model.BlockDefinition{ID: "dup", Category: "Test"})
	require.Error(t, err)
}

func TestRegistry_CannotDeleteBuiltin(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.DeleteUser("builtin.aes67_input")
	require.Error(t, err)
}

func TestRegistry_CannotUpdateBuiltin(t *testing.T) {
	r := newTestRegistry(t)
	err := r.UpdateUser(model.BlockDefinition{ID: "builtin.mixer", BuiltIn: true})
	require.Error(t, err)
}

func TestRegistry_DeleteUser_RemovesAndPersists(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.AddUser(model.BlockDefinition{ID: "gone", Category: "Test"})
	require.NoError(t, err)

	removed, err := r.DeleteUser("user.gone")
	require.NoError(t, err)
	require.True(t, removed)

	_, ok := r.GetByID("user.gone")
	require.False(t, ok)
}

func TestRegistry_GetCategories_SortedUnique(t *testing.T) {
	r := newTestRegistry(t)
	cats := r.GetCategories()
	require.Equal(t, []string{"Inputs", "Processing"}, cats)
}
