// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

func newTestRedisStore(t *testing.T) *RedisFlowStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisFlowStore(client, "strom:test:")
}

func TestRedisFlowStore_SaveLoadDelete(t *testing.T) {
	s := newTestRedisStore(t)

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

func TestRedisFlowStore_DeleteFlow_NotFound(t *testing.T) {
	s := newTestRedisStore(t)
	err := s.DeleteFlow("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisFlowStore_SaveAll_RemovesDroppedFlows(t *testing.T) {
	s := newTestRedisStore(t)

	require.NoError(t, s.SaveAll(map[string]model.Flow{
		"f1": {ID: "f1", Name: "a"},
		"f2": {ID: "f2", Name: "b"},
	}))

	require.NoError(t, s.SaveAll(map[string]model.Flow{
		"f1": {ID: "f1", Name: "a"},
	}))

	loaded, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	_, ok := loaded["f2"]
	require.False(t, ok)
}
