// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// RedisFlowStore is a shared-state alternative to BadgerFlowStore for
// multi-instance strom deployments: each flow lives under keyPrefix+"flow:<id>",
// and its id is kept in a set named by keyPrefix+"flows" so LoadAll can
// enumerate members without a KEYS scan.
type RedisFlowStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisFlowStore wraps an already-configured *redis.Client. keyPrefix
// namespaces keys when multiple strom instances share one Redis database.
func NewRedisFlowStore(client *redis.Client, keyPrefix string) *RedisFlowStore {
	return &RedisFlowStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisFlowStore) indexKey() string     { return s.keyPrefix + "flows" }
func (s *RedisFlowStore) flowKey(id string) string { return s.keyPrefix + "flow:" + id }

func (s *RedisFlowStore) LoadAll() (map[string]model.Flow, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis list flows: %w", err)
	}
	flows := make(map[string]model.Flow, len(ids))
	for _, id := range ids {
		raw, err := s.client.Get(ctx, s.flowKey(id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: redis get flow %q: %w", id, err)
		}
		var f model.Flow
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("store: unmarshal flow %q: %w", id, err)
		}
		flows[f.ID] = f
	}
	return flows, nil
}

func (s *RedisFlowStore) SaveAll(flows map[string]model.Flow) error {
	ctx := context.Background()
	existing, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("store: redis list flows: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range existing {
		if _, keep := flows[id]; !keep {
			pipe.Del(ctx, s.flowKey(id))
			pipe.SRem(ctx, s.indexKey(), id)
		}
	}
	for _, f := range flows {
		buf, err := json.Marshal(f.StripRuntimeData())
		if err != nil {
			return fmt.Errorf("store: marshal flow: %w", err)
		}
		pipe.Set(ctx, s.flowKey(f.ID), buf, 0)
		pipe.SAdd(ctx, s.indexKey(), f.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: redis save all: %w", err)
	}
	return nil
}

func (s *RedisFlowStore) SaveFlow(flow model.Flow) error {
	ctx := context.Background()
	buf, err := json.Marshal(flow.StripRuntimeData())
	if err != nil {
		return fmt.Errorf("store: marshal flow: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.flowKey(flow.ID), buf, 0)
	pipe.SAdd(ctx, s.indexKey(), flow.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: redis save flow: %w", err)
	}
	return nil
}

func (s *RedisFlowStore) DeleteFlow(id string) error {
	ctx := context.Background()
	n, err := s.client.Del(ctx, s.flowKey(id)).Result()
	if err != nil {
		return fmt.Errorf("store: redis delete flow: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: flow %q", ErrNotFound, id)
	}
	s.client.SRem(ctx, s.indexKey(), id)
	return nil
}
