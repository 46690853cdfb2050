// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/eyevinn-osaas/strom-go/internal/log"
)

type envLookupFunc func(string) (string, bool)

func envString(lookup envLookupFunc, key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envBool(lookup envLookupFunc, key string, fallback bool) bool {
	v, ok := lookup(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		log.WithComponent("config").Warn().Str("key", key).Str("value", v).Msg("invalid bool env var, using default")
		return fallback
	}
	return parsed
}

func envInt(lookup envLookupFunc, key string, fallback int) int {
	v, ok := lookup(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.WithComponent("config").Warn().Str("key", key).Str("value", v).Msg("invalid int env var, using default")
		return fallback
	}
	return parsed
}

func envDuration(lookup envLookupFunc, key string, fallback time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		log.WithComponent("config").Warn().Str("key", key).Str("value", v).Msg("invalid duration env var, using default")
		return fallback
	}
	return parsed
}

// applyEnv overlays environment variables onto cfg, matching the
// STROM_-prefixed convention.
func applyEnv(cfg AppConfig, lookup envLookupFunc) AppConfig {
	cfg.ListenAddr = envString(lookup, "STROM_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = envString(lookup, "STROM_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsAddr = envString(lookup, "STROM_METRICS_ADDR", cfg.MetricsAddr)

	cfg.Storage.Backend = StorageBackend(envString(lookup, "STROM_STORAGE_BACKEND", string(cfg.Storage.Backend)))
	cfg.Storage.JSONPath = envString(lookup, "STROM_STORAGE_JSON_PATH", cfg.Storage.JSONPath)
	cfg.Storage.BadgerDir = envString(lookup, "STROM_STORAGE_BADGER_DIR", cfg.Storage.BadgerDir)
	cfg.Storage.SQLitePath = envString(lookup, "STROM_STORAGE_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.RedisAddr = envString(lookup, "STROM_STORAGE_REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisDB = envInt(lookup, "STROM_STORAGE_REDIS_DB", cfg.Storage.RedisDB)
	cfg.Storage.PostgresDSN = envString(lookup, "STROM_STORAGE_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Discovery.Enabled = envBool(lookup, "STROM_DISCOVERY_ENABLED", cfg.Discovery.Enabled)
	cfg.Discovery.ServiceName = envString(lookup, "STROM_DISCOVERY_SERVICE_NAME", cfg.Discovery.ServiceName)
	cfg.Discovery.SweepPeriod = envDuration(lookup, "STROM_DISCOVERY_SWEEP_PERIOD", cfg.Discovery.SweepPeriod)
	cfg.Discovery.StaleAfter = envDuration(lookup, "STROM_DISCOVERY_STALE_AFTER", cfg.Discovery.StaleAfter)

	return cfg
}

func osLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}
