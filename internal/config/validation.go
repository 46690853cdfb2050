// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "fmt"

// Validate rejects configurations the server cannot start with.
func Validate(cfg AppConfig) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}

	switch cfg.Storage.Backend {
	case StorageJSON:
		if cfg.Storage.JSONPath == "" {
			return fmt.Errorf("config: storage.json_path required for json backend")
		}
	case StorageBadger:
		if cfg.Storage.BadgerDir == "" {
			return fmt.Errorf("config: storage.badger_dir required for badger backend")
		}
	case StorageSQLite:
		if cfg.Storage.SQLitePath == "" {
			return fmt.Errorf("config: storage.sqlite_path required for sqlite backend")
		}
	case StorageRedis:
		if cfg.Storage.RedisAddr == "" {
			return fmt.Errorf("config: storage.redis_addr required for redis backend")
		}
	case StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: storage.postgres_dsn required for postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", cfg.Storage.Backend)
	}

	return nil
}
