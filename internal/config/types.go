// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and hot-reloads Strom's server configuration: the
// storage backend, HTTP listen address, discovery settings, and logging
// level. Values come from an optional YAML file overlaid by environment
// variables, matching the precedence env > file > default.
package config

import "time"

// StorageBackend selects which FlowStore implementation the server wires up.
type StorageBackend string

const (
	StorageJSON     StorageBackend = "json"
	StorageBadger   StorageBackend = "badger"
	StorageRedis    StorageBackend = "redis"
	StoragePostgres StorageBackend = "postgres"
	StorageSQLite   StorageBackend = "sqlite"
)

// AppConfig is the fully resolved configuration for one server process.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	Storage StorageConfig `yaml:"storage"`

	Discovery DiscoveryConfig `yaml:"discovery"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// StorageConfig configures the FlowStore backend.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`

	// JSONPath is the flow document path when Backend is json.
	JSONPath string `yaml:"json_path"`

	// BadgerDir is the database directory when Backend is badger.
	BadgerDir string `yaml:"badger_dir"`

	// SQLitePath is the database file when Backend is sqlite.
	SQLitePath string `yaml:"sqlite_path"`

	// RedisAddr/RedisDB apply when Backend is redis.
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`

	// PostgresDSN applies when Backend is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// DiscoveryConfig configures the mDNS discovery service.
type DiscoveryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	ServiceName string        `yaml:"service_name"`
	SweepPeriod time.Duration `yaml:"sweep_period"`
	StaleAfter  time.Duration `yaml:"stale_after"`
}

// Default returns the configuration used when neither a file nor the
// environment supplies a value.
func Default() AppConfig {
	return AppConfig{
		ListenAddr:  ":8080",
		LogLevel:    "info",
		MetricsAddr: ":9090",
		Storage: StorageConfig{
			Backend:  StorageJSON,
			JSONPath: "data/flows.json",
		},
		Discovery: DiscoveryConfig{
			Enabled:     true,
			ServiceName: "_strom._tcp",
			SweepPeriod: 10 * time.Second,
			StaleAfter:  30 * time.Second,
		},
	}
}
