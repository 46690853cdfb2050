// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader resolves an AppConfig from a YAML file overlaid by environment
// variables, in that precedence order (env wins).
type Loader struct {
	path   string
	lookup envLookupFunc
}

// NewLoader creates a Loader reading from the given YAML path. An empty
// path skips file loading entirely.
func NewLoader(path string) *Loader {
	return &Loader{path: path, lookup: osLookup}
}

// Load resolves the configuration: defaults, then file, then environment.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return AppConfig{}, fmt.Errorf("config: parse %s: %w", l.path, err)
			}
		case os.IsNotExist(err):
			// No file is not an error: defaults plus environment still apply.
		default:
			return AppConfig{}, fmt.Errorf("config: read %s: %w", l.path, err)
		}
	}

	cfg = applyEnv(cfg, l.lookup)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
