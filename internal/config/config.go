// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package config loads runtime configuration from an optional YAML file with
// flag overrides layered on top.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Storage selects and parameterizes the persistence backend.
type Storage struct {
	// Backend is "postgres" or "yaml".
	Backend     string `koanf:"backend"`
	DatabaseURL string `koanf:"database_url"`
	// Directory roots the yaml backend. Empty means the XDG data dir.
	Directory string `koanf:"directory"`
}

// Lookup carries the default query flags.
type Lookup struct {
	IncludeGlobal      bool `koanf:"include_global"`
	IncludeGlobalWorld bool `koanf:"include_global_world"`
	ApplyRegex         bool `koanf:"apply_regex"`
}

// Track carries promotion/demotion policy knobs.
type Track struct {
	// DemoteRemovesFromFirst makes demoting below the first entry remove
	// the user from the track instead of rejecting the demotion.
	DemoteRemovesFromFirst bool `koanf:"demote_removes_from_first"`
}

// Contexts configures dynamic context calculation.
type Contexts struct {
	// LuaScript is the path of a calculator script, empty to disable.
	LuaScript string `koanf:"lua_script"`
	// Static pairs are added to every query.
	Static map[string]string `koanf:"static"`
}

// Log configures the slog setup.
type Log struct {
	// Format is "json" or "text".
	Format string `koanf:"format"`
}

// Config is the root configuration document.
type Config struct {
	Storage  Storage  `koanf:"storage"`
	Lookup   Lookup   `koanf:"lookup"`
	Track    Track    `koanf:"track"`
	Contexts Contexts `koanf:"contexts"`
	Log      Log      `koanf:"log"`
	// MetricsAddr serves metrics and health, empty to disable.
	MetricsAddr string `koanf:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: Storage{Backend: "yaml"},
		Lookup: Lookup{
			IncludeGlobal:      true,
			IncludeGlobalWorld: true,
			ApplyRegex:         true,
		},
		Track:       Track{DemoteRemovesFromFirst: true},
		Log:         Log{Format: "json"},
		MetricsAddr: "127.0.0.1:9100",
	}
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("storage.database_url is required for the postgres backend")
		}
	case "yaml":
	default:
		return oops.Code("CONFIG_INVALID").Errorf("storage.backend must be 'postgres' or 'yaml', got %q", c.Storage.Backend)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	return nil
}

// Load layers the YAML file at path (if non-empty) and the given flag set
// (if non-nil) over the defaults. Flags use dotted names matching the koanf
// keys, e.g. --storage.backend.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if os.IsNotExist(err) {
				return Config{}, oops.Code("CONFIG_NOT_FOUND").With("path", path).Wrap(err)
			}
			return Config{}, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
