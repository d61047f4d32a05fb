// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/permgate/permgate/internal/config"
	"github.com/permgate/permgate/internal/perm/bridge"
	"github.com/permgate/permgate/internal/perm/contexts"
	"github.com/permgate/permgate/internal/perm/registry"
	"github.com/permgate/permgate/internal/perm/saving"
	"github.com/permgate/permgate/internal/perm/storage"
	"github.com/permgate/permgate/internal/perm/storage/postgres"
	"github.com/permgate/permgate/internal/perm/storage/yamlstore"
	"github.com/permgate/permgate/internal/xdg"
)

// engine bundles the wired components behind one lifecycle.
type engine struct {
	store  storage.Store
	saver  *saving.Saver
	reg    *registry.Registry
	bridge *bridge.Bridge
	lua    *contexts.LuaCalculator
}

// openStore selects the backend named by the config.
func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		return postgres.New(ctx, cfg.Storage.DatabaseURL)
	case "yaml":
		dir := cfg.Storage.Directory
		if dir == "" {
			dir = filepath.Join(xdg.DataDir(), "storage")
		}
		if err := xdg.EnsureDir(dir); err != nil {
			return nil, oops.Code("STORAGE_INIT_FAILED").Wrap(err)
		}
		return yamlstore.New(dir)
	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildEngine wires storage, registry, calculators and bridge from config
// and loads all groups and tracks.
func buildEngine(ctx context.Context, cfg config.Config) (*engine, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	saver := saving.New(store, saving.WithLogger(slog.Default()))
	reg := registry.New(store, saver, slog.Default())

	if err := reg.LoadAllGroups(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if err := reg.LoadAllTracks(ctx); err != nil {
		store.Close()
		return nil, err
	}

	e := &engine{store: store, saver: saver, reg: reg}

	var calcs []contexts.Calculator
	if len(cfg.Contexts.Static) > 0 {
		m := contexts.NewMutable()
		for k, v := range cfg.Contexts.Static {
			m.Add(k, v)
		}
		calcs = append(calcs, contexts.NewStaticCalculator(m.Freeze()))
	}
	if cfg.Contexts.LuaScript != "" {
		script, err := os.ReadFile(cfg.Contexts.LuaScript)
		if err != nil {
			store.Close()
			return nil, oops.Code("CONFIG_INVALID").With("path", cfg.Contexts.LuaScript).Wrap(err)
		}
		luaCalc, err := contexts.NewLuaCalculator(string(script))
		if err != nil {
			store.Close()
			return nil, err
		}
		e.lua = luaCalc
		calcs = append(calcs, luaCalc)
	}

	e.bridge = bridge.New(reg,
		bridge.WithLogger(slog.Default()),
		bridge.WithLookupFlags(bridge.LookupFlags{
			IncludeGlobal:      cfg.Lookup.IncludeGlobal,
			IncludeGlobalWorld: cfg.Lookup.IncludeGlobalWorld,
			ApplyRegex:         cfg.Lookup.ApplyRegex,
		}),
		bridge.WithCalculators(calcs...),
		bridge.WithDemoteRemovesFromFirst(cfg.Track.DemoteRemovesFromFirst),
	)

	return e, nil
}

// Close drains pending saves and releases resources.
func (e *engine) Close() {
	e.saver.Drain()
	if e.lua != nil {
		e.lua.Close()
	}
	e.store.Close()
}
