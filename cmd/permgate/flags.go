// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package main

import (
	"context"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/permgate/permgate/internal/logging"
	"github.com/permgate/permgate/internal/perm/bridge"
)

// descriptorFlags collects the context scoping flags shared by the one-shot
// commands.
type descriptorFlags struct {
	server string
	world  string
	extra  []string
}

func (f *descriptorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "server context the operation applies to")
	cmd.Flags().StringVar(&f.world, "world", "", "world context the operation applies to")
	cmd.Flags().StringArrayVar(&f.extra, "context", nil, "extra context pair as key=value (repeatable)")
}

func (f *descriptorFlags) descriptor() (bridge.ContextDescriptor, error) {
	d := bridge.ContextDescriptor{Server: f.server, World: f.world}
	for _, pair := range f.extra {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" || v == "" {
			return bridge.ContextDescriptor{}, oops.Code("CONFIG_INVALID").Errorf("context pair must be key=value, got %q", pair)
		}
		if d.Extra == nil {
			d.Extra = make(map[string]string)
		}
		d.Extra[k] = v
	}
	return d, nil
}

// withEngine loads config, sets up logging, builds the engine and runs fn,
// draining pending saves before returning.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logging.SetDefault(version, cfg.Log.Format)

	ctx := cmd.Context()
	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	return fn(ctx, eng)
}
