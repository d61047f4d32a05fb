// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the PermGate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permgate",
		Short: "PermGate - a permission policy engine",
		Long: `PermGate is a permission policy engine with contextual nodes,
group inheritance, tracks, and pluggable storage backends.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewSetCmd())
	cmd.AddCommand(NewUnsetCmd())
	cmd.AddCommand(NewGroupCmd())
	cmd.AddCommand(NewParentCmd())
	cmd.AddCommand(NewTrackCmd())
	cmd.AddCommand(NewPromoteCmd())
	cmd.AddCommand(NewDemoteCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewImportCmd())

	return cmd
}
