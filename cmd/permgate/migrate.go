// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/permgate/permgate/internal/perm/storage/postgres"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending database migrations against the PostgreSQL database.`,
		RunE:  runMigrateUp,
	}
	addConfigFlags(cmd)

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current migration version and pending migrations",
		RunE:  runMigrateStatus,
	}
	addConfigFlags(status)
	cmd.AddCommand(status)

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE:  runMigrateDown,
	}
	addConfigFlags(down)
	cmd.AddCommand(down)

	return cmd
}

func openMigrator(cmd *cobra.Command) (*postgres.Migrator, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Backend != "postgres" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("migrations only apply to the postgres backend, got %q", cfg.Storage.Backend)
	}
	return postgres.NewMigrator(cfg.Storage.DatabaseURL)
}

func closeMigrator(cmd *cobra.Command, m *postgres.Migrator) {
	if err := m.Close(); err != nil {
		cmd.PrintErrln("warning: closing migrator:", err)
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return err
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		cmd.Println("No migrations applied yet")
	} else {
		name, nameErr := postgres.MigrationName(version)
		if nameErr != nil {
			name = "unknown"
		}
		cmd.Printf("Current version: %d (%s)", version, name)
		if dirty {
			cmd.Printf(" DIRTY")
		}
		cmd.Println()
	}

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Println("Pending migrations:")
	for _, v := range pending {
		name, nameErr := postgres.MigrationName(v)
		if nameErr != nil {
			name = "unknown"
		}
		cmd.Printf("  %d (%s)\n", v, name)
	}
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	cmd.Println("Rolling back one migration...")
	if err := m.Steps(-1); err != nil {
		return err
	}

	cmd.Println("Rollback completed")
	return nil
}
