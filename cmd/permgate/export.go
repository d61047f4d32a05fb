// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/permgate/permgate/internal/perm/exporter"
	"github.com/permgate/permgate/internal/perm/storage"
)

// NewExportCmd creates the export subcommand.
func NewExportCmd() *cobra.Command {
	var userIDs []string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export groups and tracks to a YAML document",
		Long: `Export all groups and tracks to a versioned YAML document.
Users are included per --user flag; groups and tracks are always
exported in full.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				var users []*storage.StoredUser
				for _, raw := range userIDs {
					id, err := uuid.Parse(raw)
					if err != nil {
						return oops.Code("VALIDATION_FAILED").With("uuid", raw).Wrap(err)
					}
					u, err := eng.store.LoadUser(ctx, id)
					if err != nil {
						return err
					}
					users = append(users, u)
				}

				doc, err := exporter.Export(ctx, eng.store, users)
				if err != nil {
					return err
				}
				data, err := exporter.Marshal(doc)
				if err != nil {
					return err
				}
				if err := os.WriteFile(args[0], data, 0o600); err != nil {
					return oops.Code("EXPORT_FAILED").With("path", args[0]).Wrap(err)
				}

				cmd.Printf("Exported %d groups, %d tracks, %d users to %s\n",
					len(doc.Groups), len(doc.Tracks), len(doc.Users), args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&userIDs, "user", nil, "user UUID to include (repeatable)")
	addConfigFlags(cmd)

	return cmd
}

// NewImportCmd creates the import subcommand.
func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a YAML export document",
		Long: `Validate and import a previously exported document. Groups,
tracks and users in the document upsert over existing data.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return oops.Code("IMPORT_FAILED").With("path", args[0]).Wrap(err)
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				doc, err := exporter.Import(ctx, eng.store, data)
				if err != nil {
					return err
				}
				cmd.Printf("Imported %d groups, %d tracks, %d users from %s\n",
					len(doc.Groups), len(doc.Tracks), len(doc.Users), args[0])
				return nil
			})
		},
	}

	addConfigFlags(cmd)

	return cmd
}
