// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/permgate/permgate/internal/perm/duration"
)

// NewCheckCmd creates the check subcommand.
func NewCheckCmd() *cobra.Command {
	var flags descriptorFlags
	var group string

	cmd := &cobra.Command{
		Use:   "check <user-uuid> <permission>",
		Short: "Resolve a permission for a user or group",
		Long: `Resolve a permission under the given contexts and print the
tristate outcome (true, false or undefined). With --group the first
argument is ignored and the group's own data is queried instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.descriptor()
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				if group != "" {
					state, err := eng.bridge.CheckGroupPermission(ctx, group, args[1], d)
					if err != nil {
						return err
					}
					cmd.Println(state.String())
					return nil
				}
				id, err := uuid.Parse(args[0])
				if err != nil {
					return oops.Code("VALIDATION_FAILED").With("uuid", args[0]).Wrap(err)
				}
				state, err := eng.bridge.CheckPermission(ctx, id, args[1], d)
				if err != nil {
					return err
				}
				cmd.Println(state.String())
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&group, "group", "", "query a group instead of a user")
	addConfigFlags(cmd)

	return cmd
}

// NewSetCmd creates the set subcommand.
func NewSetCmd() *cobra.Command {
	var flags descriptorFlags
	var group, expiresIn string
	var deny bool

	cmd := &cobra.Command{
		Use:   "set <user-uuid> <permission>",
		Short: "Grant or deny a permission",
		Long: `Grant a permission to a user, or deny it with --deny. With
--group the first argument is ignored and the group is mutated instead.
--expires-in takes a span like 30d or 1h30m for a temporary grant.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.descriptor()
			if err != nil {
				return err
			}
			var expiry time.Time
			if expiresIn != "" {
				span, err := duration.Parse(expiresIn)
				if err != nil {
					return err
				}
				expiry = time.Now().Add(span)
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				if group != "" {
					if !expiry.IsZero() {
						return oops.Code("VALIDATION_FAILED").Errorf("temporary grants on groups are not supported from the CLI")
					}
					res, err := eng.bridge.SetGroupPermission(ctx, group, args[1], !deny, d)
					if err != nil {
						return err
					}
					cmd.Println(res.String())
					return nil
				}
				id, err := uuid.Parse(args[0])
				if err != nil {
					return oops.Code("VALIDATION_FAILED").With("uuid", args[0]).Wrap(err)
				}
				if !expiry.IsZero() {
					res, err := eng.bridge.SetTemporaryPermission(ctx, id, args[1], !deny, expiry, d)
					if err != nil {
						return err
					}
					cmd.Println(res.String())
					return nil
				}
				res, err := eng.bridge.SetPermission(ctx, id, args[1], !deny, d)
				if err != nil {
					return err
				}
				cmd.Println(res.String())
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&group, "group", "", "mutate a group instead of a user")
	cmd.Flags().BoolVar(&deny, "deny", false, "deny the permission instead of granting it")
	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "make the grant temporary, e.g. 30d or 1h30m")
	addConfigFlags(cmd)

	return cmd
}

// NewUnsetCmd creates the unset subcommand.
func NewUnsetCmd() *cobra.Command {
	var flags descriptorFlags
	var group string

	cmd := &cobra.Command{
		Use:   "unset <user-uuid> <permission>",
		Short: "Remove a permission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.descriptor()
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				if group != "" {
					res, err := eng.bridge.UnsetGroupPermission(ctx, group, args[1], d)
					if err != nil {
						return err
					}
					cmd.Println(res.String())
					return nil
				}
				id, err := uuid.Parse(args[0])
				if err != nil {
					return oops.Code("VALIDATION_FAILED").With("uuid", args[0]).Wrap(err)
				}
				res, err := eng.bridge.UnsetPermission(ctx, id, args[1], d)
				if err != nil {
					return err
				}
				cmd.Println(res.String())
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&group, "group", "", "mutate a group instead of a user")
	addConfigFlags(cmd)

	return cmd
}
