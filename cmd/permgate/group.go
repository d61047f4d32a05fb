// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package main

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewGroupCmd creates the group subcommand and its children.
func NewGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				if _, err := eng.reg.CreateGroup(ctx, args[0]); err != nil {
					return err
				}
				cmd.Println("Group created:", args[0])
				return nil
			})
		},
	}
	addConfigFlags(create)
	cmd.AddCommand(create)

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				if err := eng.reg.DeleteGroup(ctx, args[0]); err != nil {
					return err
				}
				cmd.Println("Group deleted:", args[0])
				return nil
			})
		},
	}
	addConfigFlags(del)
	cmd.AddCommand(del)

	list := &cobra.Command{
		Use:   "list",
		Short: "List all groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				groups := eng.reg.LoadedGroups()
				names := make([]string, 0, len(groups))
				for _, g := range groups {
					names = append(names, g.Name())
				}
				sort.Strings(names)
				for _, name := range names {
					cmd.Println(name)
				}
				return nil
			})
		},
	}
	addConfigFlags(list)
	cmd.AddCommand(list)

	return cmd
}

// NewParentCmd creates the parent subcommand managing user inheritance.
func NewParentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parent",
		Short: "Manage group inheritance for a user",
	}

	cmd.AddCommand(newParentMutateCmd("add", "Add a user to a group", true))
	cmd.AddCommand(newParentMutateCmd("remove", "Remove a user from a group", false))

	var listFlags descriptorFlags
	list := &cobra.Command{
		Use:   "list <user-uuid>",
		Short: "List the groups a user belongs to under the given contexts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := listFlags.descriptor()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return oops.Code("VALIDATION_FAILED").With("uuid", args[0]).Wrap(err)
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				groups, err := eng.bridge.ListGroupMembership(ctx, id, d)
				if err != nil {
					return err
				}
				for _, name := range groups {
					cmd.Println(name)
				}
				return nil
			})
		},
	}
	listFlags.register(list)
	addConfigFlags(list)
	cmd.AddCommand(list)

	return cmd
}

func newParentMutateCmd(verb, short string, add bool) *cobra.Command {
	var flags descriptorFlags

	cmd := &cobra.Command{
		Use:   verb + " <user-uuid> <group>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.descriptor()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return oops.Code("VALIDATION_FAILED").With("uuid", args[0]).Wrap(err)
			}
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				mutate := eng.bridge.UnsetInheritance
				if add {
					mutate = eng.bridge.SetInheritance
				}
				res, err := mutate(ctx, id, args[1], d)
				if err != nil {
					return err
				}
				cmd.Println(res.String())
				return nil
			})
		},
	}

	flags.register(cmd)
	addConfigFlags(cmd)

	return cmd
}
