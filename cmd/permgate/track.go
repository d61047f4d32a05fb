// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/permgate/permgate/internal/perm/bridge"
	"github.com/permgate/permgate/internal/perm/track"
)

// NewPromoteCmd creates the promote subcommand.
func NewPromoteCmd() *cobra.Command {
	return newTrackMoveCmd("promote", "Promote a user along a track",
		func(ctx context.Context, eng *engine, id uuid.UUID, trackName string, d trackMoveArgs) (track.Result, error) {
			return eng.bridge.Promote(ctx, id, trackName, d.descriptor, d.silent)
		})
}

// NewDemoteCmd creates the demote subcommand.
func NewDemoteCmd() *cobra.Command {
	return newTrackMoveCmd("demote", "Demote a user along a track",
		func(ctx context.Context, eng *engine, id uuid.UUID, trackName string, d trackMoveArgs) (track.Result, error) {
			return eng.bridge.Demote(ctx, id, trackName, d.descriptor, d.silent)
		})
}

type trackMoveArgs struct {
	descriptor bridge.ContextDescriptor
	silent     bool
}

func newTrackMoveCmd(verb, short string, move func(context.Context, *engine, uuid.UUID, string, trackMoveArgs) (track.Result, error)) *cobra.Command {
	var flags descriptorFlags
	var silent bool

	cmd := &cobra.Command{
		Use:   verb + " <user-uuid> <track>",
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
				res, err := move(ctx, eng, id, args[1], trackMoveArgs{descriptor: d, silent: silent})
				if err != nil {
					return err
				}
				printTrackResult(cmd, res)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&silent, "silent", false, "skip the action log entry")
	addConfigFlags(cmd)

	return cmd
}

// NewTrackCmd creates the track subcommand managing track definitions.
func NewTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Manage promotion tracks",
	}

	create := &cobra.Command{
		Use:   "create <name> <group>...",
		Short: "Create a track from an ordered list of groups",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				if _, err := eng.reg.CreateTrack(ctx, args[0], args[1:]...); err != nil {
					return err
				}
				cmd.Println("Track created:", args[0])
				return nil
			})
		},
	}
	addConfigFlags(create)
	cmd.AddCommand(create)

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				if err := eng.reg.DeleteTrack(ctx, args[0]); err != nil {
					return err
				}
				cmd.Println("Track deleted:", args[0])
				return nil
			})
		},
	}
	addConfigFlags(del)
	cmd.AddCommand(del)

	list := &cobra.Command{
		Use:   "list",
		Short: "List all tracks and their groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine) error {
				for _, t := range eng.reg.LoadedTracks() {
					cmd.Printf("%s: %v\n", t.Name(), t.Groups())
				}
				return nil
			})
		},
	}
	addConfigFlags(list)
	cmd.AddCommand(list)

	return cmd
}

func printTrackResult(cmd *cobra.Command, res track.Result) {
	switch {
	case res.From != "" && res.To != "":
		cmd.Printf("%s: %s -> %s\n", res.Outcome, res.From, res.To)
	case res.To != "":
		cmd.Printf("%s: -> %s\n", res.Outcome, res.To)
	case res.From != "":
		cmd.Printf("%s: %s ->\n", res.Outcome, res.From)
	default:
		cmd.Println(res.Outcome.String())
	}
}
