// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package track

import (
	"strings"

	"github.com/permgate/permgate/internal/perm/contexts"
	"github.com/permgate/permgate/internal/perm/holder"
	"github.com/permgate/permgate/internal/perm/node"
)

// Outcome classifies the result of a promote/demote call. Only Promoted,
// Demoted, AddedToFirst and RemovedFromFirst mutate the user.
type Outcome int

// Promotion and demotion outcomes.
const (
	// Promoted / Demoted: the user moved one entry along the track.
	Promoted Outcome = iota
	Demoted
	// AddedToFirst: the user held no track group, so promote joined them
	// to the first entry. Not an error.
	AddedToFirst
	// RemovedFromFirst: demote below the first entry removed the user from
	// the track (when configured to do so).
	RemovedFromFirst
	// EndOfTrack / StartOfTrack: the user already holds the last (first)
	// entry and the move was rejected. No mutation.
	EndOfTrack
	StartOfTrack
	// NotOnTrack: demote found no qualifying membership. No mutation.
	NotOnTrack
	// Ambiguous: more than one track group matched the context. No
	// mutation; the caller must not guess.
	Ambiguous
	// MalformedTrack: the destination group is not loaded, so the move
	// could not be performed.
	MalformedTrack
)

var outcomeStrings = [...]string{
	"promoted",
	"demoted",
	"added_to_first",
	"removed_from_first",
	"end_of_track",
	"start_of_track",
	"not_on_track",
	"ambiguous",
	"malformed_track",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeStrings) {
		return outcomeStrings[o]
	}
	return "malformed_track"
}

// Applied reports whether the outcome mutated the user and should be
// persisted.
func (o Outcome) Applied() bool {
	switch o {
	case Promoted, Demoted, AddedToFirst, RemovedFromFirst:
		return true
	default:
		return false
	}
}

// Result describes a promote/demote: the outcome plus the groups moved
// between. From is empty for AddedToFirst; To is empty for
// RemovedFromFirst and for non-mutating outcomes.
type Result struct {
	Outcome Outcome
	From    string
	To      string
}

// membership returns the user's group nodes that sit on this track and
// whose full context equals ctx exactly.
func (t *Track) membership(u *holder.User, ctx contexts.ImmutableContextSet) []node.Node {
	var out []node.Node
	for _, n := range u.Nodes() {
		if !n.IsGroupNode() || n.IsNegated() {
			continue
		}
		if !n.FullContexts().Equals(ctx) {
			continue
		}
		if !t.ContainsGroup(n.GroupName()) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// PromoteUser advances the user one entry along the track for the given
// context. A user holding no track group joins the first entry. The
// primary-group scalar follows the move only when the promotion is in the
// global (empty) context and the scalar equals the group moved from.
func (t *Track) PromoteUser(u *holder.User, ctx contexts.ImmutableContextSet, groups holder.GroupResolver) Result {
	current := t.membership(u, ctx)

	if len(current) == 0 {
		first := t.First()
		if first == "" || groups.GroupIfLoaded(first) == nil {
			return Result{Outcome: MalformedTrack, To: first}
		}
		n, err := node.MakeGroup(first, ctx)
		if err != nil {
			return Result{Outcome: MalformedTrack, To: first}
		}
		u.SetNode(n)
		return Result{Outcome: AddedToFirst, To: first}
	}

	if len(current) != 1 {
		return Result{Outcome: Ambiguous}
	}

	oldNode := current[0]
	old := oldNode.GroupName()
	next, err := t.Next(old)
	if err != nil {
		return Result{Outcome: MalformedTrack, From: old}
	}
	if next == "" {
		return Result{Outcome: EndOfTrack, From: old}
	}
	if groups.GroupIfLoaded(next) == nil {
		return Result{Outcome: MalformedTrack, From: old, To: next}
	}

	newNode, err := node.MakeGroup(next, ctx)
	if err != nil {
		return Result{Outcome: MalformedTrack, From: old, To: next}
	}
	u.UnsetNodeIgnoringTemp(oldNode)
	u.SetNode(newNode)

	if ctx.IsEmpty() && strings.EqualFold(u.PrimaryGroup(), old) {
		u.SetPrimaryGroup(next)
	}

	return Result{Outcome: Promoted, From: old, To: next}
}

// DemoteUser moves the user one entry back along the track. Demoting below
// the first entry removes the user from the track when removeFromFirst is
// set, and is rejected with StartOfTrack otherwise.
func (t *Track) DemoteUser(u *holder.User, ctx contexts.ImmutableContextSet, groups holder.GroupResolver, removeFromFirst bool) Result {
	current := t.membership(u, ctx)

	if len(current) == 0 {
		return Result{Outcome: NotOnTrack}
	}
	if len(current) != 1 {
		return Result{Outcome: Ambiguous}
	}

	oldNode := current[0]
	old := oldNode.GroupName()
	previous, err := t.Previous(old)
	if err != nil {
		return Result{Outcome: MalformedTrack, From: old}
	}

	if previous == "" {
		if !removeFromFirst {
			return Result{Outcome: StartOfTrack, From: old}
		}
		u.UnsetNodeIgnoringTemp(oldNode)
		return Result{Outcome: RemovedFromFirst, From: old}
	}

	if groups.GroupIfLoaded(previous) == nil {
		return Result{Outcome: MalformedTrack, From: old, To: previous}
	}
	newNode, err := node.MakeGroup(previous, ctx)
	if err != nil {
		return Result{Outcome: MalformedTrack, From: old, To: previous}
	}
	u.UnsetNodeIgnoringTemp(oldNode)
	u.SetNode(newNode)

	if ctx.IsEmpty() && strings.EqualFold(u.PrimaryGroup(), old) {
		u.SetPrimaryGroup(previous)
	}

	return Result{Outcome: Demoted, From: old, To: previous}
}
