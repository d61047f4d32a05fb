// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package bridge is the narrow surface external adapters consume. It wraps
// the registry, engine and saving pipeline behind a handful of operations
// keyed by user UUID or group name, translating ContextDescriptor into the
// engine's context sets.
//
// Concurrency contract: checks are safe to call concurrently with anything;
// mutations on the same holder must be serialized by the caller (per-holder
// locks live below in the holder type, but save ordering between two writers
// of the same holder is last-write-wins).
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/permgate/permgate/internal/perm"
	"github.com/permgate/permgate/internal/perm/actionlog"
	"github.com/permgate/permgate/internal/perm/contexts"
	"github.com/permgate/permgate/internal/perm/holder"
	"github.com/permgate/permgate/internal/perm/node"
	"github.com/permgate/permgate/internal/perm/registry"
	"github.com/permgate/permgate/internal/perm/track"
)

// ContextDescriptor names where a check or mutation applies. Empty Server or
// World means unscoped. Extra carries additional context pairs.
type ContextDescriptor struct {
	Server string
	World  string
	Extra  map[string]string
}

// contextSet folds the descriptor into a single context set using the
// reserved server/world keys.
func (d ContextDescriptor) contextSet() contexts.ImmutableContextSet {
	m := contexts.NewMutable()
	if d.Server != "" {
		m.Add(contexts.KeyServer, d.Server)
	}
	if d.World != "" {
		m.Add(contexts.KeyWorld, d.World)
	}
	for k, v := range d.Extra {
		m.Add(k, v)
	}
	return m.Freeze()
}

// LookupFlags carries the default query flags applied to every check.
type LookupFlags struct {
	IncludeGlobal      bool
	IncludeGlobalWorld bool
	ApplyRegex         bool
}

// DefaultLookupFlags enables everything, matching DefaultLookup.
func DefaultLookupFlags() LookupFlags {
	return LookupFlags{IncludeGlobal: true, IncludeGlobalWorld: true, ApplyRegex: true}
}

// Bridge exposes the engine to adapters.
type Bridge struct {
	reg                *registry.Registry
	log                *slog.Logger
	flags              LookupFlags
	calcs              []contexts.Calculator
	demoteRemovesFirst bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithLookupFlags overrides the default query flags.
func WithLookupFlags(f LookupFlags) Option {
	return func(b *Bridge) { b.flags = f }
}

// WithCalculators registers dynamic context calculators. Calculators run on
// every check, contributing pairs on top of the caller's descriptor;
// mutations use the descriptor verbatim.
func WithCalculators(calcs ...contexts.Calculator) Option {
	return func(b *Bridge) { b.calcs = append(b.calcs, calcs...) }
}

// WithDemoteRemovesFromFirst controls whether demoting below the first track
// entry removes the user from the track (true) or is rejected (false).
func WithDemoteRemovesFromFirst(v bool) Option {
	return func(b *Bridge) { b.demoteRemovesFirst = v }
}

// New creates a Bridge over reg.
func New(reg *registry.Registry, opts ...Option) *Bridge {
	b := &Bridge{
		reg:                reg,
		log:                slog.Default(),
		flags:              DefaultLookupFlags(),
		demoteRemovesFirst: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) lookup(set contexts.ImmutableContextSet) perm.Lookup {
	lk := perm.DefaultLookup(set)
	lk.IncludeGlobal = b.flags.IncludeGlobal
	lk.IncludeGlobalWorld = b.flags.IncludeGlobalWorld
	lk.ApplyRegex = b.flags.ApplyRegex
	return lk
}

// queryContexts layers the calculators' dynamic pairs over the descriptor.
func (b *Bridge) queryContexts(ctx context.Context, subject string, d ContextDescriptor) (contexts.ImmutableContextSet, error) {
	if len(b.calcs) == 0 {
		return d.contextSet(), nil
	}
	m := d.contextSet().Mutable()
	for _, c := range b.calcs {
		if err := c.Calculate(ctx, subject, m); err != nil {
			return contexts.ImmutableContextSet{}, err
		}
	}
	return m.Freeze(), nil
}

// CheckPermission resolves a user's effective value for permission under the
// descriptor. Unknown users resolve through a freshly loaded (default-group)
// holder; lookups never hard-fail for absent grants.
func (b *Bridge) CheckPermission(ctx context.Context, id uuid.UUID, permission string, d ContextDescriptor) (perm.Tristate, error) {
	u, err := b.reg.LoadUser(ctx, id)
	if err != nil {
		return perm.Undefined, err
	}
	set, err := b.queryContexts(ctx, id.String(), d)
	if err != nil {
		return perm.Undefined, err
	}
	lk := b.lookup(set)
	data := u.PermissionData(lk, b.reg)
	return data.PermissionValue(strings.ToLower(permission), lk.ApplyRegex), nil
}

// CheckGroupPermission resolves a group's effective value for permission.
func (b *Bridge) CheckGroupPermission(ctx context.Context, group, permission string, d ContextDescriptor) (perm.Tristate, error) {
	g, err := b.reg.LoadGroup(ctx, group)
	if err != nil {
		return perm.Undefined, err
	}
	set, err := b.queryContexts(ctx, "group:"+g.Name(), d)
	if err != nil {
		return perm.Undefined, err
	}
	lk := b.lookup(set)
	data := g.PermissionData(lk, b.reg)
	return data.PermissionValue(strings.ToLower(permission), lk.ApplyRegex), nil
}

func buildNode(permission string, value bool, d ContextDescriptor) (node.Node, error) {
	return buildTempNode(permission, value, 0, d)
}

func buildTempNode(permission string, value bool, expiry int64, d ContextDescriptor) (node.Node, error) {
	builder := node.NewBuilder(permission).SetValue(value).SetExpiry(expiry)
	if d.Server != "" {
		builder = builder.SetServer(d.Server)
	}
	if d.World != "" {
		builder = builder.SetWorld(d.World)
	}
	for k, v := range d.Extra {
		builder = builder.WithContext(k, v)
	}
	return builder.Build()
}

// SetPermission grants or denies a permission on a user.
func (b *Bridge) SetPermission(ctx context.Context, id uuid.UUID, permission string, value bool, d ContextDescriptor) (perm.DataMutateResult, error) {
	u, err := b.reg.LoadUser(ctx, id)
	if err != nil {
		return perm.Fail, err
	}
	n, err := buildNode(permission, value, d)
	if err != nil {
		return perm.Fail, err
	}
	res := u.SetNode(n)
	if res.AsBoolean() {
		b.persistUser(ctx, u, fmt.Sprintf("setpermission %s %t", n.Permission(), value))
	}
	return res, nil
}

// UnsetPermission removes a permission from a user. The stored value does
// not need to match; only the permission and contexts do.
func (b *Bridge) UnsetPermission(ctx context.Context, id uuid.UUID, permission string, d ContextDescriptor) (perm.DataMutateResult, error) {
	u, err := b.reg.LoadUser(ctx, id)
	if err != nil {
		return perm.Fail, err
	}
	n, err := buildNode(permission, true, d)
	if err != nil {
		return perm.Fail, err
	}
	res := u.UnsetNode(n)
	if res.AsBoolean() {
		b.persistUser(ctx, u, "unsetpermission "+n.Permission())
	}
	return res, nil
}

// SetTemporaryPermission grants or denies a permission on a user that
// expires at the given instant.
func (b *Bridge) SetTemporaryPermission(ctx context.Context, id uuid.UUID, permission string, value bool, expiry time.Time, d ContextDescriptor) (perm.DataMutateResult, error) {
	u, err := b.reg.LoadUser(ctx, id)
	if err != nil {
		return perm.Fail, err
	}
	n, err := buildTempNode(permission, value, expiry.Unix(), d)
	if err != nil {
		return perm.Fail, err
	}
	res := u.SetNode(n)
	if res.AsBoolean() {
		b.persistUser(ctx, u, fmt.Sprintf("settemppermission %s %t until %d", n.Permission(), value, n.Expiry()))
	}
	return res, nil
}

// SetGroupPermission grants or denies a permission on a group and flushes
// dependent caches.
func (b *Bridge) SetGroupPermission(ctx context.Context, group, permission string, value bool, d ContextDescriptor) (perm.DataMutateResult, error) {
	g, err := b.reg.LoadGroup(ctx, group)
	if err != nil {
		return perm.Fail, err
	}
	n, err := buildNode(permission, value, d)
	if err != nil {
		return perm.Fail, err
	}
	res := g.SetNode(n)
	if res.AsBoolean() {
		b.persistGroup(ctx, g, fmt.Sprintf("setpermission %s %t", n.Permission(), value))
	}
	return res, nil
}

// UnsetGroupPermission removes a permission from a group and flushes
// dependent caches.
func (b *Bridge) UnsetGroupPermission(ctx context.Context, group, permission string, d ContextDescriptor) (perm.DataMutateResult, error) {
	g, err := b.reg.LoadGroup(ctx, group)
	if err != nil {
		return perm.Fail, err
	}
	n, err := buildNode(permission, true, d)
	if err != nil {
		return perm.Fail, err
	}
	res := g.UnsetNode(n)
	if res.AsBoolean() {
		b.persistGroup(ctx, g, "unsetpermission "+n.Permission())
	}
	return res, nil
}

// SetInheritance adds the user to a group under the descriptor's contexts.
// The group must be loaded or loadable.
func (b *Bridge) SetInheritance(ctx context.Context, id uuid.UUID, group string, d ContextDescriptor) (perm.DataMutateResult, error) {
	if _, err := b.reg.LoadGroup(ctx, group); err != nil {
		return perm.Fail, err
	}
	u, err := b.reg.LoadUser(ctx, id)
	if err != nil {
		return perm.Fail, err
	}
	n, err := node.MakeGroup(group, d.contextSet())
	if err != nil {
		return perm.Fail, err
	}
	res := u.SetNode(n)
	if res.AsBoolean() {
		b.persistUser(ctx, u, "addgroup "+strings.ToLower(group))
	}
	return res, nil
}

// UnsetInheritance removes the user from a group under the descriptor's
// contexts.
func (b *Bridge) UnsetInheritance(ctx context.Context, id uuid.UUID, group string, d ContextDescriptor) (perm.DataMutateResult, error) {
	u, err := b.reg.LoadUser(ctx, id)
	if err != nil {
		return perm.Fail, err
	}
	n, err := node.MakeGroup(group, d.contextSet())
	if err != nil {
		return perm.Fail, err
	}
	res := u.UnsetNode(n)
	if res.AsBoolean() {
		b.persistUser(ctx, u, "removegroup "+strings.ToLower(group))
	}
	return res, nil
}

// ListGroupMembership returns the groups the user belongs to under the
// descriptor, in resolution precedence order.
func (b *Bridge) ListGroupMembership(ctx context.Context, id uuid.UUID, d ContextDescriptor) ([]string, error) {
	u, err := b.reg.LoadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	set, err := b.queryContexts(ctx, id.String(), d)
	if err != nil {
		return nil, err
	}
	return u.GroupMembership(b.lookup(set), b.reg), nil
}

// Promote moves the user one step up the named track under the descriptor's
// contexts. Silent suppresses the audit entry.
func (b *Bridge) Promote(ctx context.Context, id uuid.UUID, trackName string, d ContextDescriptor, silent bool) (track.Result, error) {
	t, err := b.reg.LoadTrack(ctx, trackName)
	if err != nil {
		return track.Result{}, err
	}
	u, err := b.reg.LoadUser(ctx, id)
	if err != nil {
		return track.Result{}, err
	}
	res := t.PromoteUser(u, d.contextSet(), b.reg)
	if res.Outcome.Applied() {
		action := fmt.Sprintf("promote %s %s>%s", t.Name(), res.From, res.To)
		b.persistUserSilent(ctx, u, action, silent)
	}
	return res, trackOutcomeErr(res, t.Name())
}

// Demote moves the user one step down the named track under the
// descriptor's contexts.
func (b *Bridge) Demote(ctx context.Context, id uuid.UUID, trackName string, d ContextDescriptor, silent bool) (track.Result, error) {
	t, err := b.reg.LoadTrack(ctx, trackName)
	if err != nil {
		return track.Result{}, err
	}
	u, err := b.reg.LoadUser(ctx, id)
	if err != nil {
		return track.Result{}, err
	}
	res := t.DemoteUser(u, d.contextSet(), b.reg, b.demoteRemovesFirst)
	if res.Outcome.Applied() {
		action := fmt.Sprintf("demote %s %s>%s", t.Name(), res.From, res.To)
		b.persistUserSilent(ctx, u, action, silent)
	}
	return res, trackOutcomeErr(res, t.Name())
}

// trackOutcomeErr maps non-applied outcomes onto coded errors so adapters
// can distinguish them without inspecting the Result.
func trackOutcomeErr(res track.Result, trackName string) error {
	switch res.Outcome {
	case track.EndOfTrack:
		return oops.Code("TRACK_END").With("track", trackName).Errorf("already at the end of track %s", trackName)
	case track.StartOfTrack:
		return oops.Code("TRACK_START").With("track", trackName).Errorf("already at the start of track %s", trackName)
	case track.Ambiguous:
		return oops.Code("TRACK_AMBIGUOUS").With("track", trackName).Errorf("user is on track %s more than once", trackName)
	case track.NotOnTrack:
		return oops.Code("TRACK_NOT_ON").With("track", trackName).Errorf("user is not on track %s", trackName)
	case track.MalformedTrack:
		return oops.Code("TRACK_MALFORMED").With("track", trackName).Errorf("track %s references an unloaded group", trackName)
	}
	return nil
}

func (b *Bridge) persistUser(ctx context.Context, u *holder.User, action string) {
	b.persistUserSilent(ctx, u, action, false)
}

func (b *Bridge) persistUserSilent(ctx context.Context, u *holder.User, action string, silent bool) {
	b.log.Debug("persisting user mutation",
		"user", u.UUID().String(),
		"action", action)
	b.reg.SaveUser(ctx, u)
	if !silent {
		b.reg.LogAction(ctx, actionlog.New("bridge", "user "+u.UUID().String(), action))
	}
}

func (b *Bridge) persistGroup(ctx context.Context, g *holder.Group, action string) {
	b.reg.InvalidateDependentsOf(g.Name())
	b.reg.SaveGroup(ctx, g)
	b.reg.LogAction(ctx, actionlog.New("bridge", "group "+g.Name(), action))
}
