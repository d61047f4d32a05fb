// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package bridge_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permgate/permgate/internal/perm"
	"github.com/permgate/permgate/internal/perm/bridge"
	"github.com/permgate/permgate/internal/perm/contexts"
	"github.com/permgate/permgate/internal/perm/registry"
	"github.com/permgate/permgate/internal/perm/saving"
	"github.com/permgate/permgate/internal/perm/storage"
	"github.com/permgate/permgate/internal/perm/storage/yamlstore"
	"github.com/permgate/permgate/internal/perm/track"
	"github.com/permgate/permgate/pkg/errutil"
)

type harness struct {
	fs     afero.Fs
	store  storage.Store
	saver  *saving.Saver
	reg    *registry.Registry
	bridge *bridge.Bridge
}

func newHarness(t *testing.T, opts ...bridge.Option) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	st, err := yamlstore.NewWithFs(fs, "/data")
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	saver := saving.New(st, saving.WithLogger(log))
	t.Cleanup(saver.Drain)
	reg := registry.New(st, saver, log)
	opts = append([]bridge.Option{bridge.WithLogger(log)}, opts...)
	return &harness{
		fs:     fs,
		store:  st,
		saver:  saver,
		reg:    reg,
		bridge: bridge.New(reg, opts...),
	}
}

func (h *harness) actionCount(t *testing.T) int {
	t.Helper()
	h.saver.Drain()
	data, err := afero.ReadFile(h.fs, "/data/actions.yaml")
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "---")
}

func TestCheckPermissionUnknownUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	v, err := h.bridge.CheckPermission(ctx, uuid.New(), "fly.use", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Undefined, v)
}

func TestSetThenCheckPermission(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := uuid.New()

	res, err := h.bridge.SetPermission(ctx, id, "Fly.Use", true, bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Success, res)

	v, err := h.bridge.CheckPermission(ctx, id, "fly.use", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.True, v)

	// Same grant again is a no-op.
	res, err = h.bridge.SetPermission(ctx, id, "fly.use", true, bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.AlreadyHas, res)
	assert.False(t, res.AsBoolean())

	// Flipping the value mutates in place.
	res, err = h.bridge.SetPermission(ctx, id, "fly.use", false, bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.SuccessSetValue, res)

	v, err = h.bridge.CheckPermission(ctx, id, "fly.use", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.False, v)
}

func TestSetPermissionPersists(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := uuid.New()

	_, err := h.bridge.SetPermission(ctx, id, "fly.use", true, bridge.ContextDescriptor{})
	require.NoError(t, err)
	h.saver.Drain()

	stored, err := h.store.LoadUser(ctx, id)
	require.NoError(t, err)
	perms := make([]string, 0, len(stored.Nodes))
	for _, n := range stored.Nodes {
		perms = append(perms, n.Permission())
	}
	assert.Contains(t, perms, "fly.use")
	assert.GreaterOrEqual(t, h.actionCount(t), 1)
}

func TestUnsetPermission(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := uuid.New()

	res, err := h.bridge.UnsetPermission(ctx, id, "fly.use", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Lacks, res)

	_, err = h.bridge.SetPermission(ctx, id, "fly.use", false, bridge.ContextDescriptor{})
	require.NoError(t, err)

	// Unset matches regardless of stored value.
	res, err = h.bridge.UnsetPermission(ctx, id, "fly.use", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Success, res)

	v, err := h.bridge.CheckPermission(ctx, id, "fly.use", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Undefined, v)
}

func TestSetPermissionInvalid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.bridge.SetPermission(ctx, uuid.New(), "   ", true, bridge.ContextDescriptor{})
	assert.Equal(t, perm.Fail, res)
	errutil.AssertErrorCode(t, err, "INVALID_PERMISSION")
}

func TestScopedPermission(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := uuid.New()

	d := bridge.ContextDescriptor{Server: "hub"}
	_, err := h.bridge.SetPermission(ctx, id, "kit.vip", true, d)
	require.NoError(t, err)

	v, err := h.bridge.CheckPermission(ctx, id, "kit.vip", d)
	require.NoError(t, err)
	assert.Equal(t, perm.True, v)

	v, err = h.bridge.CheckPermission(ctx, id, "kit.vip", bridge.ContextDescriptor{Server: "lobby"})
	require.NoError(t, err)
	assert.Equal(t, perm.Undefined, v)
}

func TestTemporaryPermission(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := uuid.New()

	expiry := time.Now().Add(time.Hour)
	res, err := h.bridge.SetTemporaryPermission(ctx, id, "fly.use", true, expiry, bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Success, res)

	v, err := h.bridge.CheckPermission(ctx, id, "fly.use", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.True, v)

	// Re-granting with a different expiry reports the existing temp node.
	res, err = h.bridge.SetTemporaryPermission(ctx, id, "fly.use", true, expiry.Add(time.Hour), bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.AlreadyHasTemp, res)
}

func TestGroupPermissionAndInheritance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := uuid.New()

	_, err := h.reg.CreateGroup(ctx, "admin")
	require.NoError(t, err)
	res, err := h.bridge.SetGroupPermission(ctx, "admin", "admin.*", true, bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Success, res)

	v, err := h.bridge.CheckGroupPermission(ctx, "admin", "admin.kick", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.True, v)

	// Not a member yet.
	v, err = h.bridge.CheckPermission(ctx, id, "admin.kick", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Undefined, v)

	res, err = h.bridge.SetInheritance(ctx, id, "Admin", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Success, res)

	v, err = h.bridge.CheckPermission(ctx, id, "admin.kick", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.True, v)

	res, err = h.bridge.UnsetInheritance(ctx, id, "admin", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Success, res)

	v, err = h.bridge.CheckPermission(ctx, id, "admin.kick", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Undefined, v)
}

func TestSetInheritanceUnknownGroup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.bridge.SetInheritance(ctx, uuid.New(), "ghost", bridge.ContextDescriptor{})
	assert.Equal(t, perm.Fail, res)
	assert.True(t, storage.IsNotFound(err))
}

func TestGroupMutationInvalidatesMemberCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := uuid.New()

	_, err := h.reg.CreateGroup(ctx, "admin")
	require.NoError(t, err)
	_, err = h.bridge.SetInheritance(ctx, id, "admin", bridge.ContextDescriptor{})
	require.NoError(t, err)

	// Prime the cache with an Undefined answer.
	v, err := h.bridge.CheckPermission(ctx, id, "fly.use", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.Undefined, v)

	_, err = h.bridge.SetGroupPermission(ctx, "admin", "fly.use", true, bridge.ContextDescriptor{})
	require.NoError(t, err)

	v, err = h.bridge.CheckPermission(ctx, id, "fly.use", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.True, v)
}

func TestListGroupMembership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := uuid.New()

	for _, name := range []string{"default", "mod"} {
		_, err := h.reg.CreateGroup(ctx, name)
		require.NoError(t, err)
	}
	_, err := h.bridge.SetInheritance(ctx, id, "mod", bridge.ContextDescriptor{Server: "hub"})
	require.NoError(t, err)

	groups, err := h.bridge.ListGroupMembership(ctx, id, bridge.ContextDescriptor{Server: "hub"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mod", "default"}, groups)

	groups, err = h.bridge.ListGroupMembership(ctx, id, bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, groups)
}

func TestCalculatorsContributeToChecks(t *testing.T) {
	ctx := context.Background()
	calc := contexts.NewStaticCalculator(contexts.Of("region", "eu"))
	h := newHarness(t, bridge.WithCalculators(calc))
	id := uuid.New()

	_, err := h.bridge.SetPermission(ctx, id, "kit.regional", true, bridge.ContextDescriptor{
		Extra: map[string]string{"region": "eu"},
	})
	require.NoError(t, err)

	// The calculator supplies region=eu even though the caller sends none.
	v, err := h.bridge.CheckPermission(ctx, id, "kit.regional", bridge.ContextDescriptor{})
	require.NoError(t, err)
	assert.Equal(t, perm.True, v)
}

func trackHarness(t *testing.T, opts ...bridge.Option) (*harness, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	h := newHarness(t, opts...)
	for _, name := range []string{"default", "mod", "admin"} {
		_, err := h.reg.CreateGroup(ctx, name)
		require.NoError(t, err)
	}
	_, err := h.reg.CreateTrack(ctx, "staff", "default", "mod", "admin")
	require.NoError(t, err)
	return h, uuid.New()
}

func TestPromoteWalksTrack(t *testing.T) {
	ctx := context.Background()
	h, id := trackHarness(t)
	d := bridge.ContextDescriptor{}

	// Fresh users sit in the default group already.
	res, err := h.bridge.Promote(ctx, id, "staff", d, false)
	require.NoError(t, err)
	assert.Equal(t, track.Promoted, res.Outcome)
	assert.Equal(t, "default", res.From)
	assert.Equal(t, "mod", res.To)

	res, err = h.bridge.Promote(ctx, id, "staff", d, false)
	require.NoError(t, err)
	assert.Equal(t, track.Promoted, res.Outcome)
	assert.Equal(t, "admin", res.To)

	res, err = h.bridge.Promote(ctx, id, "staff", d, false)
	errutil.AssertErrorCode(t, err, "TRACK_END")
	assert.Equal(t, track.EndOfTrack, res.Outcome)
}

func TestDemoteWalksTrack(t *testing.T) {
	ctx := context.Background()
	h, id := trackHarness(t)
	d := bridge.ContextDescriptor{}

	_, err := h.bridge.Promote(ctx, id, "staff", d, false)
	require.NoError(t, err)

	res, err := h.bridge.Demote(ctx, id, "staff", d, false)
	require.NoError(t, err)
	assert.Equal(t, track.Demoted, res.Outcome)
	assert.Equal(t, "mod", res.From)
	assert.Equal(t, "default", res.To)

	// Default bridge removes from the track below the first entry.
	res, err = h.bridge.Demote(ctx, id, "staff", d, false)
	require.NoError(t, err)
	assert.Equal(t, track.RemovedFromFirst, res.Outcome)
}

func TestDemoteBelowFirstRejected(t *testing.T) {
	ctx := context.Background()
	h, id := trackHarness(t, bridge.WithDemoteRemovesFromFirst(false))
	d := bridge.ContextDescriptor{}

	res, err := h.bridge.Demote(ctx, id, "staff", d, false)
	errutil.AssertErrorCode(t, err, "TRACK_START")
	assert.Equal(t, track.StartOfTrack, res.Outcome)
}

func TestPromoteUnknownTrack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.bridge.Promote(ctx, uuid.New(), "ghost", bridge.ContextDescriptor{}, false)
	assert.True(t, storage.IsNotFound(err))
}

func TestSilentPromoteSkipsActionLog(t *testing.T) {
	ctx := context.Background()
	h, id := trackHarness(t)

	before := h.actionCount(t)
	_, err := h.bridge.Promote(ctx, id, "staff", bridge.ContextDescriptor{}, true)
	require.NoError(t, err)
	assert.Equal(t, before, h.actionCount(t))

	_, err = h.bridge.Promote(ctx, id, "staff", bridge.ContextDescriptor{}, false)
	require.NoError(t, err)
	assert.Equal(t, before+1, h.actionCount(t))
}
