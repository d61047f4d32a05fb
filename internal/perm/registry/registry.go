// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package registry keeps the loaded holders. It is the engine's unit of
// identity: at most one *holder.User per UUID and one *holder.Group per name
// are live at a time, so node mutations and cache invalidation observe a
// single object. The registry also implements holder.GroupResolver for the
// inheritance walk.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/permgate/permgate/internal/perm/actionlog"
	"github.com/permgate/permgate/internal/perm/contexts"
	"github.com/permgate/permgate/internal/perm/holder"
	"github.com/permgate/permgate/internal/perm/node"
	"github.com/permgate/permgate/internal/perm/saving"
	"github.com/permgate/permgate/internal/perm/storage"
	"github.com/permgate/permgate/internal/perm/track"
)

// Registry owns the loaded users, groups and tracks.
type Registry struct {
	mu     sync.RWMutex
	store  storage.Store
	saver  *saving.Saver
	log    *slog.Logger
	users  map[uuid.UUID]*holder.User
	groups map[string]*holder.Group
	tracks map[string]*track.Track
}

var _ holder.GroupResolver = (*Registry)(nil)

// New creates a Registry over store. Saves go through saver.
func New(store storage.Store, saver *saving.Saver, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		store:  store,
		saver:  saver,
		log:    log,
		users:  make(map[uuid.UUID]*holder.User),
		groups: make(map[string]*holder.Group),
		tracks: make(map[string]*track.Track),
	}
}

// GroupIfLoaded implements holder.GroupResolver. Only loaded groups
// participate in inheritance; unloaded group references resolve to nothing.
func (r *Registry) GroupIfLoaded(name string) *holder.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[strings.ToLower(name)]
}

// UserIfLoaded returns the loaded user or nil.
func (r *Registry) UserIfLoaded(id uuid.UUID) *holder.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[id]
}

// TrackIfLoaded returns the loaded track or nil.
func (r *Registry) TrackIfLoaded(name string) *track.Track {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracks[strings.ToLower(name)]
}

// LoadUser fetches a user from storage, creating a fresh one on first sight.
// New users start in the default group. Loading an already loaded user
// returns the live object without touching storage.
func (r *Registry) LoadUser(ctx context.Context, id uuid.UUID) (*holder.User, error) {
	r.mu.RLock()
	if u, ok := r.users[id]; ok {
		r.mu.RUnlock()
		return u, nil
	}
	r.mu.RUnlock()

	stored, err := r.store.LoadUser(ctx, id)
	if err != nil && !storage.IsNotFound(err) {
		return nil, err
	}

	u := holder.NewUser(id)
	if stored != nil {
		if stored.PrimaryGroup != "" {
			u.SetPrimaryGroup(stored.PrimaryGroup)
		}
		u.SetNodes(stored.Nodes)
	} else {
		membership, err := node.MakeGroup(holder.DefaultGroup, contexts.ImmutableContextSet{})
		if err != nil {
			return nil, err
		}
		u.SetNodes([]node.Node{membership})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.users[id]; ok {
		// Lost the race to another loader. Keep the first object.
		return existing, nil
	}
	r.users[id] = u
	return u, nil
}

// UnloadUser drops a user from memory. Pending saves still hold their own
// snapshot.
func (r *Registry) UnloadUser(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
}

// SaveUser snapshots the user's persisted state and writes it behind.
func (r *Registry) SaveUser(ctx context.Context, u *holder.User) *saving.Handle {
	snap := &storage.StoredUser{
		ID:           u.UUID(),
		PrimaryGroup: u.PrimaryGroup(),
		Nodes:        u.Nodes(),
	}
	return r.saver.SaveUser(ctx, snap)
}

// CreateGroup inserts the group in storage and loads it. Fails with
// GROUP_ALREADY_EXISTS when the name is taken.
func (r *Registry) CreateGroup(ctx context.Context, name string) (*holder.Group, error) {
	name = strings.ToLower(name)
	if err := r.store.CreateGroup(ctx, name); err != nil {
		return nil, err
	}
	g := holder.NewGroup(name)
	r.mu.Lock()
	r.groups[name] = g
	r.mu.Unlock()
	return g, nil
}

// LoadGroup fetches a group from storage. Loading an already loaded group
// returns the live object.
func (r *Registry) LoadGroup(ctx context.Context, name string) (*holder.Group, error) {
	name = strings.ToLower(name)
	r.mu.RLock()
	if g, ok := r.groups[name]; ok {
		r.mu.RUnlock()
		return g, nil
	}
	r.mu.RUnlock()

	stored, err := r.store.LoadGroup(ctx, name)
	if err != nil {
		return nil, err
	}

	g := holder.NewGroup(stored.Name)
	g.SetNodes(stored.Nodes)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.groups[name]; ok {
		return existing, nil
	}
	r.groups[name] = g
	return g, nil
}

// LoadAllGroups loads every stored group. Call at startup so inheritance
// resolves against the full group set.
func (r *Registry) LoadAllGroups(ctx context.Context) error {
	stored, err := r.store.LoadAllGroups(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sg := range stored {
		name := strings.ToLower(sg.Name)
		if _, ok := r.groups[name]; ok {
			continue
		}
		g := holder.NewGroup(name)
		g.SetNodes(sg.Nodes)
		r.groups[name] = g
	}
	return nil
}

// SaveGroup snapshots the group's persisted state and writes it behind.
func (r *Registry) SaveGroup(ctx context.Context, g *holder.Group) *saving.Handle {
	snap := &storage.StoredGroup{Name: g.Name(), Nodes: g.Nodes()}
	return r.saver.SaveGroup(ctx, snap)
}

// DeleteGroup removes the group from storage and memory, then invalidates
// every holder that inherited it.
func (r *Registry) DeleteGroup(ctx context.Context, name string) error {
	name = strings.ToLower(name)
	if name == holder.DefaultGroup {
		return oops.Code("VALIDATION_FAILED").Errorf("the %s group cannot be deleted", holder.DefaultGroup)
	}
	if err := r.store.DeleteGroup(ctx, name); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.groups, name)
	r.mu.Unlock()
	r.InvalidateDependentsOf(name)
	return nil
}

// InvalidateDependentsOf flushes the permission cache of every loaded holder
// that transitively inherits from the named group, and of the group itself.
// The inheritance scan over-approximates by ignoring contexts, trading a few
// spurious recomputes for never serving stale data.
func (r *Registry) InvalidateDependentsOf(name string) {
	name = strings.ToLower(name)

	r.mu.RLock()
	users := make([]*holder.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	groups := make([]*holder.Group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	r.mu.RUnlock()

	for _, g := range groups {
		if g.Name() == name || g.InheritsGroup(name, r) {
			g.Cache().Invalidate()
		}
	}
	for _, u := range users {
		if u.InheritsGroup(name, r) {
			u.Cache().Invalidate()
		}
	}
}

// CreateTrack validates and persists a new track.
func (r *Registry) CreateTrack(ctx context.Context, name string, groups ...string) (*track.Track, error) {
	t, err := track.New(name, groups...)
	if err != nil {
		return nil, err
	}
	snap := &storage.StoredTrack{Name: t.Name(), Groups: t.Groups()}
	if err := r.store.SaveTrack(ctx, snap); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.tracks[t.Name()] = t
	r.mu.Unlock()
	return t, nil
}

// LoadTrack fetches a track from storage.
func (r *Registry) LoadTrack(ctx context.Context, name string) (*track.Track, error) {
	name = strings.ToLower(name)
	r.mu.RLock()
	if t, ok := r.tracks[name]; ok {
		r.mu.RUnlock()
		return t, nil
	}
	r.mu.RUnlock()

	stored, err := r.store.LoadTrack(ctx, name)
	if err != nil {
		return nil, err
	}
	t, err := track.New(stored.Name, stored.Groups...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tracks[name]; ok {
		return existing, nil
	}
	r.tracks[name] = t
	return t, nil
}

// LoadAllTracks loads every stored track.
func (r *Registry) LoadAllTracks(ctx context.Context) error {
	stored, err := r.store.LoadAllTracks(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range stored {
		name := strings.ToLower(st.Name)
		if _, ok := r.tracks[name]; ok {
			continue
		}
		t, err := track.New(st.Name, st.Groups...)
		if err != nil {
			r.log.Warn("skipping malformed stored track",
				"track", st.Name,
				"error", err)
			continue
		}
		r.tracks[name] = t
	}
	return nil
}

// SaveTrack snapshots a track and writes it behind.
func (r *Registry) SaveTrack(ctx context.Context, t *track.Track) *saving.Handle {
	snap := &storage.StoredTrack{Name: t.Name(), Groups: t.Groups()}
	return r.saver.SaveTrack(ctx, snap)
}

// LogAction appends an audit entry behind the write queue.
func (r *Registry) LogAction(ctx context.Context, e actionlog.Entry) *saving.Handle {
	return r.saver.LogAction(ctx, e)
}

// DeleteTrack removes a track from storage and memory.
func (r *Registry) DeleteTrack(ctx context.Context, name string) error {
	name = strings.ToLower(name)
	if err := r.store.DeleteTrack(ctx, name); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.tracks, name)
	r.mu.Unlock()
	return nil
}

// PurgeExpired removes expired temporary nodes from every loaded holder,
// persisting holders that changed. Returns the number of nodes removed.
func (r *Registry) PurgeExpired(ctx context.Context, at time.Time) int {
	removed := 0
	for _, g := range r.LoadedGroups() {
		if dropped := g.AuditTemporaryNodes(at); len(dropped) > 0 {
			removed += len(dropped)
			r.InvalidateDependentsOf(g.Name())
			r.SaveGroup(ctx, g)
		}
	}
	for _, u := range r.LoadedUsers() {
		if dropped := u.AuditTemporaryNodes(at); len(dropped) > 0 {
			removed += len(dropped)
			r.SaveUser(ctx, u)
		}
	}
	if removed > 0 {
		r.log.Info("purged expired nodes", "count", removed)
	}
	return removed
}

// LoadedUsers returns the live user set, unordered.
func (r *Registry) LoadedUsers() []*holder.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]*holder.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	return users
}

// LoadedGroups returns the live group set, unordered.
func (r *Registry) LoadedGroups() []*holder.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make([]*holder.Group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	return groups
}

// LoadedTracks returns the live track set, unordered.
func (r *Registry) LoadedTracks() []*track.Track {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tracks := make([]*track.Track, 0, len(r.tracks))
	for _, t := range r.tracks {
		tracks = append(tracks, t)
	}
	return tracks
}
