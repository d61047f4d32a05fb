// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package holder implements permission holders (users and groups): node
// ownership, mutation, inheritance-aware resolution, and the per-context
// permission cache.
package holder

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/permgate/permgate/internal/perm"
	"github.com/permgate/permgate/internal/perm/node"
)

// DefaultGroup is the group every new user starts in.
const DefaultGroup = "default"

// Kind discriminates users from groups. Shared behavior lives on Holder;
// there is no deeper hierarchy.
type Kind int

// Holder kinds.
const (
	KindUser Kind = iota
	KindGroup
)

func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "user"
}

// GroupResolver looks up loaded groups by name during resolution. Groups
// are referenced by name only; holders never point at each other.
type GroupResolver interface {
	GroupIfLoaded(name string) *Group
}

// Holder owns an unordered collection of nodes. Reads may run concurrently;
// mutations are serialized by the embedded lock so a resolve never observes
// a torn node list.
type Holder struct {
	mu         sync.RWMutex
	identifier string
	kind       Kind

	// nodes persist; transientNodes live only for this process and are
	// where override nodes belong.
	nodes          []node.Node
	transientNodes []node.Node

	cache *PermissionCache
}

func newHolder(identifier string, kind Kind) Holder {
	return Holder{
		identifier: identifier,
		kind:       kind,
		cache:      NewPermissionCache(),
	}
}

// Identifier returns the holder's stable identity: the UUID string for
// users, the name for groups.
func (h *Holder) Identifier() string { return h.identifier }

// Kind returns whether this holder is a user or a group.
func (h *Holder) Kind() Kind { return h.kind }

// Cache returns the holder's permission cache.
func (h *Holder) Cache() *PermissionCache { return h.cache }

// Nodes returns a copy of the persisted nodes in declaration order.
func (h *Holder) Nodes() []node.Node {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]node.Node, len(h.nodes))
	copy(out, h.nodes)
	return out
}

// TransientNodes returns a copy of the non-persisted nodes.
func (h *Holder) TransientNodes() []node.Node {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]node.Node, len(h.transientNodes))
	copy(out, h.transientNodes)
	return out
}

// AllNodes returns transient nodes followed by persisted nodes. Transient
// nodes come first so that declaration-order tie-breaks favor them.
func (h *Holder) AllNodes() []node.Node {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.allNodesLocked()
}

func (h *Holder) allNodesLocked() []node.Node {
	out := make([]node.Node, 0, len(h.transientNodes)+len(h.nodes))
	out = append(out, h.transientNodes...)
	out = append(out, h.nodes...)
	return out
}

// SetNodes replaces the persisted node list wholesale. Used by storage when
// (re)loading a holder.
func (h *Holder) SetNodes(nodes []node.Node) {
	h.mu.Lock()
	h.nodes = make([]node.Node, len(nodes))
	copy(h.nodes, nodes)
	h.mu.Unlock()
	h.cache.Invalidate()
}

// SetNode adds a persisted node. An equal node (ignoring value) that
// already carries the same value is a no-op; one with the opposite value
// has its value flipped in place.
func (h *Holder) SetNode(n node.Node) perm.DataMutateResult {
	return h.setIn(&h.nodes, n)
}

// SetTransient adds a node that will not be persisted.
func (h *Holder) SetTransient(n node.Node) perm.DataMutateResult {
	return h.setIn(&h.transientNodes, n)
}

func (h *Holder) setIn(list *[]node.Node, n node.Node) perm.DataMutateResult {
	h.mu.Lock()
	result := perm.Fail
	for i, existing := range *list {
		if !existing.EqualsIgnoringValue(n) {
			continue
		}
		if existing.Value() == n.Value() {
			h.mu.Unlock()
			if existing.IsTemporary() {
				return perm.AlreadyHasTemp
			}
			return perm.AlreadyHas
		}
		(*list)[i] = n
		result = perm.SuccessSetValue
		break
	}
	if result == perm.Fail {
		*list = append(*list, n)
		result = perm.Success
	}
	h.mu.Unlock()
	h.cache.Invalidate()
	return result
}

// UnsetNode removes the persisted node equal to n ignoring value.
func (h *Holder) UnsetNode(n node.Node) perm.DataMutateResult {
	return h.unsetIn(&h.nodes, n, node.Node.EqualsIgnoringValue)
}

// UnsetTransient removes the transient node equal to n ignoring value.
func (h *Holder) UnsetTransient(n node.Node) perm.DataMutateResult {
	return h.unsetIn(&h.transientNodes, n, node.Node.EqualsIgnoringValue)
}

// UnsetNodeIgnoringTemp removes the persisted node equal to n ignoring
// value and expiry. Promote/demote matching uses this: a temporary
// membership still counts as membership.
func (h *Holder) UnsetNodeIgnoringTemp(n node.Node) perm.DataMutateResult {
	return h.unsetIn(&h.nodes, n, node.Node.EqualsIgnoringValueOrTemp)
}

func (h *Holder) unsetIn(list *[]node.Node, n node.Node, eq func(node.Node, node.Node) bool) perm.DataMutateResult {
	h.mu.Lock()
	for i, existing := range *list {
		if !eq(existing, n) {
			continue
		}
		*list = append((*list)[:i], (*list)[i+1:]...)
		h.mu.Unlock()
		h.cache.Invalidate()
		return perm.Success
	}
	h.mu.Unlock()
	if n.IsTemporary() {
		return perm.LacksTemp
	}
	return perm.Lacks
}

// ClearNodes drops every persisted node.
func (h *Holder) ClearNodes() perm.DataMutateResult {
	h.mu.Lock()
	had := len(h.nodes) > 0
	h.nodes = nil
	h.mu.Unlock()
	if !had {
		return perm.Lacks
	}
	h.cache.Invalidate()
	return perm.Success
}

// AuditTemporaryNodes removes expired temporary nodes from both lists and
// returns the removed nodes. Callers persist when anything was purged.
func (h *Holder) AuditTemporaryNodes(at time.Time) []node.Node {
	h.mu.Lock()
	var removed []node.Node
	h.nodes = purgeExpired(h.nodes, at, &removed)
	h.transientNodes = purgeExpired(h.transientNodes, at, &removed)
	h.mu.Unlock()
	if len(removed) > 0 {
		h.cache.Invalidate()
	}
	return removed
}

func purgeExpired(list []node.Node, at time.Time, removed *[]node.Node) []node.Node {
	kept := list[:0]
	for _, n := range list {
		if n.HasExpiredAt(at) {
			*removed = append(*removed, n)
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

// HasNode reports the tristate of a node equal to n ignoring value:
// True/False per the stored value, Undefined when absent.
func (h *Holder) HasNode(n node.Node) perm.Tristate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, existing := range h.allNodesLocked() {
		if existing.EqualsIgnoringValue(n) {
			return perm.TristateOf(existing.Value())
		}
	}
	return perm.Undefined
}

// User is a holder identified by UUID, with a mutable primary-group scalar.
type User struct {
	Holder

	id uuid.UUID

	pgMu         sync.Mutex
	primaryGroup string
}

// NewUser creates a user holder with the default primary group.
func NewUser(id uuid.UUID) *User {
	return &User{
		Holder:       newHolder(id.String(), KindUser),
		id:           id,
		primaryGroup: DefaultGroup,
	}
}

// UUID returns the user's identity.
func (u *User) UUID() uuid.UUID { return u.id }

// PrimaryGroup returns the primary-group scalar.
func (u *User) PrimaryGroup() string {
	u.pgMu.Lock()
	defer u.pgMu.Unlock()
	return u.primaryGroup
}

// SetPrimaryGroup updates the primary-group scalar.
func (u *User) SetPrimaryGroup(group string) {
	u.pgMu.Lock()
	u.primaryGroup = strings.ToLower(group)
	u.pgMu.Unlock()
}

// Group is a holder identified by its (lower-case) name. Groups never hold
// references to their members.
type Group struct {
	Holder
}

// NewGroup creates a group holder.
func NewGroup(name string) *Group {
	return &Group{Holder: newHolder(strings.ToLower(name), KindGroup)}
}

// Name returns the group's name.
func (g *Group) Name() string { return g.identifier }
