// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package holder

import (
	"sort"
	"strings"

	"github.com/permgate/permgate/internal/perm"
	"github.com/permgate/permgate/internal/perm/node"
)

// sourcedNode is a node tagged with its inheritance distance: 0 for the
// holder's own nodes, 1 for a direct group, 2 for a group-of-group, and so
// on. Collection order doubles as the declaration-order tie-break.
type sourcedNode struct {
	n        node.Node
	distance int
}

// ResolveSortedNodes produces the inheritance-expanded, precedence-sorted
// view of every node that applies under the lookup. Precedence, highest
// first: override flag, context specificity, source distance (closer wins),
// wildcard level (more literal wins), then declaration order (stable).
//
// Group inheritance cycles are silently broken by a visited set: a
// misconfigured graph must never crash or double-count during evaluation.
func (h *Holder) ResolveSortedNodes(lk perm.Lookup, groups GroupResolver) []node.Node {
	visited := make(map[string]struct{})
	if h.kind == KindGroup {
		visited[h.identifier] = struct{}{}
	}

	collected := make([]sourcedNode, 0, 16)
	collected = h.collect(collected, lk, groups, 0, visited)

	sort.SliceStable(collected, func(i, j int) bool {
		a, b := collected[i], collected[j]
		if a.n.IsOverride() != b.n.IsOverride() {
			return a.n.IsOverride()
		}
		if as, bs := a.n.ContextSpecificity(), b.n.ContextSpecificity(); as != bs {
			return as > bs
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if aw, bw := a.n.WildcardLevel(), b.n.WildcardLevel(); aw != bw {
			return aw < bw
		}
		return false // stable: declaration order
	})

	out := make([]node.Node, len(collected))
	for i, sn := range collected {
		out[i] = sn.n
	}
	return out
}

// collect appends the holder's applicable nodes and recurses into inherited
// groups when the lookup resolves inheritance.
func (h *Holder) collect(acc []sourcedNode, lk perm.Lookup, groups GroupResolver, distance int, visited map[string]struct{}) []sourcedNode {
	own := h.AllNodes()

	applicable := make([]node.Node, 0, len(own))
	for _, n := range own {
		if n.IsTemporary() && !lk.IncludeTempNodes {
			continue
		}
		if !n.ShouldApply(lk.IncludeGlobal, lk.IncludeGlobalWorld, lk.Server(), lk.World(), lk.Contexts, lk.ApplyRegex) {
			continue
		}
		applicable = append(applicable, n)
		acc = append(acc, sourcedNode{n: n, distance: distance})
	}

	if !lk.ResolveInheritance {
		return acc
	}

	for _, n := range applicable {
		if !n.IsGroupNode() || n.IsNegated() {
			continue
		}
		name := n.GroupName()
		if _, seen := visited[name]; seen {
			continue
		}
		visited[name] = struct{}{}
		g := groups.GroupIfLoaded(name)
		if g == nil {
			continue
		}
		acc = g.collect(acc, lk, groups, distance+1, visited)
	}
	return acc
}

// ExportPermissions runs the full resolution and merges the sorted nodes
// into a permission map: for each node, each permission string it expands
// to is inserted only if not already present, so the first (highest
// precedence) write per name wins.
func (h *Holder) ExportPermissions(lk perm.Lookup, groups GroupResolver) *PermissionData {
	sorted := h.ResolveSortedNodes(lk, groups)

	m := make(map[string]bool, len(sorted))
	var regexes []node.Node
	for _, n := range sorted {
		if n.IsRegex() {
			if _, exists := m[n.Permission()]; !exists {
				m[n.Permission()] = n.Value()
				regexes = append(regexes, n)
			}
			continue
		}
		for _, expanded := range n.ResolveShorthand() {
			if _, exists := m[expanded]; exists {
				continue
			}
			m[expanded] = n.Value()
		}
	}

	return &PermissionData{m: m, regexes: regexes}
}

// GroupMembership lists the names of groups the holder directly inherits
// under the lookup, in resolution precedence order.
func (h *Holder) GroupMembership(lk perm.Lookup, groups GroupResolver) []string {
	noInherit := lk
	noInherit.ResolveInheritance = false
	var names []string
	for _, n := range h.ResolveSortedNodes(noInherit, groups) {
		if n.IsGroupNode() && n.Value() {
			names = append(names, n.GroupName())
		}
	}
	return names
}

// InheritsGroup reports whether the holder's current inheritance chain
// (under the most permissive lookup) reaches the named group, directly or
// transitively. Used for conservative downstream cache invalidation.
func (h *Holder) InheritsGroup(name string, groups GroupResolver) bool {
	name = strings.ToLower(name)
	visited := make(map[string]struct{})
	if h.kind == KindGroup {
		if h.identifier == name {
			return true
		}
		visited[h.identifier] = struct{}{}
	}
	return h.inherits(name, groups, visited)
}

func (h *Holder) inherits(name string, groups GroupResolver, visited map[string]struct{}) bool {
	for _, n := range h.AllNodes() {
		if !n.IsGroupNode() || n.IsNegated() || n.HasExpired() {
			continue
		}
		gn := n.GroupName()
		if gn == name {
			return true
		}
		if _, seen := visited[gn]; seen {
			continue
		}
		visited[gn] = struct{}{}
		if g := groups.GroupIfLoaded(gn); g != nil && g.inherits(name, groups, visited) {
			return true
		}
	}
	return false
}

// PermissionData is the merged output of a resolution: an immutable
// name→value map plus the regex nodes in precedence order for pattern
// fallback at check time.
type PermissionData struct {
	m       map[string]bool
	regexes []node.Node
}

// PermissionValue checks a permission against the merged map. Lookup never
// errors: an unmatched permission is Undefined. Exact entries win; then
// regex nodes in precedence order (when applyRegex); then wildcard entries
// from the most literal prefix down to the root wildcard.
func (d *PermissionData) PermissionValue(permission string, applyRegex bool) perm.Tristate {
	permission = strings.ToLower(permission)

	if v, ok := d.m[permission]; ok {
		return perm.TristateOf(v)
	}

	if applyRegex {
		for _, rn := range d.regexes {
			if rn.Matches(permission, true) {
				return perm.TristateOf(rn.Value())
			}
		}
	}

	// Walk "a.b.c" -> "a.b.*" -> "a.*" -> "*".
	rest := permission
	for {
		i := strings.LastIndexByte(rest, '.')
		if i < 0 {
			break
		}
		rest = rest[:i]
		if v, ok := d.m[rest+".*"]; ok {
			return perm.TristateOf(v)
		}
	}
	if v, ok := d.m["*"]; ok {
		return perm.TristateOf(v)
	}
	return perm.Undefined
}

// ImmutableBacking returns a copy of the merged map for inspection.
func (d *PermissionData) ImmutableBacking() map[string]bool {
	out := make(map[string]bool, len(d.m))
	for k, v := range d.m {
		out[k] = v
	}
	return out
}

// Size returns the number of merged entries.
func (d *PermissionData) Size() int { return len(d.m) }
