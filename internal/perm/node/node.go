// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package node implements the immutable permission node: a permission
// string with a boolean value, optional expiry, optional server/world
// scope, and extra required context.
package node

import (
	"regexp"
	"strings"
	"time"

	"github.com/permgate/permgate/internal/perm/contexts"
)

// GroupPrefix marks inheritance nodes: a node "group.<name>" makes the
// holder inherit <name>.
const GroupPrefix = "group."

// Regex node markers. A permission starting with "r=" is matched as a
// case-insensitive regular expression; "R=" is matched case-sensitively.
const (
	RegexMarker              = "r="
	RegexMarkerCaseSensitive = "R="
)

// Node is an immutable permission entry. Build instances with a Builder;
// the zero value is not a valid node.
type Node struct {
	permission string // lowercased, except regex pattern bodies
	value      bool
	override   bool // transient: never serialized, excluded from equality
	server     string
	world      string
	expiry     int64 // unix seconds; 0 = permanent
	extra      contexts.ImmutableContextSet

	// derived at build time
	groupName     string
	wildcardLevel int
	pattern       *regexp.Regexp // nil unless a valid regex node

	metaKey    string
	metaValue  string
	chatKind   chatMetaKind
	chatWeight int
	chatText   string
}

// Permission returns the raw permission string.
func (n Node) Permission() string { return n.permission }

// Value returns the boolean the node sets. Negated nodes return false.
func (n Node) Value() bool { return n.value }

// IsNegated reports whether the node denies rather than grants.
func (n Node) IsNegated() bool { return !n.value }

// IsOverride reports the transient override flag. Override nodes take
// strict precedence over non-override nodes of equal specificity.
func (n Node) IsOverride() bool { return n.override }

// Server returns the server scope, or "" when unscoped.
func (n Node) Server() string { return n.server }

// World returns the world scope, or "" when unscoped.
func (n Node) World() string { return n.world }

// IsServerSpecific reports whether the node carries a server scope.
func (n Node) IsServerSpecific() bool { return n.server != "" }

// IsWorldSpecific reports whether the node carries a world scope.
func (n Node) IsWorldSpecific() bool { return n.world != "" }

// Contexts returns the extra required context.
func (n Node) Contexts() contexts.ImmutableContextSet { return n.extra }

// FullContexts returns the extra context plus server/world scope expressed
// as the reserved keys.
func (n Node) FullContexts() contexts.ImmutableContextSet {
	if n.server == "" && n.world == "" {
		return n.extra
	}
	m := n.extra.Mutable()
	if n.server != "" {
		m.Add(contexts.KeyServer, n.server)
	}
	if n.world != "" {
		m.Add(contexts.KeyWorld, n.world)
	}
	return m.Freeze()
}

// AppliesGlobally reports whether the node has no scoping at all.
func (n Node) AppliesGlobally() bool {
	return n.server == "" && n.world == "" && n.extra.IsEmpty()
}

// ContextSpecificity counts how many context constraints the node carries.
// Higher outranks lower during resolution.
func (n Node) ContextSpecificity() int {
	s := n.extra.Size()
	if n.server != "" {
		s++
	}
	if n.world != "" {
		s++
	}
	return s
}

// IsTemporary reports whether the node has an expiry.
func (n Node) IsTemporary() bool { return n.expiry > 0 }

// IsPermanent reports whether the node never expires.
func (n Node) IsPermanent() bool { return n.expiry == 0 }

// Expiry returns the unix expiry timestamp, or 0 for permanent nodes.
func (n Node) Expiry() int64 { return n.expiry }

// HasExpired reports whether a temporary node's expiry is in the past.
// Permanent nodes never expire.
func (n Node) HasExpired() bool {
	return n.HasExpiredAt(time.Now())
}

// HasExpiredAt is HasExpired against an explicit instant.
func (n Node) HasExpiredAt(at time.Time) bool {
	return n.expiry > 0 && n.expiry <= at.Unix()
}

// IsGroupNode reports whether the permission is "group.<name>".
func (n Node) IsGroupNode() bool { return n.groupName != "" }

// GroupName returns the inherited group's name, or "" for non-group nodes.
func (n Node) GroupName() string { return n.groupName }

// IsWildcard reports whether the permission ends in ".*" (or is the root
// wildcard "*").
func (n Node) IsWildcard() bool { return n.wildcardLevel > 0 }

// WildcardLevel is the number of trailing ".*" segments. Zero means the
// node is fully literal; during resolution lower levels outrank higher.
func (n Node) WildcardLevel() int { return n.wildcardLevel }

// IsRegex reports whether the permission is a regex node with a pattern
// that compiled.
func (n Node) IsRegex() bool { return n.pattern != nil }

// Matches reports whether the node's permission covers the checked string.
// Literal nodes require equality; wildcard nodes cover any deeper
// permission under their prefix; regex nodes match their pattern when
// applyRegex is set.
func (n Node) Matches(permission string, applyRegex bool) bool {
	permission = strings.ToLower(permission)
	if n.permission == permission {
		return true
	}
	if n.pattern != nil {
		return applyRegex && n.pattern.MatchString(permission)
	}
	if n.wildcardLevel > 0 {
		body := wildcardBody(n.permission)
		if body == "" {
			return true // root wildcard
		}
		return strings.HasPrefix(permission, body+".")
	}
	return false
}

// ResolveWildcard returns every candidate permission the node's pattern
// covers. It is a pure function of the node's permission string.
func (n Node) ResolveWildcard(candidates []string) []string {
	if n.wildcardLevel == 0 && n.pattern == nil {
		return nil
	}
	var out []string
	for _, c := range candidates {
		if n.Matches(c, true) {
			out = append(out, c)
		}
	}
	return out
}

// Equals is full equality: permission, value, expiry, server/world scope,
// and extra context. The transient override flag never participates.
func (n Node) Equals(other Node) bool {
	return n.EqualsIgnoringValue(other) && n.value == other.value
}

// EqualsIgnoringValue matches everything except the boolean value. Used to
// detect "already set" during mutation.
func (n Node) EqualsIgnoringValue(other Node) bool {
	return n.EqualsIgnoringValueOrTemp(other) && n.expiry == other.expiry
}

// EqualsIgnoringValueOrTemp matches everything except value and expiry.
// Used for promote/demote matching, where a temporary membership still
// counts as membership.
func (n Node) EqualsIgnoringValueOrTemp(other Node) bool {
	return n.permission == other.permission &&
		n.server == other.server &&
		n.world == other.world &&
		n.extra.Equals(other.extra)
}

// wildcardBody strips the trailing ".*" segments from a wildcard
// permission. The root wildcard "*" yields "".
func wildcardBody(permission string) string {
	for strings.HasSuffix(permission, ".*") {
		permission = permission[:len(permission)-2]
	}
	if permission == "*" {
		return ""
	}
	return permission
}

// countWildcardLevel returns the number of trailing ".*" segments, or 1
// for the root wildcard "*". Non-wildcard permissions return 0.
func countWildcardLevel(permission string) int {
	if permission == "*" {
		return 1
	}
	level := 0
	for strings.HasSuffix(permission, ".*") {
		level++
		permission = permission[:len(permission)-2]
	}
	return level
}
