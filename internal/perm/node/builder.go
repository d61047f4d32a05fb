// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package node

import (
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/permgate/permgate/internal/perm/contexts"
)

// Builder assembles an immutable Node. Not safe for concurrent use.
type Builder struct {
	permission string
	value      bool
	override   bool
	server     string
	world      string
	expiry     int64
	extra      *contexts.MutableContextSet
}

// NewBuilder starts a builder for the given permission string. The value
// defaults to true.
func NewBuilder(permission string) *Builder {
	return &Builder{
		permission: permission,
		value:      true,
		extra:      contexts.NewMutable(),
	}
}

// SetValue sets the boolean value.
func (b *Builder) SetValue(value bool) *Builder {
	b.value = value
	return b
}

// SetNegated is the inverse of SetValue.
func (b *Builder) SetNegated(negated bool) *Builder {
	b.value = !negated
	return b
}

// SetOverride sets the transient override flag. Override does not persist
// across saves and is only meaningful on transient nodes.
func (b *Builder) SetOverride(override bool) *Builder {
	b.override = override
	return b
}

// SetExpiry sets the unix expiry timestamp. Zero means permanent.
func (b *Builder) SetExpiry(unix int64) *Builder {
	b.expiry = unix
	return b
}

// SetExpiryIn sets the expiry to now + d.
func (b *Builder) SetExpiryIn(d time.Duration) *Builder {
	b.expiry = time.Now().Add(d).Unix()
	return b
}

// SetServer sets the server scope.
func (b *Builder) SetServer(server string) *Builder {
	b.server = strings.ToLower(strings.TrimSpace(server))
	return b
}

// SetWorld sets the world scope.
func (b *Builder) SetWorld(world string) *Builder {
	b.world = strings.ToLower(strings.TrimSpace(world))
	return b
}

// WithContext adds one extra required context pair. The reserved server and
// world keys are redirected to the scope fields so that a node never carries
// the same constraint twice.
func (b *Builder) WithContext(key, value string) *Builder {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case contexts.KeyServer:
		return b.SetServer(value)
	case contexts.KeyWorld:
		return b.SetWorld(value)
	default:
		b.extra.Add(key, value)
	}
	return b
}

// WithContextSet adds every pair from the set, redirecting reserved keys.
func (b *Builder) WithContextSet(set contexts.Set) *Builder {
	for _, pr := range set.Pairs() {
		b.WithContext(pr.Key, pr.Value)
	}
	return b
}

// Build validates and freezes the node.
func (b *Builder) Build() (Node, error) {
	perm := strings.TrimSpace(b.permission)
	if perm == "" {
		return Node{}, oops.
			Code("INVALID_PERMISSION").
			Errorf("permission string must not be empty")
	}
	if strings.ContainsAny(perm, " \t\n") {
		return Node{}, oops.
			Code("INVALID_PERMISSION").
			With("permission", perm).
			Errorf("permission string must not contain whitespace")
	}

	n := Node{
		value:    b.value,
		override: b.override,
		server:   b.server,
		world:    b.world,
		expiry:   b.expiry,
		extra:    b.extra.Freeze(),
	}

	switch {
	case strings.HasPrefix(perm, RegexMarkerCaseSensitive):
		// Case-sensitive pattern: preserve the body as written.
		n.permission = RegexMarkerCaseSensitive + perm[len(RegexMarkerCaseSensitive):]
		n.pattern = compilePattern(perm[len(RegexMarkerCaseSensitive):], false)
	case strings.HasPrefix(strings.ToLower(perm), RegexMarker):
		n.permission = RegexMarker + perm[len(RegexMarker):]
		n.pattern = compilePattern(perm[len(RegexMarker):], true)
	default:
		n.permission = strings.ToLower(perm)
	}

	n.wildcardLevel = countWildcardLevel(n.permission)

	if n.pattern == nil && n.wildcardLevel == 0 &&
		strings.HasPrefix(n.permission, GroupPrefix) {
		name := n.permission[len(GroupPrefix):]
		if name != "" {
			n.groupName = name
		}
	}
	classifyMeta(&n)

	return n, nil
}

// MustBuild is Build for statically known-good inputs; it panics on error.
// Test helper and factory plumbing only.
func (b *Builder) MustBuild() Node {
	n, err := b.Build()
	if err != nil {
		panic(err)
	}
	return n
}

// compilePattern compiles a regex node body. A body that fails to compile
// yields nil: the node then only ever matches its literal string.
func compilePattern(body string, caseInsensitive bool) *regexp.Regexp {
	if caseInsensitive {
		body = "(?i)" + body
	}
	re, err := regexp.Compile("^(?:" + body + ")$")
	if err != nil {
		return nil
	}
	return re
}

// Make is the common factory shorthand: a permanent true node, optionally
// server/world scoped.
func Make(permission string, value bool, server, world string) (Node, error) {
	return NewBuilder(permission).SetValue(value).SetServer(server).SetWorld(world).Build()
}

// MakeGroup builds an inheritance node for the named group in the given
// context.
func MakeGroup(group string, ctx contexts.Set) (Node, error) {
	return NewBuilder(GroupPrefix + strings.ToLower(group)).WithContextSet(ctx).Build()
}
