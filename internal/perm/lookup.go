// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package perm

import (
	"strings"

	"github.com/permgate/permgate/internal/perm/contexts"
)

// Lookup bundles the request context with the flags that control how nodes
// are filtered and merged during resolution. Two Lookups with the same
// Fingerprint produce identical resolution output for a given holder.
type Lookup struct {
	Contexts contexts.ImmutableContextSet

	// IncludeGlobal admits nodes with no server scope when the lookup names
	// a server; IncludeGlobalWorld is the same for world scope.
	IncludeGlobal      bool
	IncludeGlobalWorld bool

	// ApplyRegex enables regex node matching and wildcard matching of
	// server/world scope values.
	ApplyRegex bool

	// ResolveInheritance walks group nodes transitively.
	ResolveInheritance bool

	// IncludeTempNodes admits unexpired temporary nodes.
	IncludeTempNodes bool
}

// DefaultLookup returns the engine's standard lookup for a context:
// globals included, regex applied, inheritance resolved, temps included.
func DefaultLookup(ctx contexts.ImmutableContextSet) Lookup {
	return Lookup{
		Contexts:           ctx,
		IncludeGlobal:      true,
		IncludeGlobalWorld: true,
		ApplyRegex:         true,
		ResolveInheritance: true,
		IncludeTempNodes:   true,
	}
}

// Server returns the server named by the lookup context, or "".
func (l Lookup) Server() string {
	v, _ := l.Contexts.AnyValue(contexts.KeyServer)
	return v
}

// World returns the world named by the lookup context, or "".
func (l Lookup) World() string {
	v, _ := l.Contexts.AnyValue(contexts.KeyWorld)
	return v
}

// Fingerprint canonicalizes the lookup into a cache key: the sorted context
// pairs plus one character per flag.
func (l Lookup) Fingerprint() string {
	var b strings.Builder
	b.WriteString(l.Contexts.CanonicalString())
	b.WriteByte('|')
	b.WriteByte(flagByte(l.IncludeGlobal))
	b.WriteByte(flagByte(l.IncludeGlobalWorld))
	b.WriteByte(flagByte(l.ApplyRegex))
	b.WriteByte(flagByte(l.ResolveInheritance))
	b.WriteByte(flagByte(l.IncludeTempNodes))
	return b.String()
}

func flagByte(on bool) byte {
	if on {
		return '1'
	}
	return '0'
}
