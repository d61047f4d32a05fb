// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package node

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/permgate/permgate/internal/perm/contexts"
)

// ShouldApply reports whether the node applies to a check evaluated on the
// given server/world with the given context. An expired temporary node
// never applies. includeGlobal (and includeGlobalWorld) admit unscoped
// nodes when the lookup names a server (world); applyRegex allows wildcard
// patterns in the node's scope values.
func (n Node) ShouldApply(includeGlobal, includeGlobalWorld bool, server, world string, ctx contexts.Set, applyRegex bool) bool {
	if n.HasExpired() {
		return false
	}
	if !n.ShouldApplyOnServer(server, includeGlobal, applyRegex) {
		return false
	}
	if !n.ShouldApplyOnWorld(world, includeGlobalWorld, applyRegex) {
		return false
	}
	return n.ShouldApplyWithContext(ctx)
}

// ShouldApplyOnServer reports whether the node's server scope admits the
// named server. An unscoped lookup (server == "") admits only unscoped
// nodes; an unscoped node applies to a scoped lookup iff includeGlobal.
func (n Node) ShouldApplyOnServer(server string, includeGlobal, applyRegex bool) bool {
	return scopeApplies(n.server, server, includeGlobal, applyRegex)
}

// ShouldApplyOnWorld is ShouldApplyOnServer for the world scope.
func (n Node) ShouldApplyOnWorld(world string, includeGlobal, applyRegex bool) bool {
	return scopeApplies(n.world, world, includeGlobal, applyRegex)
}

// ShouldApplyWithContext reports whether the node's extra context is a
// subset of the request context. Absent keys simply yield no match; there
// is no error path.
func (n Node) ShouldApplyWithContext(ctx contexts.Set) bool {
	if n.extra.IsEmpty() {
		return true
	}
	if ctx == nil {
		return false
	}
	return ctx.ContainsAll(n.extra)
}

// scopeApplies implements the shared server/world scope rule.
func scopeApplies(scope, checked string, includeGlobal, applyRegex bool) bool {
	checked = strings.ToLower(checked)
	if checked == "" || checked == "global" {
		return scope == ""
	}
	if scope == "" {
		return includeGlobal
	}
	if scope == checked {
		return true
	}
	if applyRegex {
		return matchScopePattern(scope, checked)
	}
	return false
}

// matchScopePattern matches a scope value that may carry glob syntax
// (e.g. server "dev-*") against a concrete name. Invalid patterns fall
// back to the literal comparison already performed by the caller.
func matchScopePattern(pattern, name string) bool {
	if !strings.ContainsAny(pattern, "*?[{") {
		return false
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(name)
}
