// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package node

import (
	"strconv"
	"strings"
)

// ResolveShorthand expands brace alternation and numeric ranges in the
// permission string into the literal permissions it denotes:
//
//	"a.{b,c}.d"   -> ["a.b.d", "a.c.d"]
//	"rank.{1-3}"  -> ["rank.1", "rank.2", "rank.3"]
//
// A permission with no shorthand (or a group/regex node) expands to itself.
// The expansion is a pure function of the permission string.
func (n Node) ResolveShorthand() []string {
	if n.groupName != "" || n.pattern != nil || !strings.Contains(n.permission, "{") {
		return []string{n.permission}
	}
	return expandShorthand(n.permission)
}

// HasShorthand reports whether the permission carries brace shorthand.
func (n Node) HasShorthand() bool {
	return n.groupName == "" && n.pattern == nil && strings.Contains(n.permission, "{")
}

func expandShorthand(s string) []string {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		return []string{s}
	}
	end := strings.IndexByte(s[open:], '}')
	if end < 0 {
		return []string{s} // unbalanced: treat as literal
	}
	end += open

	prefix, body, suffix := s[:open], s[open+1:end], s[end+1:]
	var expanded []string
	for _, alt := range splitAlternatives(body) {
		for _, v := range expandRange(alt) {
			// recurse for later groups
			for _, tail := range expandShorthand(suffix) {
				expanded = append(expanded, prefix+v+tail)
			}
		}
	}
	if len(expanded) == 0 {
		return []string{s}
	}
	return expanded
}

// splitAlternatives splits "a,b|c" on both separator styles.
func splitAlternatives(body string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || r == '|'
	}) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandRange turns "1-4" into 1 2 3 4; anything else passes through.
func expandRange(alt string) []string {
	lo, hi, ok := strings.Cut(alt, "-")
	if !ok {
		return []string{alt}
	}
	from, err1 := strconv.Atoi(lo)
	to, err2 := strconv.Atoi(hi)
	if err1 != nil || err2 != nil || from > to || to-from > 1024 {
		return []string{alt}
	}
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}
