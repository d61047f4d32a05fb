// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package node

import (
	"strconv"
	"strings"
)

// Meta node prefixes. A node "meta.<key>.<value>" attaches arbitrary
// key/value metadata to the holder; "prefix.<weight>.<text>" and
// "suffix.<weight>.<text>" attach weighted chat decorations, highest
// weight wins.
const (
	MetaPrefix       = "meta."
	ChatPrefixPrefix = "prefix."
	ChatSuffixPrefix = "suffix."
)

// IsMeta reports whether the permission is "meta.<key>.<value>".
func (n Node) IsMeta() bool { return n.metaKey != "" }

// Meta returns the key and value of a meta node, or two empty strings for
// non-meta nodes.
func (n Node) Meta() (key, value string) { return n.metaKey, n.metaValue }

// IsPrefix reports whether the permission is "prefix.<weight>.<text>".
func (n Node) IsPrefix() bool { return n.chatKind == chatPrefix }

// Prefix returns the weight and text of a prefix node, or (0, "") for
// non-prefix nodes.
func (n Node) Prefix() (weight int, text string) {
	if n.chatKind != chatPrefix {
		return 0, ""
	}
	return n.chatWeight, n.chatText
}

// IsSuffix reports whether the permission is "suffix.<weight>.<text>".
func (n Node) IsSuffix() bool { return n.chatKind == chatSuffix }

// Suffix returns the weight and text of a suffix node, or (0, "") for
// non-suffix nodes.
func (n Node) Suffix() (weight int, text string) {
	if n.chatKind != chatSuffix {
		return 0, ""
	}
	return n.chatWeight, n.chatText
}

type chatMetaKind int

const (
	chatNone chatMetaKind = iota
	chatPrefix
	chatSuffix
)

// classifyMeta derives the meta/prefix/suffix classification from an
// already-normalized permission string. Wildcard and regex nodes never
// classify.
func classifyMeta(n *Node) {
	if n.wildcardLevel > 0 || n.pattern != nil {
		return
	}
	if rest, ok := strings.CutPrefix(n.permission, MetaPrefix); ok {
		key, value, ok := strings.Cut(rest, ".")
		if ok && key != "" && value != "" {
			n.metaKey = key
			n.metaValue = value
		}
		return
	}
	kind := chatNone
	var rest string
	if r, ok := strings.CutPrefix(n.permission, ChatPrefixPrefix); ok {
		kind, rest = chatPrefix, r
	} else if r, ok := strings.CutPrefix(n.permission, ChatSuffixPrefix); ok {
		kind, rest = chatSuffix, r
	} else {
		return
	}
	ws, text, ok := strings.Cut(rest, ".")
	if !ok || text == "" {
		return
	}
	weight, err := strconv.Atoi(ws)
	if err != nil {
		return
	}
	n.chatKind = kind
	n.chatWeight = weight
	n.chatText = text
}
