// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package track implements ordered promotion ladders of group names and
// the promote/demote state machine that walks them.
package track

import (
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Track is an ordered sequence of distinct group names. Name comparisons
// are case-insensitive; names are stored lower-case.
type Track struct {
	mu     sync.RWMutex
	name   string
	groups []string
}

// New creates a track. Duplicate entries are rejected.
func New(name string, groups ...string) (*Track, error) {
	t := &Track{name: strings.ToLower(name)}
	if t.name == "" {
		return nil, oops.Code("VALIDATION_FAILED").Errorf("track name must not be empty")
	}
	for _, g := range groups {
		if err := t.Append(g); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Name returns the track's name.
func (t *Track) Name() string { return t.name }

// Groups returns a copy of the ordered group names.
func (t *Track) Groups() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.groups))
	copy(out, t.groups)
	return out
}

// Size returns the number of groups on the track.
func (t *Track) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.groups)
}

// ContainsGroup reports whether the group is on the track.
func (t *Track) ContainsGroup(group string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.indexOf(group) >= 0
}

// indexOf returns the position of group, or -1. Caller holds t.mu.
func (t *Track) indexOf(group string) int {
	group = strings.ToLower(group)
	for i, g := range t.groups {
		if g == group {
			return i
		}
	}
	return -1
}

// Next returns the group after the named one, or "" when the name is the
// last entry. It errors when the name is not on the track at all.
func (t *Track) Next(group string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexOf(group)
	if i < 0 {
		return "", oops.
			Code("TRACK_DOES_NOT_CONTAIN").
			With("track", t.name).With("group", group).
			Errorf("track %q does not contain group %q", t.name, group)
	}
	if i == len(t.groups)-1 {
		return "", nil
	}
	return t.groups[i+1], nil
}

// Previous returns the group before the named one, or "" when the name is
// the first entry. It errors when the name is not on the track at all.
func (t *Track) Previous(group string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexOf(group)
	if i < 0 {
		return "", oops.
			Code("TRACK_DOES_NOT_CONTAIN").
			With("track", t.name).With("group", group).
			Errorf("track %q does not contain group %q", t.name, group)
	}
	if i == 0 {
		return "", nil
	}
	return t.groups[i-1], nil
}

// First returns the first entry, or "" for an empty track.
func (t *Track) First() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.groups) == 0 {
		return ""
	}
	return t.groups[0]
}

// Append adds a group to the end of the track.
func (t *Track) Append(group string) error {
	group = strings.ToLower(strings.TrimSpace(group))
	if group == "" {
		return oops.Code("VALIDATION_FAILED").Errorf("group name must not be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indexOf(group) >= 0 {
		return oops.
			Code("TRACK_DUPLICATE").
			With("track", t.name).With("group", group).
			Errorf("track %q already contains group %q", t.name, group)
	}
	t.groups = append(t.groups, group)
	return nil
}

// Insert adds a group at the given position.
func (t *Track) Insert(group string, position int) error {
	group = strings.ToLower(strings.TrimSpace(group))
	if group == "" {
		return oops.Code("VALIDATION_FAILED").Errorf("group name must not be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indexOf(group) >= 0 {
		return oops.
			Code("TRACK_DUPLICATE").
			With("track", t.name).With("group", group).
			Errorf("track %q already contains group %q", t.name, group)
	}
	if position < 0 || position > len(t.groups) {
		return oops.
			Code("VALIDATION_FAILED").
			With("position", position).
			Errorf("position out of range")
	}
	t.groups = append(t.groups[:position], append([]string{group}, t.groups[position:]...)...)
	return nil
}

// Remove drops a group from the track.
func (t *Track) Remove(group string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(group)
	if i < 0 {
		return oops.
			Code("TRACK_DOES_NOT_CONTAIN").
			With("track", t.name).With("group", group).
			Errorf("track %q does not contain group %q", t.name, group)
	}
	t.groups = append(t.groups[:i], t.groups[i+1:]...)
	return nil
}
