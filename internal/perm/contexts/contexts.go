// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package contexts implements the context key/value multimap that scopes
// permission nodes. Keys are case-insensitive and may carry multiple values;
// two sets are equal iff they contain exactly the same pairs.
package contexts

import (
	"sort"
	"strings"
)

// Reserved context keys. Server and world scoping on nodes is sugar for
// these keys.
const (
	KeyServer = "server"
	KeyWorld  = "world"
)

// Pair is a single context key/value entry.
type Pair struct {
	Key   string
	Value string
}

// Set is the read surface shared by the mutable and immutable variants.
type Set interface {
	Contains(key, value string) bool
	ContainsKey(key string) bool
	Values(key string) []string
	Keys() []string
	Pairs() []Pair
	Size() int
	IsEmpty() bool
	ContainsAll(other Set) bool
	Equals(other Set) bool
	Immutable() ImmutableContextSet
}

// pairs is the shared multimap representation: key -> value set.
type pairs map[string]map[string]struct{}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (p pairs) contains(key, value string) bool {
	k := normalizeKey(key)
	vs, ok := p[k]
	if !ok {
		return false
	}
	if k == KeyServer || k == KeyWorld {
		value = strings.ToLower(strings.TrimSpace(value))
	}
	_, ok = vs[value]
	return ok
}

func (p pairs) size() int {
	n := 0
	for _, vs := range p {
		n += len(vs)
	}
	return n
}

// sortedPairs returns every pair in deterministic (key, value) order.
func (p pairs) sortedPairs() []Pair {
	out := make([]Pair, 0, p.size())
	for k, vs := range p {
		for v := range vs {
			out = append(out, Pair{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func (p pairs) containsAll(other Set) bool {
	for _, pr := range other.Pairs() {
		if !p.contains(pr.Key, pr.Value) {
			return false
		}
	}
	return true
}

func (p pairs) equals(other Set) bool {
	return p.size() == other.Size() && p.containsAll(other)
}

func (p pairs) clone() pairs {
	out := make(pairs, len(p))
	for k, vs := range p {
		cp := make(map[string]struct{}, len(vs))
		for v := range vs {
			cp[v] = struct{}{}
		}
		out[k] = cp
	}
	return out
}

// MutableContextSet is the builder variant. It is not safe for concurrent
// use; freeze it before sharing.
type MutableContextSet struct {
	p pairs
}

// NewMutable returns an empty mutable context set.
func NewMutable() *MutableContextSet {
	return &MutableContextSet{p: make(pairs)}
}

// Add inserts a pair. Empty keys and values are silently ignored: absent
// context never errors, it simply yields no match. Values under the reserved
// server and world keys are lower-cased so that set equality and cache
// fingerprints agree with node scope normalization.
func (m *MutableContextSet) Add(key, value string) {
	k := normalizeKey(key)
	if k == KeyServer || k == KeyWorld {
		value = strings.ToLower(strings.TrimSpace(value))
	}
	if k == "" || value == "" {
		return
	}
	vs, ok := m.p[k]
	if !ok {
		vs = make(map[string]struct{}, 1)
		m.p[k] = vs
	}
	vs[value] = struct{}{}
}

// AddAll inserts every pair from other.
func (m *MutableContextSet) AddAll(other Set) {
	for _, pr := range other.Pairs() {
		m.Add(pr.Key, pr.Value)
	}
}

// RemoveAll drops every value for the given key.
func (m *MutableContextSet) RemoveAll(key string) {
	delete(m.p, normalizeKey(key))
}

// Remove drops a single pair.
func (m *MutableContextSet) Remove(key, value string) {
	k := normalizeKey(key)
	if k == KeyServer || k == KeyWorld {
		value = strings.ToLower(strings.TrimSpace(value))
	}
	if vs, ok := m.p[k]; ok {
		delete(vs, value)
		if len(vs) == 0 {
			delete(m.p, k)
		}
	}
}

// Freeze copies the current pairs into an immutable set. Later mutation of
// the builder does not affect the frozen copy.
func (m *MutableContextSet) Freeze() ImmutableContextSet {
	return ImmutableContextSet{p: m.p.clone()}
}

// Contains reports whether the pair is present.
func (m *MutableContextSet) Contains(key, value string) bool { return m.p.contains(key, value) }

// ContainsKey reports whether any value exists for the key.
func (m *MutableContextSet) ContainsKey(key string) bool {
	_, ok := m.p[normalizeKey(key)]
	return ok
}

// Values returns all values for the key, sorted.
func (m *MutableContextSet) Values(key string) []string { return values(m.p, key) }

// Keys returns all keys, sorted.
func (m *MutableContextSet) Keys() []string { return keys(m.p) }

// Pairs returns every pair in deterministic order.
func (m *MutableContextSet) Pairs() []Pair { return m.p.sortedPairs() }

// Size returns the number of pairs.
func (m *MutableContextSet) Size() int { return m.p.size() }

// IsEmpty reports whether the set has no pairs.
func (m *MutableContextSet) IsEmpty() bool { return m.p.size() == 0 }

// ContainsAll reports whether every pair of other is present (other ⊆ m).
func (m *MutableContextSet) ContainsAll(other Set) bool { return m.p.containsAll(other) }

// Equals reports set equality.
func (m *MutableContextSet) Equals(other Set) bool { return m.p.equals(other) }

// Immutable is equivalent to Freeze.
func (m *MutableContextSet) Immutable() ImmutableContextSet { return m.Freeze() }

// ImmutableContextSet is the frozen variant. The zero value is the empty set
// and is safe for concurrent use.
type ImmutableContextSet struct {
	p pairs
}

// Empty returns the empty immutable set.
func Empty() ImmutableContextSet {
	return ImmutableContextSet{}
}

// Of builds an immutable set from alternating key/value arguments.
// Of("server", "hub", "world", "nether") has two pairs.
func Of(kv ...string) ImmutableContextSet {
	m := NewMutable()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Add(kv[i], kv[i+1])
	}
	return m.Freeze()
}

// Contains reports whether the pair is present.
func (s ImmutableContextSet) Contains(key, value string) bool { return s.p.contains(key, value) }

// ContainsKey reports whether any value exists for the key.
func (s ImmutableContextSet) ContainsKey(key string) bool {
	_, ok := s.p[normalizeKey(key)]
	return ok
}

// Values returns all values for the key, sorted.
func (s ImmutableContextSet) Values(key string) []string { return values(s.p, key) }

// AnyValue returns an arbitrary-but-deterministic value for the key
// (the smallest), and whether one exists.
func (s ImmutableContextSet) AnyValue(key string) (string, bool) {
	vs := values(s.p, key)
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Keys returns all keys, sorted.
func (s ImmutableContextSet) Keys() []string { return keys(s.p) }

// Pairs returns every pair in deterministic order.
func (s ImmutableContextSet) Pairs() []Pair { return s.p.sortedPairs() }

// Size returns the number of pairs.
func (s ImmutableContextSet) Size() int { return s.p.size() }

// IsEmpty reports whether the set has no pairs.
func (s ImmutableContextSet) IsEmpty() bool { return s.p.size() == 0 }

// ContainsAll reports whether every pair of other is present (other ⊆ s).
func (s ImmutableContextSet) ContainsAll(other Set) bool { return s.p.containsAll(other) }

// Equals reports set equality.
func (s ImmutableContextSet) Equals(other Set) bool { return s.p.equals(other) }

// Immutable returns the set itself.
func (s ImmutableContextSet) Immutable() ImmutableContextSet { return s }

// Mutable returns a mutable copy.
func (s ImmutableContextSet) Mutable() *MutableContextSet {
	return &MutableContextSet{p: s.p.clone()}
}

// CanonicalString renders the set as sorted "key=value" pairs joined by ";".
// It is stable across runs and is the context component of cache
// fingerprints.
func (s ImmutableContextSet) CanonicalString() string {
	prs := s.p.sortedPairs()
	var b strings.Builder
	for i, pr := range prs {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(pr.Key)
		b.WriteByte('=')
		b.WriteString(pr.Value)
	}
	return b.String()
}

func values(p pairs, key string) []string {
	vs, ok := p[normalizeKey(key)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(vs))
	for v := range vs {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func keys(p pairs) []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
