// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package contexts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutableContextSet_Add(t *testing.T) {
	m := NewMutable()
	m.Add("server", "hub")
	m.Add("Server", "lobby")
	m.Add("world", "nether")

	assert.True(t, m.Contains("server", "hub"))
	assert.True(t, m.Contains("SERVER", "lobby"), "keys are case-insensitive")
	assert.False(t, m.Contains("server", "nether"))
	assert.Equal(t, 3, m.Size())
}

func TestMutableContextSet_AddIgnoresEmpty(t *testing.T) {
	m := NewMutable()
	m.Add("", "hub")
	m.Add("server", "")
	m.Add("  ", "hub")

	assert.True(t, m.IsEmpty())
}

func TestMutableContextSet_ValuesAreCaseSensitive(t *testing.T) {
	m := NewMutable()
	m.Add("region", "EU")

	assert.True(t, m.Contains("region", "EU"))
	assert.False(t, m.Contains("region", "eu"))
}

func TestMutableContextSet_ReservedValuesNormalized(t *testing.T) {
	m := NewMutable()
	m.Add("server", "Hub")
	m.Add("World", " Nether ")

	assert.True(t, m.Contains("server", "hub"))
	assert.True(t, m.Contains("server", "HUB"), "reserved values compare case-insensitively")
	assert.True(t, m.Contains("world", "nether"))
	assert.Equal(t, []string{"hub"}, m.Values("server"))

	m.Remove("server", "HUB")
	assert.False(t, m.ContainsKey("server"))
}

func TestEquals_ReservedValueCase(t *testing.T) {
	assert.True(t, Of("server", "Hub").Equals(Of("server", "hub")))
	assert.Equal(t,
		Of("server", "Hub").CanonicalString(),
		Of("server", "hub").CanonicalString(),
		"fingerprints must not fork on reserved value case")
}

func TestMutableContextSet_Remove(t *testing.T) {
	m := NewMutable()
	m.Add("server", "hub")
	m.Add("server", "lobby")

	m.Remove("server", "hub")
	assert.False(t, m.Contains("server", "hub"))
	assert.True(t, m.Contains("server", "lobby"))

	m.Remove("server", "lobby")
	assert.False(t, m.ContainsKey("server"), "key disappears with its last value")
}

func TestMutableContextSet_RemoveAll(t *testing.T) {
	m := NewMutable()
	m.Add("server", "hub")
	m.Add("server", "lobby")
	m.Add("world", "nether")

	m.RemoveAll("server")
	assert.False(t, m.ContainsKey("server"))
	assert.True(t, m.ContainsKey("world"))
}

func TestFreeze_IsolatesFromBuilder(t *testing.T) {
	m := NewMutable()
	m.Add("server", "hub")
	frozen := m.Freeze()

	m.Add("server", "lobby")
	m.Remove("server", "hub")

	assert.True(t, frozen.Contains("server", "hub"))
	assert.False(t, frozen.Contains("server", "lobby"))
}

func TestOf(t *testing.T) {
	s := Of("server", "hub", "world", "nether")

	assert.Equal(t, 2, s.Size())
	assert.True(t, s.Contains("server", "hub"))
	assert.True(t, s.Contains("world", "nether"))

	// Trailing key without a value is dropped.
	odd := Of("server", "hub", "world")
	assert.Equal(t, 1, odd.Size())
}

func TestContainsAll(t *testing.T) {
	tests := []struct {
		name  string
		outer ImmutableContextSet
		inner ImmutableContextSet
		want  bool
	}{
		{
			name:  "empty subset of anything",
			outer: Of("server", "hub"),
			inner: Empty(),
			want:  true,
		},
		{
			name:  "proper subset",
			outer: Of("server", "hub", "world", "nether"),
			inner: Of("server", "hub"),
			want:  true,
		},
		{
			name:  "equal sets",
			outer: Of("server", "hub"),
			inner: Of("server", "hub"),
			want:  true,
		},
		{
			name:  "missing pair",
			outer: Of("server", "hub"),
			inner: Of("server", "hub", "world", "nether"),
			want:  false,
		},
		{
			name:  "same key different value",
			outer: Of("server", "hub"),
			inner: Of("server", "lobby"),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outer.ContainsAll(tt.inner))
		})
	}
}

func TestEquals(t *testing.T) {
	a := Of("server", "hub", "world", "nether")
	b := Of("world", "nether", "server", "hub")
	c := Of("server", "hub")

	assert.True(t, a.Equals(b), "order of construction does not matter")
	assert.False(t, a.Equals(c))
	assert.True(t, Empty().Equals(Empty()))
}

func TestMultiValueKeys(t *testing.T) {
	m := NewMutable()
	m.Add("server", "hub")
	m.Add("server", "lobby")
	s := m.Freeze()

	assert.Equal(t, []string{"hub", "lobby"}, s.Values("server"))

	v, ok := s.AnyValue("server")
	require.True(t, ok)
	assert.Equal(t, "hub", v, "AnyValue returns the smallest value")

	_, ok = s.AnyValue("world")
	assert.False(t, ok)
}

func TestPairs_Deterministic(t *testing.T) {
	s := Of("world", "nether", "server", "lobby", "server", "hub")

	want := []Pair{
		{Key: "server", Value: "hub"},
		{Key: "server", Value: "lobby"},
		{Key: "world", Value: "nether"},
	}
	assert.Equal(t, want, s.Pairs())
	assert.Equal(t, []string{"server", "world"}, s.Keys())
}

func TestCanonicalString(t *testing.T) {
	tests := []struct {
		name string
		set  ImmutableContextSet
		want string
	}{
		{"empty", Empty(), ""},
		{"single", Of("server", "hub"), "server=hub"},
		{
			"sorted across keys and values",
			Of("world", "nether", "server", "lobby", "server", "hub"),
			"server=hub;server=lobby;world=nether",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.CanonicalString())
		})
	}
}

func TestCanonicalString_StableAcrossConstruction(t *testing.T) {
	a := Of("a", "1", "b", "2", "c", "3")
	b := Of("c", "3", "a", "1", "b", "2")
	assert.Equal(t, a.CanonicalString(), b.CanonicalString())
}

func TestZeroImmutableSet(t *testing.T) {
	var s ImmutableContextSet

	assert.True(t, s.IsEmpty())
	assert.Empty(t, s.Pairs())
	assert.Equal(t, "", s.CanonicalString())
	assert.True(t, s.ContainsAll(Empty()))
}

func TestMutableRoundTrip(t *testing.T) {
	s := Of("server", "hub")
	m := s.Mutable()
	m.Add("world", "nether")

	assert.False(t, s.ContainsKey("world"), "mutable copy does not alias the frozen set")
	assert.True(t, m.Freeze().Contains("world", "nether"))
}
