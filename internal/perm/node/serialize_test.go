// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package node

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestJSONRoundTrip_RestoresDerivedState(t *testing.T) {
	original := NewBuilder("group.admin").
		SetServer("hub").
		WithContext("gamemode", "creative").
		MustBuild()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, decoded.Equals(original))
	assert.True(t, decoded.IsGroupNode(), "classification is rebuilt on decode")
	assert.Equal(t, "admin", decoded.GroupName())
}

func TestJSONRoundTrip_RegexPatternRecompiled(t *testing.T) {
	original := NewBuilder(`r=essentials\.(fly|home)`).MustBuild()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, decoded.IsRegex())
	assert.True(t, decoded.Matches("essentials.fly", true))
}

func TestJSONEncoding_OmitsDefaults(t *testing.T) {
	n := NewBuilder("a.b").MustBuild()

	data, err := json.Marshal(n)
	require.NoError(t, err)

	assert.JSONEq(t, `{"permission":"a.b","value":true}`, string(data))
}

func TestJSONEncoding_OverrideNeverPersists(t *testing.T) {
	n := NewBuilder("a.b").SetOverride(true).MustBuild()

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.False(t, decoded.IsOverride())
}

func TestYAMLRoundTrip(t *testing.T) {
	original := NewBuilder("essentials.fly").
		SetValue(false).
		SetExpiry(1900000000).
		SetWorld("nether").
		MustBuild()

	data, err := yaml.Marshal(original)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	assert.True(t, decoded.Equals(original))
	assert.Equal(t, int64(1900000000), decoded.Expiry())
	assert.Equal(t, "nether", decoded.World())
}

func TestUnmarshal_InvalidPermissionRejected(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"permission":"","value":true}`), &n)
	assert.Error(t, err)
}
