// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package node

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// encoded is the persisted shape of a node, shared by the JSON (postgres
// JSONB, export documents) and YAML (file storage) encodings. The override
// flag is transient and deliberately absent: it never round-trips.
type encoded struct {
	Permission string              `json:"permission"        yaml:"permission"`
	Value      bool                `json:"value"             yaml:"value"`
	Expiry     int64               `json:"expiry,omitempty"  yaml:"expiry,omitempty"`
	Server     string              `json:"server,omitempty"  yaml:"server,omitempty"`
	World      string              `json:"world,omitempty"   yaml:"world,omitempty"`
	Context    map[string][]string `json:"context,omitempty" yaml:"context,omitempty"`
}

func (n Node) encode() encoded {
	e := encoded{
		Permission: n.permission,
		Value:      n.value,
		Expiry:     n.expiry,
		Server:     n.server,
		World:      n.world,
	}
	if !n.extra.IsEmpty() {
		e.Context = make(map[string][]string, len(n.extra.Keys()))
		for _, k := range n.extra.Keys() {
			e.Context[k] = n.extra.Values(k)
		}
	}
	return e
}

func decode(e encoded) (Node, error) {
	b := NewBuilder(e.Permission).
		SetValue(e.Value).
		SetExpiry(e.Expiry).
		SetServer(e.Server).
		SetWorld(e.World)
	for k, vs := range e.Context {
		for _, v := range vs {
			b.WithContext(k, v)
		}
	}
	return b.Build()
}

// MarshalJSON encodes the node for JSONB columns and export files.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.encode())
}

// UnmarshalJSON decodes a node, rebuilding derived state through the
// builder so that classification and compiled patterns are restored.
func (n *Node) UnmarshalJSON(data []byte) error {
	var e encoded
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	decoded, err := decode(e)
	if err != nil {
		return err
	}
	*n = decoded
	return nil
}

// MarshalYAML encodes the node for the YAML file storage backend.
func (n Node) MarshalYAML() (any, error) {
	return n.encode(), nil
}

// UnmarshalYAML decodes a node from file storage.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var e encoded
	if err := value.Decode(&e); err != nil {
		return err
	}
	decoded, err := decode(e)
	if err != nil {
		return err
	}
	*n = decoded
	return nil
}
