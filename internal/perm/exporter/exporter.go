// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package exporter moves the whole permission database in and out of a
// single YAML document. The document carries a semver format version;
// imports accept any document whose major version matches the current
// format, and validate the payload against a generated JSON Schema before
// touching storage.
package exporter

import (
	"context"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/permgate/permgate/internal/perm/node"
	"github.com/permgate/permgate/internal/perm/storage"
)

// FormatVersion is the version stamped on exported documents.
const FormatVersion = "1.0.0"

// formatConstraint gates importability: same major version.
const formatConstraint = "^1"

// NodeDoc is the document form of a node. The override flag is runtime-only
// and deliberately absent.
type NodeDoc struct {
	Permission string              `json:"permission"        yaml:"permission"`
	Value      bool                `json:"value"             yaml:"value"`
	Expiry     int64               `json:"expiry,omitempty"  yaml:"expiry,omitempty"`
	Server     string              `json:"server,omitempty"  yaml:"server,omitempty"`
	World      string              `json:"world,omitempty"   yaml:"world,omitempty"`
	Context    map[string][]string `json:"context,omitempty" yaml:"context,omitempty"`
}

// UserDoc is the document form of a user.
type UserDoc struct {
	ID           string    `json:"id"                      yaml:"id"`
	PrimaryGroup string    `json:"primary_group,omitempty" yaml:"primary_group,omitempty"`
	Nodes        []NodeDoc `json:"nodes,omitempty"         yaml:"nodes,omitempty"`
}

// GroupDoc is the document form of a group.
type GroupDoc struct {
	Name  string    `json:"name"            yaml:"name"`
	Nodes []NodeDoc `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// TrackDoc is the document form of a track.
type TrackDoc struct {
	Name   string   `json:"name"   yaml:"name"`
	Groups []string `json:"groups" yaml:"groups"`
}

// Document is the full export payload.
type Document struct {
	Version string     `json:"version"          yaml:"version"`
	Groups  []GroupDoc `json:"groups,omitempty" yaml:"groups,omitempty"`
	Tracks  []TrackDoc `json:"tracks,omitempty" yaml:"tracks,omitempty"`
	Users   []UserDoc  `json:"users,omitempty"  yaml:"users,omitempty"`
}

func toNodeDoc(n node.Node) NodeDoc {
	d := NodeDoc{
		Permission: n.Permission(),
		Value:      n.Value(),
		Expiry:     n.Expiry(),
		Server:     n.Server(),
		World:      n.World(),
	}
	if !n.Contexts().IsEmpty() {
		d.Context = make(map[string][]string)
		for _, p := range n.Contexts().Pairs() {
			d.Context[p.Key] = append(d.Context[p.Key], p.Value)
		}
	}
	return d
}

func fromNodeDoc(d NodeDoc) (node.Node, error) {
	b := node.NewBuilder(d.Permission).
		SetValue(d.Value).
		SetExpiry(d.Expiry).
		SetServer(d.Server).
		SetWorld(d.World)
	for k, vals := range d.Context {
		for _, v := range vals {
			b = b.WithContext(k, v)
		}
	}
	return b.Build()
}

func toNodeDocs(nodes []node.Node) []NodeDoc {
	if len(nodes) == 0 {
		return nil
	}
	docs := make([]NodeDoc, len(nodes))
	for i, n := range nodes {
		docs[i] = toNodeDoc(n)
	}
	return docs
}

func fromNodeDocs(docs []NodeDoc) ([]node.Node, error) {
	nodes := make([]node.Node, 0, len(docs))
	for _, d := range docs {
		n, err := fromNodeDoc(d)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Export reads everything from store into a Document. Users are not
// enumerable through the Store interface, so callers pass the IDs they want
// included; ExportLoaded on the registry side covers the common case.
func Export(ctx context.Context, store storage.Store, users []*storage.StoredUser) (*Document, error) {
	doc := &Document{Version: FormatVersion}

	groups, err := store.LoadAllGroups(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, g := range groups {
		doc.Groups = append(doc.Groups, GroupDoc{Name: g.Name, Nodes: toNodeDocs(g.Nodes)})
	}

	tracks, err := store.LoadAllTracks(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Name < tracks[j].Name })
	for _, t := range tracks {
		doc.Tracks = append(doc.Tracks, TrackDoc{Name: t.Name, Groups: t.Groups})
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].ID.String() < users[j].ID.String()
	})
	for _, u := range users {
		doc.Users = append(doc.Users, UserDoc{
			ID:           u.ID.String(),
			PrimaryGroup: u.PrimaryGroup,
			Nodes:        toNodeDocs(u.Nodes),
		})
	}

	return doc, nil
}

// Marshal renders the document as YAML.
func Marshal(doc *Document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, oops.Code("EXPORT_FAILED").Wrap(err)
	}
	return data, nil
}

// CheckVersion verifies a document version is importable by this build.
func CheckVersion(version string) error {
	v, err := semver.StrictNewVersion(strings.TrimSpace(version))
	if err != nil {
		return oops.Code("IMPORT_BAD_VERSION").With("version", version).Wrap(err)
	}
	c, err := semver.NewConstraint(formatConstraint)
	if err != nil {
		return oops.Code("IMPORT_BAD_VERSION").Wrap(err)
	}
	if !c.Check(v) {
		return oops.Code("IMPORT_BAD_VERSION").With("version", version).
			Errorf("format version %s is not importable by this build (need %s)", version, formatConstraint)
	}
	return nil
}

// Import validates data and writes its contents through store. Existing
// entities with the same identity are overwritten; nothing else is removed.
func Import(ctx context.Context, store storage.Store, data []byte) (*Document, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, oops.Code("IMPORT_FAILED").Wrap(err)
	}
	if err := CheckVersion(doc.Version); err != nil {
		return nil, err
	}

	for _, g := range doc.Groups {
		nodes, err := fromNodeDocs(g.Nodes)
		if err != nil {
			return nil, oops.Code("IMPORT_FAILED").With("group", g.Name).Wrap(err)
		}
		if err := store.SaveGroup(ctx, &storage.StoredGroup{Name: strings.ToLower(g.Name), Nodes: nodes}); err != nil {
			return nil, err
		}
	}

	for _, t := range doc.Tracks {
		if err := store.SaveTrack(ctx, &storage.StoredTrack{Name: strings.ToLower(t.Name), Groups: t.Groups}); err != nil {
			return nil, err
		}
	}

	for _, u := range doc.Users {
		id, err := parseUserID(u.ID)
		if err != nil {
			return nil, err
		}
		nodes, err := fromNodeDocs(u.Nodes)
		if err != nil {
			return nil, oops.Code("IMPORT_FAILED").With("user", u.ID).Wrap(err)
		}
		if err := store.SaveUser(ctx, &storage.StoredUser{
			ID:           id,
			PrimaryGroup: u.PrimaryGroup,
			Nodes:        nodes,
		}); err != nil {
			return nil, err
		}
	}

	return &doc, nil
}
