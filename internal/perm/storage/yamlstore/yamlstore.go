// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package yamlstore implements storage.Store on top of a filesystem tree of
// YAML documents. Users, groups and tracks each get a file of their own under
// users/, groups/ and tracks/; the action log is an append-only YAML stream.
//
// The backend is intended for small deployments and for seeding test
// fixtures. It takes an afero.Fs so tests run against an in-memory
// filesystem.
package yamlstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/permgate/permgate/internal/perm/actionlog"
	"github.com/permgate/permgate/internal/perm/storage"
)

const (
	usersDir   = "users"
	groupsDir  = "groups"
	tracksDir  = "tracks"
	actionsLog = "actions.yaml"

	fileMode = 0o644
	dirMode  = 0o755
)

// Store persists permission data as YAML files rooted at a directory.
type Store struct {
	mu   sync.Mutex
	fs   afero.Fs
	root string
}

var _ storage.Store = (*Store)(nil)

// New creates a Store rooted at dir on the host filesystem.
func New(dir string) (*Store, error) {
	return NewWithFs(afero.NewOsFs(), dir)
}

// NewWithFs creates a Store over an arbitrary afero filesystem.
func NewWithFs(fs afero.Fs, dir string) (*Store, error) {
	s := &Store{fs: fs, root: dir}
	for _, d := range []string{usersDir, groupsDir, tracksDir} {
		if err := fs.MkdirAll(path.Join(dir, d), dirMode); err != nil {
			return nil, oops.Code("STORAGE_INIT_FAILED").With("dir", d).Wrap(err)
		}
	}
	return s, nil
}

func (s *Store) userPath(id string) string {
	return path.Join(s.root, usersDir, strings.ToLower(id)+".yaml")
}

func (s *Store) groupPath(name string) string {
	return path.Join(s.root, groupsDir, strings.ToLower(name)+".yaml")
}

func (s *Store) trackPath(name string) string {
	return path.Join(s.root, tracksDir, strings.ToLower(name)+".yaml")
}

func (s *Store) readDoc(p string, out any, notFound error) error {
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return notFound
		}
		return oops.Code("STORAGE_READ_FAILED").With("path", p).Wrap(err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return oops.Code("STORAGE_DECODE_FAILED").With("path", p).Wrap(err)
	}
	return nil
}

// writeDoc writes to a temp file in the same directory and renames it over
// the target, so readers never observe a half-written document.
func (s *Store) writeDoc(p string, in any) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return oops.Code("STORAGE_ENCODE_FAILED").With("path", p).Wrap(err)
	}
	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, fileMode); err != nil {
		return oops.Code("STORAGE_WRITE_FAILED").With("path", p).Wrap(err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		return oops.Code("STORAGE_WRITE_FAILED").With("path", p).Wrap(err)
	}
	return nil
}

// LoadUser reads a user document by UUID.
func (s *Store) LoadUser(_ context.Context, id uuid.UUID) (*storage.StoredUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var u storage.StoredUser
	notFound := oops.Code(storage.CodeUserNotFound).With("user", id.String()).Errorf("user %s not found", id)
	if err := s.readDoc(s.userPath(id.String()), &u, notFound); err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUser writes a user document, creating it if absent.
func (s *Store) SaveUser(_ context.Context, u *storage.StoredUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDoc(s.userPath(u.ID.String()), u)
}

// CreateGroup writes an empty group document, failing when one already
// exists.
func (s *Store) CreateGroup(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.groupPath(name)
	if ok, err := afero.Exists(s.fs, p); err != nil {
		return oops.Code("STORAGE_READ_FAILED").With("path", p).Wrap(err)
	} else if ok {
		return oops.Code(storage.CodeGroupAlreadyExists).With("group", name).
			Errorf("group %s already exists", name)
	}
	return s.writeDoc(p, &storage.StoredGroup{Name: strings.ToLower(name)})
}

// LoadGroup reads a group document by name.
func (s *Store) LoadGroup(_ context.Context, name string) (*storage.StoredGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var g storage.StoredGroup
	notFound := oops.Code(storage.CodeGroupNotFound).With("group", name).Errorf("group %s not found", name)
	if err := s.readDoc(s.groupPath(name), &g, notFound); err != nil {
		return nil, err
	}
	return &g, nil
}

// SaveGroup writes a group document, creating it if absent.
func (s *Store) SaveGroup(_ context.Context, g *storage.StoredGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDoc(s.groupPath(g.Name), g)
}

// DeleteGroup removes a group document. Deleting an absent group is an error.
func (s *Store) DeleteGroup(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.groupPath(name)
	if err := s.fs.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return oops.Code(storage.CodeGroupNotFound).With("group", name).
				Errorf("group %s not found", name)
		}
		return oops.Code("STORAGE_DELETE_FAILED").With("path", p).Wrap(err)
	}
	return nil
}

// LoadAllGroups reads every group document under groups/.
func (s *Store) LoadAllGroups(_ context.Context) ([]*storage.StoredGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := path.Join(s.root, groupsDir)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, oops.Code("STORAGE_READ_FAILED").With("path", dir).Wrap(err)
	}
	var groups []*storage.StoredGroup
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		var g storage.StoredGroup
		p := path.Join(dir, e.Name())
		if err := s.readDoc(p, &g, oops.Errorf("group file vanished: %s", p)); err != nil {
			return nil, err
		}
		groups = append(groups, &g)
	}
	return groups, nil
}

// LoadTrack reads a track document by name.
func (s *Store) LoadTrack(_ context.Context, name string) (*storage.StoredTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t storage.StoredTrack
	notFound := oops.Code(storage.CodeTrackNotFound).With("track", name).Errorf("track %s not found", name)
	if err := s.readDoc(s.trackPath(name), &t, notFound); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTrack writes a track document, creating it if absent.
func (s *Store) SaveTrack(_ context.Context, t *storage.StoredTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDoc(s.trackPath(t.Name), t)
}

// DeleteTrack removes a track document. Deleting an absent track is an error.
func (s *Store) DeleteTrack(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.trackPath(name)
	if err := s.fs.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return oops.Code(storage.CodeTrackNotFound).With("track", name).
				Errorf("track %s not found", name)
		}
		return oops.Code("STORAGE_DELETE_FAILED").With("path", p).Wrap(err)
	}
	return nil
}

// LoadAllTracks reads every track document under tracks/.
func (s *Store) LoadAllTracks(_ context.Context) ([]*storage.StoredTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := path.Join(s.root, tracksDir)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, oops.Code("STORAGE_READ_FAILED").With("path", dir).Wrap(err)
	}
	var tracks []*storage.StoredTrack
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		var t storage.StoredTrack
		p := path.Join(dir, e.Name())
		if err := s.readDoc(p, &t, oops.Errorf("track file vanished: %s", p)); err != nil {
			return nil, err
		}
		tracks = append(tracks, &t)
	}
	return tracks, nil
}

// SaveAction appends an entry to the action log as a single YAML stream
// document.
func (s *Store) SaveAction(_ context.Context, e actionlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := yaml.Marshal(e)
	if err != nil {
		return oops.Code("STORAGE_ENCODE_FAILED").Wrap(err)
	}
	p := path.Join(s.root, actionsLog)
	f, err := s.fs.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return oops.Code("STORAGE_WRITE_FAILED").With("path", p).Wrap(err)
	}
	defer f.Close() //nolint:errcheck // write error below takes precedence
	if _, err := fmt.Fprintf(f, "---\n%s", data); err != nil {
		return oops.Code("STORAGE_WRITE_FAILED").With("path", p).Wrap(err)
	}
	return nil
}

// Close is a no-op; the filesystem needs no teardown.
func (s *Store) Close() {}
