// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package postgres implements the storage.Store interface on PostgreSQL.
// Node sets are stored as JSONB documents; schema management goes through
// the embedded migrations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/permgate/permgate/internal/perm/actionlog"
	"github.com/permgate/permgate/internal/perm/node"
	"github.com/permgate/permgate/internal/perm/storage"
)

// poolIface is the subset of pgxpool.Pool the store uses. pgxmock
// implements it, so unit tests run without a database.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements storage.Store on PostgreSQL.
type Store struct {
	pool poolIface
}

var _ storage.Store = (*Store)(nil)

// New connects a pool for the given DSN.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STORAGE_FAILED").With("operation", "connect").Wrap(err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool (or a pgxmock pool in tests).
func NewWithPool(pool poolIface) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LoadUser fetches a user's node bag and primary group.
func (s *Store) LoadUser(ctx context.Context, id uuid.UUID) (*storage.StoredUser, error) {
	var primaryGroup string
	var nodesJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT primary_group, nodes FROM permgate_users WHERE id = $1`,
		id).Scan(&primaryGroup, &nodesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.
			Code(storage.CodeUserNotFound).
			With("user", id.String()).
			Errorf("user %s not found", id)
	}
	if err != nil {
		return nil, oops.Code("STORAGE_FAILED").With("operation", "load user").Wrap(err)
	}

	nodes, err := decodeNodes(nodesJSON)
	if err != nil {
		return nil, oops.
			Code("STORAGE_FAILED").
			With("operation", "decode user nodes").
			With("user", id.String()).
			Wrap(err)
	}
	return &storage.StoredUser{ID: id, PrimaryGroup: primaryGroup, Nodes: nodes}, nil
}

// SaveUser upserts a user's node bag and primary group.
func (s *Store) SaveUser(ctx context.Context, u *storage.StoredUser) error {
	nodesJSON, err := json.Marshal(u.Nodes)
	if err != nil {
		return oops.Code("STORAGE_FAILED").With("operation", "encode user nodes").Wrap(err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO permgate_users (id, primary_group, nodes, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET primary_group = EXCLUDED.primary_group,
		    nodes = EXCLUDED.nodes,
		    updated_at = now()
	`, u.ID, u.PrimaryGroup, nodesJSON)
	if err != nil {
		return oops.Code("STORAGE_FAILED").
			With("operation", "save user").
			With("user", u.ID.String()).
			Wrap(err)
	}
	return nil
}

// CreateGroup inserts an empty group row.
func (s *Store) CreateGroup(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO permgate_groups (name, nodes, updated_at) VALUES ($1, '[]', now())`,
		name)
	if isUniqueViolation(err) {
		return oops.
			Code("GROUP_ALREADY_EXISTS").
			With("group", name).
			Errorf("group %q already exists", name)
	}
	if err != nil {
		return oops.Code("STORAGE_FAILED").With("operation", "create group").Wrap(err)
	}
	return nil
}

// LoadGroup fetches a group's node bag.
func (s *Store) LoadGroup(ctx context.Context, name string) (*storage.StoredGroup, error) {
	var nodesJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT nodes FROM permgate_groups WHERE name = $1`,
		name).Scan(&nodesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.
			Code(storage.CodeGroupNotFound).
			With("group", name).
			Errorf("group %q not found", name)
	}
	if err != nil {
		return nil, oops.Code("STORAGE_FAILED").With("operation", "load group").Wrap(err)
	}

	nodes, err := decodeNodes(nodesJSON)
	if err != nil {
		return nil, oops.
			Code("STORAGE_FAILED").
			With("operation", "decode group nodes").
			With("group", name).
			Wrap(err)
	}
	return &storage.StoredGroup{Name: name, Nodes: nodes}, nil
}

// SaveGroup upserts a group's node bag.
func (s *Store) SaveGroup(ctx context.Context, g *storage.StoredGroup) error {
	nodesJSON, err := json.Marshal(g.Nodes)
	if err != nil {
		return oops.Code("STORAGE_FAILED").With("operation", "encode group nodes").Wrap(err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO permgate_groups (name, nodes, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET nodes = EXCLUDED.nodes, updated_at = now()
	`, g.Name, nodesJSON)
	if err != nil {
		return oops.Code("STORAGE_FAILED").
			With("operation", "save group").
			With("group", g.Name).
			Wrap(err)
	}
	return nil
}

// DeleteGroup removes a group row.
func (s *Store) DeleteGroup(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM permgate_groups WHERE name = $1`, name)
	if err != nil {
		return oops.Code("STORAGE_FAILED").With("operation", "delete group").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.
			Code(storage.CodeGroupNotFound).
			With("group", name).
			Errorf("group %q not found", name)
	}
	return nil
}

// LoadAllGroups fetches every group.
func (s *Store) LoadAllGroups(ctx context.Context) ([]*storage.StoredGroup, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, nodes FROM permgate_groups ORDER BY name`)
	if err != nil {
		return nil, oops.Code("STORAGE_FAILED").With("operation", "load all groups").Wrap(err)
	}
	defer rows.Close()

	var groups []*storage.StoredGroup
	for rows.Next() {
		var name string
		var nodesJSON []byte
		if err := rows.Scan(&name, &nodesJSON); err != nil {
			return nil, oops.Code("STORAGE_FAILED").With("operation", "scan group row").Wrap(err)
		}
		nodes, err := decodeNodes(nodesJSON)
		if err != nil {
			return nil, oops.
				Code("STORAGE_FAILED").
				With("operation", "decode group nodes").
				With("group", name).
				Wrap(err)
		}
		groups = append(groups, &storage.StoredGroup{Name: name, Nodes: nodes})
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORAGE_FAILED").With("operation", "iterate groups").Wrap(err)
	}
	return groups, nil
}

// LoadTrack fetches a track's ordered group list.
func (s *Store) LoadTrack(ctx context.Context, name string) (*storage.StoredTrack, error) {
	var groupsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT groups FROM permgate_tracks WHERE name = $1`,
		name).Scan(&groupsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.
			Code(storage.CodeTrackNotFound).
			With("track", name).
			Errorf("track %q not found", name)
	}
	if err != nil {
		return nil, oops.Code("STORAGE_FAILED").With("operation", "load track").Wrap(err)
	}

	var groups []string
	if err := json.Unmarshal(groupsJSON, &groups); err != nil {
		return nil, oops.
			Code("STORAGE_FAILED").
			With("operation", "decode track groups").
			With("track", name).
			Wrap(err)
	}
	return &storage.StoredTrack{Name: name, Groups: groups}, nil
}

// SaveTrack upserts a track.
func (s *Store) SaveTrack(ctx context.Context, t *storage.StoredTrack) error {
	groupsJSON, err := json.Marshal(t.Groups)
	if err != nil {
		return oops.Code("STORAGE_FAILED").With("operation", "encode track groups").Wrap(err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO permgate_tracks (name, groups, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET groups = EXCLUDED.groups, updated_at = now()
	`, t.Name, groupsJSON)
	if err != nil {
		return oops.Code("STORAGE_FAILED").
			With("operation", "save track").
			With("track", t.Name).
			Wrap(err)
	}
	return nil
}

// DeleteTrack removes a track row.
func (s *Store) DeleteTrack(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM permgate_tracks WHERE name = $1`, name)
	if err != nil {
		return oops.Code("STORAGE_FAILED").With("operation", "delete track").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.
			Code(storage.CodeTrackNotFound).
			With("track", name).
			Errorf("track %q not found", name)
	}
	return nil
}

// LoadAllTracks fetches every track.
func (s *Store) LoadAllTracks(ctx context.Context) ([]*storage.StoredTrack, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, groups FROM permgate_tracks ORDER BY name`)
	if err != nil {
		return nil, oops.Code("STORAGE_FAILED").With("operation", "load all tracks").Wrap(err)
	}
	defer rows.Close()

	var tracks []*storage.StoredTrack
	for rows.Next() {
		var name string
		var groupsJSON []byte
		if err := rows.Scan(&name, &groupsJSON); err != nil {
			return nil, oops.Code("STORAGE_FAILED").With("operation", "scan track row").Wrap(err)
		}
		var groups []string
		if err := json.Unmarshal(groupsJSON, &groups); err != nil {
			return nil, oops.
				Code("STORAGE_FAILED").
				With("operation", "decode track groups").
				With("track", name).
				Wrap(err)
		}
		tracks = append(tracks, &storage.StoredTrack{Name: name, Groups: groups})
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORAGE_FAILED").With("operation", "iterate tracks").Wrap(err)
	}
	return tracks, nil
}

// SaveAction appends an audit entry.
func (s *Store) SaveAction(ctx context.Context, entry actionlog.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO permgate_actions (id, occurred_at, actor, acted, action)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID.String(), entry.Timestamp, entry.Actor, entry.Acted, entry.Action)
	if err != nil {
		return oops.Code("STORAGE_FAILED").With("operation", "save action").Wrap(err)
	}
	return nil
}

func decodeNodes(data []byte) ([]node.Node, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var nodes []node.Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
