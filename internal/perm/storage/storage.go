// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package storage defines the persistence boundary of the engine. A Store
// sees holders only as bags of nodes to load and save; all semantics live
// in the engine.
package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/permgate/permgate/internal/perm/actionlog"
	"github.com/permgate/permgate/internal/perm/node"
)

// StoredUser is the persisted form of a user holder.
type StoredUser struct {
	ID           uuid.UUID   `json:"id"            yaml:"id"`
	PrimaryGroup string      `json:"primary_group" yaml:"primary_group"`
	Nodes        []node.Node `json:"nodes"         yaml:"nodes"`
}

// StoredGroup is the persisted form of a group holder.
type StoredGroup struct {
	Name  string      `json:"name"  yaml:"name"`
	Nodes []node.Node `json:"nodes" yaml:"nodes"`
}

// StoredTrack is the persisted form of a track.
type StoredTrack struct {
	Name   string   `json:"name"   yaml:"name"`
	Groups []string `json:"groups" yaml:"groups"`
}

// Store handles persistence for users, groups, tracks and the action log.
// Load methods return a NOT_FOUND-coded error when the entity is absent;
// use IsNotFound to detect it.
type Store interface {
	LoadUser(ctx context.Context, id uuid.UUID) (*StoredUser, error)
	SaveUser(ctx context.Context, u *StoredUser) error

	// CreateGroup inserts an empty group, failing with GROUP_ALREADY_EXISTS
	// when the name is taken.
	CreateGroup(ctx context.Context, name string) error
	LoadGroup(ctx context.Context, name string) (*StoredGroup, error)
	SaveGroup(ctx context.Context, g *StoredGroup) error
	DeleteGroup(ctx context.Context, name string) error
	LoadAllGroups(ctx context.Context) ([]*StoredGroup, error)

	LoadTrack(ctx context.Context, name string) (*StoredTrack, error)
	SaveTrack(ctx context.Context, t *StoredTrack) error
	DeleteTrack(ctx context.Context, name string) error
	LoadAllTracks(ctx context.Context) ([]*StoredTrack, error)

	SaveAction(ctx context.Context, entry actionlog.Entry) error

	Close()
}

// Not-found error codes per entity kind.
const (
	CodeUserNotFound  = "USER_NOT_FOUND"
	CodeGroupNotFound = "GROUP_NOT_FOUND"
	CodeTrackNotFound = "TRACK_NOT_FOUND"
)

// CodeGroupAlreadyExists is returned by CreateGroup when the name is taken.
const CodeGroupAlreadyExists = "GROUP_ALREADY_EXISTS"

// IsNotFound reports whether the error carries one of the store's
// not-found codes.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	switch oopsErr.Code() {
	case CodeUserNotFound, CodeGroupNotFound, CodeTrackNotFound:
		return true
	}
	return false
}
