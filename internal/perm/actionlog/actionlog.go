// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package actionlog records who changed what: one entry per applied
// mutation, persisted through the storage layer.
package actionlog

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

// Entry is a single audit record. Actor and Acted are free-form holder
// descriptions ("user <uuid>", "group admin", "console").
type Entry struct {
	ID        ulid.ULID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Acted     string    `json:"acted"`
	Action    string    `json:"action"`
}

// New creates an entry stamped with a fresh ULID and the current time.
func New(actor, acted, action string) Entry {
	return Entry{
		ID:        ulid.Make(),
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Acted:     acted,
		Action:    action,
	}
}

// String renders the entry for log output.
func (e Entry) String() string {
	return fmt.Sprintf("%s: %s > %s > %s", e.ID, e.Actor, e.Acted, e.Action)
}

// entryYAML mirrors Entry with the ULID rendered as its canonical string.
// yaml.v3 ignores encoding.TextMarshaler, so the translation is explicit.
type entryYAML struct {
	ID        string    `yaml:"id"`
	Timestamp time.Time `yaml:"timestamp"`
	Actor     string    `yaml:"actor"`
	Acted     string    `yaml:"acted"`
	Action    string    `yaml:"action"`
}

// MarshalYAML implements yaml.Marshaler.
func (e Entry) MarshalYAML() (any, error) {
	return entryYAML{
		ID:        e.ID.String(),
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Acted:     e.Acted,
		Action:    e.Action,
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var raw entryYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	id, err := ulid.Parse(raw.ID)
	if err != nil {
		return fmt.Errorf("parse action id: %w", err)
	}
	*e = Entry{
		ID:        id,
		Timestamp: raw.Timestamp,
		Actor:     raw.Actor,
		Acted:     raw.Acted,
		Action:    raw.Action,
	}
	return nil
}
