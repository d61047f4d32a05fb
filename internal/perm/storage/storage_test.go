// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package storage_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/permgate/permgate/internal/perm/storage"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"user not found", oops.Code(storage.CodeUserNotFound).Errorf("gone"), true},
		{"group not found", oops.Code(storage.CodeGroupNotFound).Errorf("gone"), true},
		{"track not found", oops.Code(storage.CodeTrackNotFound).Errorf("gone"), true},
		{"other code", oops.Code("STORAGE_FAILED").Errorf("broken"), false},
		{"already exists", oops.Code(storage.CodeGroupAlreadyExists).Errorf("taken"), false},
		{
			"wrapped not found",
			fmt.Errorf("loading: %w", oops.Code(storage.CodeGroupNotFound).Errorf("gone")),
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.IsNotFound(tt.err))
		})
	}
}
