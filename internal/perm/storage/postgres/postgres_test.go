// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permgate/permgate/internal/perm/actionlog"
	"github.com/permgate/permgate/internal/perm/storage"
	"github.com/permgate/permgate/internal/perm/storage/postgres"
	"github.com/permgate/permgate/pkg/errutil"
)

func newMockStore(t *testing.T) (*postgres.Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return postgres.NewWithPool(mock), mock
}

func TestLoadUser(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		check     func(t *testing.T, u *storage.StoredUser, err error)
	}{
		{
			name: "found with nodes",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"primary_group", "nodes"}).
					AddRow("admin", []byte(`[{"permission":"fly.use","value":true},{"permission":"group.admin","value":true}]`))
				mock.ExpectQuery(`SELECT primary_group, nodes FROM permgate_users`).
					WithArgs(id).
					WillReturnRows(rows)
			},
			check: func(t *testing.T, u *storage.StoredUser, err error) {
				require.NoError(t, err)
				assert.Equal(t, "admin", u.PrimaryGroup)
				require.Len(t, u.Nodes, 2)
				assert.Equal(t, "fly.use", u.Nodes[0].Permission())
				assert.True(t, u.Nodes[1].IsGroupNode())
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT primary_group, nodes FROM permgate_users`).
					WithArgs(id).
					WillReturnError(pgx.ErrNoRows)
			},
			check: func(t *testing.T, _ *storage.StoredUser, err error) {
				assert.True(t, storage.IsNotFound(err))
				errutil.AssertErrorCode(t, err, storage.CodeUserNotFound)
			},
		},
		{
			name: "malformed node document",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"primary_group", "nodes"}).
					AddRow("default", []byte(`{not json`))
				mock.ExpectQuery(`SELECT primary_group, nodes FROM permgate_users`).
					WithArgs(id).
					WillReturnRows(rows)
			},
			check: func(t *testing.T, _ *storage.StoredUser, err error) {
				errutil.AssertErrorCode(t, err, "STORAGE_FAILED")
			},
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT primary_group, nodes FROM permgate_users`).
					WithArgs(id).
					WillReturnError(errors.New("connection refused"))
			},
			check: func(t *testing.T, _ *storage.StoredUser, err error) {
				errutil.AssertErrorCode(t, err, "STORAGE_FAILED")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, mock := newMockStore(t)
			tt.setupMock(mock)

			u, err := st.LoadUser(context.Background(), id)
			tt.check(t, u, err)

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestSaveUser(t *testing.T) {
	st, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(`INSERT INTO permgate_users`).
		WithArgs(id, "admin", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.SaveUser(context.Background(), &storage.StoredUser{ID: id, PrimaryGroup: "admin"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroup(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		code      string
	}{
		{
			name: "created",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO permgate_groups`).
					WithArgs("admin").
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate name",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO permgate_groups`).
					WithArgs("admin").
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			code: storage.CodeGroupAlreadyExists,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO permgate_groups`).
					WithArgs("admin").
					WillReturnError(errors.New("connection refused"))
			},
			code: "STORAGE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, mock := newMockStore(t)
			tt.setupMock(mock)

			err := st.CreateGroup(context.Background(), "admin")
			if tt.code == "" {
				assert.NoError(t, err)
			} else {
				errutil.AssertErrorCode(t, err, tt.code)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoadGroup(t *testing.T) {
	st, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"nodes"}).
		AddRow([]byte(`[{"permission":"admin.*","value":true}]`))
	mock.ExpectQuery(`SELECT nodes FROM permgate_groups`).
		WithArgs("admin").
		WillReturnRows(rows)

	g, err := st.LoadGroup(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", g.Name)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, 1, g.Nodes[0].WildcardLevel())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadGroupNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT nodes FROM permgate_groups`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.LoadGroup(context.Background(), "ghost")
	assert.True(t, storage.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteGroup(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		st, mock := newMockStore(t)
		mock.ExpectExec(`DELETE FROM permgate_groups`).
			WithArgs("admin").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, st.DeleteGroup(context.Background(), "admin"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		st, mock := newMockStore(t)
		mock.ExpectExec(`DELETE FROM permgate_groups`).
			WithArgs("ghost").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := st.DeleteGroup(context.Background(), "ghost")
		assert.True(t, storage.IsNotFound(err))
		errutil.AssertErrorCode(t, err, storage.CodeGroupNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoadAllGroups(t *testing.T) {
	st, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"name", "nodes"}).
		AddRow("admin", []byte(`[{"permission":"admin.*","value":true}]`)).
		AddRow("default", []byte(`[]`))
	mock.ExpectQuery(`SELECT name, nodes FROM permgate_groups ORDER BY name`).
		WillReturnRows(rows)

	groups, err := st.LoadAllGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "admin", groups[0].Name)
	assert.Empty(t, groups[1].Nodes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackRoundTrip(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO permgate_tracks`).
		WithArgs("staff", []byte(`["default","mod","admin"]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.SaveTrack(context.Background(), &storage.StoredTrack{
		Name:   "staff",
		Groups: []string{"default", "mod", "admin"},
	})
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"groups"}).
		AddRow([]byte(`["default","mod","admin"]`))
	mock.ExpectQuery(`SELECT groups FROM permgate_tracks`).
		WithArgs("staff").
		WillReturnRows(rows)

	tr, err := st.LoadTrack(context.Background(), "staff")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "mod", "admin"}, tr.Groups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTrackNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM permgate_tracks`).
		WithArgs("ghost").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := st.DeleteTrack(context.Background(), "ghost")
	errutil.AssertErrorCode(t, err, storage.CodeTrackNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadAllTracks(t *testing.T) {
	st, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"name", "groups"}).
		AddRow("staff", []byte(`["default","admin"]`))
	mock.ExpectQuery(`SELECT name, groups FROM permgate_tracks ORDER BY name`).
		WillReturnRows(rows)

	tracks, err := st.LoadAllTracks(context.Background())
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, []string{"default", "admin"}, tracks[0].Groups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAction(t *testing.T) {
	st, mock := newMockStore(t)
	entry := actionlog.New("bridge", "user 1234", "setpermission fly.use true")

	mock.ExpectExec(`INSERT INTO permgate_actions`).
		WithArgs(entry.ID.String(), entry.Timestamp, entry.Actor, entry.Acted, entry.Action).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SaveAction(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}
