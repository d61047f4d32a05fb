// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

package saving

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/permgate/permgate/internal/perm/actionlog"
	"github.com/permgate/permgate/internal/perm/storage"
	"github.com/permgate/permgate/pkg/errutil"
)

// flakyStore fails SaveUser a configurable number of times before
// succeeding and records every call.
type flakyStore struct {
	mu        sync.Mutex
	failures  int
	userSaves int
	groups    []string
	actions   []actionlog.Entry
}

func (f *flakyStore) LoadUser(context.Context, uuid.UUID) (*storage.StoredUser, error) {
	return nil, errors.New("not implemented")
}

func (f *flakyStore) SaveUser(_ context.Context, _ *storage.StoredUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userSaves++
	if f.failures > 0 {
		f.failures--
		return errors.New("transient")
	}
	return nil
}

func (f *flakyStore) CreateGroup(context.Context, string) error { return nil }
func (f *flakyStore) LoadGroup(context.Context, string) (*storage.StoredGroup, error) {
	return nil, errors.New("not implemented")
}

func (f *flakyStore) SaveGroup(_ context.Context, g *storage.StoredGroup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, g.Name)
	return nil
}

func (f *flakyStore) DeleteGroup(context.Context, string) error { return nil }
func (f *flakyStore) LoadAllGroups(context.Context) ([]*storage.StoredGroup, error) {
	return nil, nil
}

func (f *flakyStore) LoadTrack(context.Context, string) (*storage.StoredTrack, error) {
	return nil, errors.New("not implemented")
}
func (f *flakyStore) SaveTrack(context.Context, *storage.StoredTrack) error { return nil }
func (f *flakyStore) DeleteTrack(context.Context, string) error             { return nil }
func (f *flakyStore) LoadAllTracks(context.Context) ([]*storage.StoredTrack, error) {
	return nil, nil
}

func (f *flakyStore) SaveAction(_ context.Context, e actionlog.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, e)
	return nil
}

func (f *flakyStore) Close() {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSaveUser_Succeeds(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &flakyStore{}
	s := New(store, WithLogger(quietLogger()))

	h := s.SaveUser(context.Background(), &storage.StoredUser{ID: uuid.New()})
	require.NoError(t, h.Wait(context.Background()))

	s.Drain()
	assert.Equal(t, 1, store.userSaves)
}

func TestSaveUser_RetriesTransientFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &flakyStore{failures: 2}
	s := New(store, WithLogger(quietLogger()), WithRetry(3, time.Millisecond))

	h := s.SaveUser(context.Background(), &storage.StoredUser{ID: uuid.New()})
	require.NoError(t, h.Wait(context.Background()))

	s.Drain()
	assert.Equal(t, 3, store.userSaves, "two failures then a success")
}

func TestSaveUser_FailsAfterBudget(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &flakyStore{failures: 100}
	s := New(store, WithLogger(quietLogger()), WithRetry(2, time.Millisecond))

	h := s.SaveUser(context.Background(), &storage.StoredUser{ID: uuid.New()})
	err := h.Wait(context.Background())
	errutil.AssertErrorCode(t, err, "SAVE_FAILED")

	s.Drain()
	assert.Equal(t, 3, store.userSaves, "first try plus two retries")
}

func TestWait_ContextCanceled(t *testing.T) {
	store := &flakyStore{}
	s := New(store, WithLogger(quietLogger()))

	release := make(chan struct{})
	h := s.Submit(context.Background(), "slow op", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.Wait(ctx)
	errutil.AssertErrorCode(t, err, "SAVE_WAIT_CANCELED")

	close(release)
	s.Drain()
}

func TestSaveUser_SurvivesCallerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &flakyStore{failures: 2}
	s := New(store, WithLogger(quietLogger()), WithRetry(3, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := s.SaveUser(ctx, &storage.StoredUser{ID: uuid.New()})

	require.NoError(t, h.Wait(context.Background()),
		"a dead request context must not abort the retry budget")
	s.Drain()
	assert.Equal(t, 3, store.userSaves)
}

func TestDrain_WaitsForAllSubmissions(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &flakyStore{}
	s := New(store, WithLogger(quietLogger()))

	var completed int32
	for i := 0; i < 10; i++ {
		s.Submit(context.Background(), "op", func(context.Context) error {
			atomic.AddInt32(&completed, 1)
			return nil
		})
	}

	s.Drain()
	assert.Equal(t, int32(10), atomic.LoadInt32(&completed))
}

func TestGroupTrackActionWrappers(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &flakyStore{}
	s := New(store, WithLogger(quietLogger()))
	ctx := context.Background()

	require.NoError(t, s.SaveGroup(ctx, &storage.StoredGroup{Name: "admin"}).Wait(ctx))
	require.NoError(t, s.SaveTrack(ctx, &storage.StoredTrack{Name: "staff"}).Wait(ctx))
	require.NoError(t, s.LogAction(ctx, actionlog.New("console", "group admin", "created")).Wait(ctx))

	s.Drain()
	assert.Equal(t, []string{"admin"}, store.groups)
	require.Len(t, store.actions, 1)
	assert.Equal(t, "created", store.actions[0].Action)
}
