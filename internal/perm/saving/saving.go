// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermGate Contributors

// Package saving runs storage writes off the caller's goroutine. Mutations
// apply to the in-memory holder immediately; the write-behind to the store
// retries transient failures with exponential backoff. Callers that need
// confirmation hold on to the returned Handle, everyone else fires and
// forgets.
package saving

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/permgate/permgate/internal/perm/actionlog"
	"github.com/permgate/permgate/internal/perm/storage"
)

// Handle tracks a submitted save. Wait blocks until the save finishes or the
// context is done.
type Handle struct {
	done chan struct{}
	err  error
}

// Wait returns the save's final error, or the context error if ctx expires
// first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return oops.Code("SAVE_WAIT_CANCELED").Wrap(ctx.Err())
	}
}

// Saver serializes nothing and orders nothing: each submission runs in its
// own goroutine. Last write wins, same as the engine's in-memory state.
type Saver struct {
	store    storage.Store
	log      *slog.Logger
	attempts uint64
	backoff  time.Duration

	wg sync.WaitGroup
}

// Option configures a Saver.
type Option func(*Saver)

// WithLogger sets the logger used for retry and failure reporting.
func WithLogger(log *slog.Logger) Option {
	return func(s *Saver) { s.log = log }
}

// WithRetry sets the retry budget: attempts beyond the first try, and the
// initial backoff interval.
func WithRetry(attempts uint64, backoff time.Duration) Option {
	return func(s *Saver) {
		s.attempts = attempts
		s.backoff = backoff
	}
}

// New creates a Saver writing through to store.
func New(store storage.Store, opts ...Option) *Saver {
	s := &Saver{
		store:    store,
		log:      slog.Default(),
		attempts: 4,
		backoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit schedules op to run asynchronously with retries. The op name shows
// up in logs on failure. The save detaches from the caller's cancellation:
// the in-memory mutation has already landed, so a dying request must not
// abort the retry budget of its write-behind.
func (s *Saver) Submit(ctx context.Context, name string, op func(context.Context) error) *Handle {
	ctx = context.WithoutCancel(ctx)
	h := &Handle{done: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)

		backoff := retry.WithMaxRetries(s.attempts, retry.NewExponential(s.backoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := op(ctx); err != nil {
				s.log.Warn("save attempt failed, retrying",
					"op", name,
					"error", err)
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			s.log.Error("save failed after retries",
				"op", name,
				"error", err)
			h.err = oops.Code("SAVE_FAILED").With("op", name).Wrap(err)
		}
	}()
	return h
}

// SaveUser writes a user snapshot in the background.
func (s *Saver) SaveUser(ctx context.Context, u *storage.StoredUser) *Handle {
	return s.Submit(ctx, "save user "+u.ID.String(), func(ctx context.Context) error {
		return s.store.SaveUser(ctx, u)
	})
}

// SaveGroup writes a group snapshot in the background.
func (s *Saver) SaveGroup(ctx context.Context, g *storage.StoredGroup) *Handle {
	return s.Submit(ctx, "save group "+g.Name, func(ctx context.Context) error {
		return s.store.SaveGroup(ctx, g)
	})
}

// SaveTrack writes a track snapshot in the background.
func (s *Saver) SaveTrack(ctx context.Context, t *storage.StoredTrack) *Handle {
	return s.Submit(ctx, "save track "+t.Name, func(ctx context.Context) error {
		return s.store.SaveTrack(ctx, t)
	})
}

// LogAction appends an audit entry in the background.
func (s *Saver) LogAction(ctx context.Context, e actionlog.Entry) *Handle {
	return s.Submit(ctx, "log action", func(ctx context.Context) error {
		return s.store.SaveAction(ctx, e)
	})
}

// Drain blocks until all in-flight saves complete.
func (s *Saver) Drain() {
	s.wg.Wait()
}
