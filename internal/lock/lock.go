// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package lock provides per-session mutual exclusion across workers via the
// store's atomic set-if-absent with expiry. A lock is an ephemeral marker
// key; it auto-expires after the hold timeout, so a crashed holder stalls
// other workers for at most that long.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

const (
	// DefaultPrefix keys the per-session lock markers.
	DefaultPrefix = "session_lock"
	// DefaultHoldTimeout bounds how long a crashed holder can stall others.
	DefaultHoldTimeout = 30 * time.Second
	// DefaultRetries is the config-layer retry budget after the initial
	// attempt fails.
	DefaultRetries = 5
	// DefaultBackoff is the linear backoff base between retries.
	DefaultBackoff = 500 * time.Millisecond
)

// Config controls lock acquisition behaviour.
type Config struct {
	Prefix      string        // default "session_lock"
	HoldTimeout time.Duration // lock key's own TTL; default 30s
	Retries     int           // retry attempts after the first failure; 0 means a single attempt
	Backoff     time.Duration // linear backoff base; default 500ms
}

// Locker acquires session locks against the shared store.
type Locker struct {
	store       store.Store
	prefix      string
	holdTimeout time.Duration
	retries     int
	backoff     time.Duration
}

// NewLocker creates a Locker with defaults applied for zero-value Prefix,
// HoldTimeout, and Backoff. Retries is taken literally: zero means a single
// attempt, and negative values are clamped to zero. The retry default lives
// in the config layer (DefaultRetries) so that zero stays expressible.
func NewLocker(st store.Store, cfg Config) *Locker {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.HoldTimeout == 0 {
		cfg.HoldTimeout = DefaultHoldTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = DefaultBackoff
	}

	return &Locker{
		store:       st,
		prefix:      cfg.Prefix,
		holdTimeout: cfg.HoldTimeout,
		retries:     cfg.Retries,
		backoff:     cfg.Backoff,
	}
}

func (l *Locker) key(sessionID string) string {
	return l.prefix + ":" + sessionID
}

// Acquire takes the session's lock, retrying with linear backoff
// (backoff × attempt number) until the retry budget is exhausted. It
// returns a Guard whose Release must run on every exit path; defer it
// immediately. Exhaustion yields a lock.acquire.contended error naming the
// session, distinct from any mutation failure, so callers can treat it as
// "busy, retry later".
func (l *Locker) Acquire(ctx context.Context, sessionID string) (*Guard, error) {
	key := l.key(sessionID)
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		acquired, err := l.store.SetNX(ctx, key, token, l.holdTimeout)
		if err != nil {
			return nil, err
		}
		if acquired {
			return &Guard{store: l.store, key: key, token: token}, nil
		}
		if attempt >= l.retries {
			break
		}

		wait := l.backoff * time.Duration(attempt+1)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, parleyerr.New(parleyerr.CodeLockContended,
		"could not acquire session lock",
		parleyerr.FieldSessionID(sessionID),
		parleyerr.Field("attempts", l.retries+1))
}

// Guard represents a held lock. Only the guard that acquired a lock ever
// releases it.
type Guard struct {
	store    store.Store
	key      string
	token    string
	released bool
}

// Release deletes the lock marker, but only while it still carries this
// guard's token. A holder that outlived its hold timeout finds a successor's
// token (or nothing) and leaves the key alone. The read and delete are not
// atomic; the window is one store round trip. Idempotent: repeated calls are
// no-ops, so it is safe both deferred and invoked early.
func (g *Guard) Release(ctx context.Context) error {
	if g.released {
		return nil
	}
	g.released = true

	val, ok, err := g.store.Get(ctx, g.key)
	if err != nil {
		return parleyerr.Wrap(err, parleyerr.CodeLockReleaseFailure,
			"releasing session lock", parleyerr.FieldKey(g.key))
	}
	if !ok || val != g.token {
		return nil
	}

	if _, err := g.store.Delete(ctx, g.key); err != nil {
		return parleyerr.Wrap(err, parleyerr.CodeLockReleaseFailure,
			"releasing session lock", parleyerr.FieldKey(g.key))
	}
	return nil
}
