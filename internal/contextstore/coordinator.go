// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package contextstore

import (
	"context"
	"log/slog"

	"github.com/parley-dev/parley/internal/lock"
)

// Coordinator serializes read-modify-write cycles on context records across
// workers using the distributed lock. Every Update runs entirely inside the
// session's lock; release is guaranteed even when the mutation fails.
type Coordinator[T Record] struct {
	locker   *lock.Locker
	contexts *Store[T]
}

// NewCoordinator pairs a locker with a context store.
func NewCoordinator[T Record](locker *lock.Locker, contexts *Store[T]) *Coordinator[T] {
	return &Coordinator[T]{locker: locker, contexts: contexts}
}

// Contexts exposes the underlying context store for plain reads that need
// no coordination.
func (c *Coordinator[T]) Contexts() *Store[T] { return c.contexts }

// Update acquires the session lock, loads the record (creating it from
// defaultFn when absent), applies mutate, and persists the result. When
// mutate returns an error nothing is written and the error is returned
// as-is. The lock is always released, even on a canceled context.
func (c *Coordinator[T]) Update(
	ctx context.Context,
	sessionID string,
	defaultFn func() T,
	mutate func(context.Context, T) (T, error),
) (T, error) {
	var zero T

	guard, err := c.locker.Acquire(ctx, sessionID)
	if err != nil {
		return zero, err
	}
	defer func() {
		// Release must survive caller cancellation or the lock lingers
		// until its hold timeout.
		if err := guard.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("session lock release failed",
				"session_id", sessionID, "error", err)
		}
	}()

	return c.apply(ctx, sessionID, defaultFn, mutate)
}

// UnsafeUpdate is Update without the lock. Concurrent callers can lose
// writes; use it only where a single writer is guaranteed by construction.
func (c *Coordinator[T]) UnsafeUpdate(
	ctx context.Context,
	sessionID string,
	defaultFn func() T,
	mutate func(context.Context, T) (T, error),
) (T, error) {
	return c.apply(ctx, sessionID, defaultFn, mutate)
}

func (c *Coordinator[T]) apply(
	ctx context.Context,
	sessionID string,
	defaultFn func() T,
	mutate func(context.Context, T) (T, error),
) (T, error) {
	var zero T

	rec, err := c.contexts.GetOrCreate(ctx, sessionID, defaultFn())
	if err != nil {
		return zero, err
	}

	next, err := mutate(ctx, rec)
	if err != nil {
		return zero, err
	}

	if err := c.contexts.Put(ctx, sessionID, next); err != nil {
		return zero, err
	}
	return next, nil
}
