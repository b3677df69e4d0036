// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package manager is the unified facade over the conversation log and the
// context store. It composes them for one store handle and adds cross-family
// operations (overview, session deletion, enumeration); it takes no locks of
// its own — callers needing atomic read-modify-write use the Coordinator.
package manager

import (
	"context"
	"sort"

	"github.com/parley-dev/parley/internal/contextstore"
	"github.com/parley-dev/parley/internal/session"
)

// Manager ties a conversation log and a typed context store together.
type Manager[T contextstore.Record] struct {
	log      *session.Log
	contexts *contextstore.Store[T]
}

// New creates a Manager over an already-constructed log and context store.
func New[T contextstore.Record](log *session.Log, contexts *contextstore.Store[T]) *Manager[T] {
	return &Manager[T]{log: log, contexts: contexts}
}

// Log exposes the conversation log for direct message operations.
func (m *Manager[T]) Log() *session.Log { return m.log }

// Contexts exposes the context store for direct record operations.
func (m *Manager[T]) Contexts() *contextstore.Store[T] { return m.contexts }

// GetOrCreateContext returns the session's context record, storing def when
// none exists. On a hit the record's expiry is refreshed so active sessions
// stay alive.
func (m *Manager[T]) GetOrCreateContext(ctx context.Context, sessionID string, def T) (T, error) {
	rec, ok, err := m.contexts.Get(ctx, sessionID)
	if err != nil {
		return rec, err
	}
	if ok {
		if _, err := m.contexts.ExtendTTL(ctx, sessionID, 0); err != nil {
			return rec, err
		}
		return rec, nil
	}

	if err := m.contexts.Put(ctx, sessionID, def); err != nil {
		var zero T
		return zero, err
	}
	return def, nil
}

// SaveContext overwrites the session's context record.
func (m *Manager[T]) SaveContext(ctx context.Context, sessionID string, rec T) error {
	return m.contexts.Put(ctx, sessionID, rec)
}

// PatchContext merges updates into the stored record. False when no record
// exists; a patch never creates one.
func (m *Manager[T]) PatchContext(ctx context.Context, sessionID string, updates map[string]any) (T, bool, error) {
	return m.contexts.Patch(ctx, sessionID, updates)
}

// Deleted reports which parts of a session existed when DeleteSession ran.
type Deleted struct {
	Log     bool `json:"log"`
	Context bool `json:"context"`
}

// Any reports whether the session existed in any form.
func (d Deleted) Any() bool { return d.Log || d.Context }

// DeleteSession removes the session's log, metadata, and context record.
// Idempotent; the result says what was actually there.
func (m *Manager[T]) DeleteSession(ctx context.Context, sessionID string) (Deleted, error) {
	var d Deleted

	existed, err := m.log.Clear(ctx, sessionID)
	if err != nil {
		return d, err
	}
	d.Log = existed

	existed, err = m.contexts.Delete(ctx, sessionID)
	if err != nil {
		return d, err
	}
	d.Context = existed

	return d, nil
}

// Overview is a point-in-time summary of one session.
type Overview[T contextstore.Record] struct {
	SessionID    string        `json:"session_id"`
	Info         *session.Info `json:"info,omitempty"`
	MessageCount int64         `json:"message_count"`
	HasContext   bool          `json:"has_context"`
	Context      *T            `json:"context,omitempty"`
}

// Overview gathers metadata, message count, and the context record when one
// exists. All fields zero when the session is unknown.
func (m *Manager[T]) Overview(ctx context.Context, sessionID string) (Overview[T], error) {
	ov := Overview[T]{SessionID: sessionID}

	info, err := m.log.Info(ctx, sessionID)
	if err != nil {
		return ov, err
	}
	ov.Info = info

	ov.MessageCount, err = m.log.Size(ctx, sessionID)
	if err != nil {
		return ov, err
	}

	rec, ok, err := m.contexts.Get(ctx, sessionID)
	if err != nil {
		return ov, err
	}
	if ok {
		ov.HasContext = true
		ov.Context = &rec
	}

	return ov, nil
}

// Sessions summarizes everything currently stored.
type Sessions struct {
	IDs         []string `json:"ids"`
	WithLog     int      `json:"with_log"`
	WithContext int      `json:"with_context"`
}

// ListSessions returns the union of session ids that have a conversation log
// and/or a context record, sorted, with per-family counts.
func (m *Manager[T]) ListSessions(ctx context.Context) (Sessions, error) {
	var out Sessions

	logged, err := m.log.ListSessions(ctx)
	if err != nil {
		return out, err
	}
	contextual, err := m.contexts.ListActive(ctx)
	if err != nil {
		return out, err
	}

	out.WithLog = len(logged)
	out.WithContext = len(contextual)

	seen := make(map[string]struct{}, len(logged)+len(contextual))
	for _, id := range logged {
		seen[id] = struct{}{}
	}
	for _, id := range contextual {
		seen[id] = struct{}{}
	}
	out.IDs = make([]string, 0, len(seen))
	for id := range seen {
		out.IDs = append(out.IDs, id)
	}
	sort.Strings(out.IDs)

	return out, nil
}

// CleanupExpired reports how many context keys were observed already
// reclaimed. Approximate; the store expires keys on its own.
func (m *Manager[T]) CleanupExpired(ctx context.Context) (int, error) {
	return m.contexts.SweepExpired(ctx)
}
