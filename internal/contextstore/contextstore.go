// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package contextstore persists typed per-session context records in the
// remote store, whole-object on every write, with TTL expiry and refresh.
// The Coordinator in this package layers distributed locking on top for
// read-modify-write cycles shared between workers.
package contextstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// DefaultPrefix keys the per-session context records.
const DefaultPrefix = "agent_context"

// Config controls key derivation and expiry for a Store.
type Config struct {
	Prefix string        // default "agent_context"
	TTL    time.Duration // applied on writes; 0 = keys never expire
}

// Store persists records of type T, one per session id.
type Store[T Record] struct {
	kv     store.Store
	prefix string
	ttl    time.Duration
}

// New creates a context Store over the given backend.
func New[T Record](kv store.Store, cfg Config) *Store[T] {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Store[T]{kv: kv, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// Prefix returns the key prefix records are stored under.
func (s *Store[T]) Prefix() string { return s.prefix }

func (s *Store[T]) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Get returns the session's record. The second return is false when the
// record was never written, has expired, or cannot be decoded — reads stay
// total; callers wanting corruption visibility add their own counters.
func (s *Store[T]) Get(ctx context.Context, sessionID string) (T, bool, error) {
	var zero T

	raw, ok, err := s.kv.Get(ctx, s.key(sessionID))
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	var rec T
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return zero, false, nil
	}
	return rec, true, nil
}

// Put serializes the whole record and writes it with the configured TTL,
// overwriting any prior value.
func (s *Store[T]) Put(ctx context.Context, sessionID string, rec T) error {
	return s.PutTTL(ctx, sessionID, rec, s.ttl)
}

// PutTTL is Put with an explicit TTL for this write only.
func (s *Store[T]) PutTTL(ctx context.Context, sessionID string, rec T, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return parleyerr.Wrap(err, parleyerr.CodeContextEncode,
			"serializing context record", parleyerr.FieldSessionID(sessionID))
	}
	return s.kv.Set(ctx, s.key(sessionID), string(raw), ttl)
}

// GetOrCreate returns the existing record, or stores and returns def when
// none exists.
//
// This is not atomic against a concurrent writer: two callers racing on an
// absent key may both observe absence and each persist their own default,
// with the later write surviving. Wrap calls in the Coordinator when that
// matters.
func (s *Store[T]) GetOrCreate(ctx context.Context, sessionID string, def T) (T, error) {
	rec, ok, err := s.Get(ctx, sessionID)
	if err != nil {
		return rec, err
	}
	if ok {
		return rec, nil
	}

	if err := s.Put(ctx, sessionID, def); err != nil {
		var zero T
		return zero, err
	}
	return def, nil
}

// Patch merges updates into the stored record field-by-field, validates the
// merged result, and writes it back whole. The second return is false when
// no record exists — a patch never creates one. A validation or type
// failure leaves the stored record untouched.
func (s *Store[T]) Patch(ctx context.Context, sessionID string, updates map[string]any) (T, bool, error) {
	var zero T

	raw, ok, err := s.kv.Get(ctx, s.key(sessionID))
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		// Undecodable stored records read as absent everywhere else;
		// patching one behaves the same way.
		return zero, false, nil
	}
	for k, v := range updates {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, false, parleyerr.Wrap(err, parleyerr.CodeContextEncode,
			"serializing merged context", parleyerr.FieldSessionID(sessionID))
	}

	var rec T
	if err := json.Unmarshal(merged, &rec); err != nil {
		return zero, false, parleyerr.Wrap(err, parleyerr.CodeContextValidation,
			"merged context does not fit the record schema",
			parleyerr.FieldSessionID(sessionID))
	}
	if err := rec.Validate(); err != nil {
		return zero, false, parleyerr.Wrap(err, parleyerr.CodeContextValidation,
			"validating merged context", parleyerr.FieldSessionID(sessionID))
	}

	if err := s.Put(ctx, sessionID, rec); err != nil {
		return zero, false, err
	}
	return rec, true, nil
}

// Delete removes the session's record, reporting whether one existed.
func (s *Store[T]) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.kv.Delete(ctx, s.key(sessionID))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExtendTTL refreshes the record's expiry. A non-positive ttl uses the
// configured default. Returns false when no record exists.
func (s *Store[T]) ExtendTTL(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	if ttl <= 0 {
		// No expiry configured at all; nothing to refresh, but report
		// whether the record exists so callers keep a uniform contract.
		return s.kv.Exists(ctx, s.key(sessionID))
	}
	return s.kv.Expire(ctx, s.key(sessionID), ttl)
}

// ListActive enumerates session ids that currently have a context record.
// Best-effort point-in-time snapshot.
func (s *Store[T]) ListActive(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, s.prefix+":*")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	prefixLen := len(s.prefix) + 1
	for _, key := range keys {
		ids = append(ids, key[prefixLen:])
	}
	return ids, nil
}

// SweepExpired counts keys under the prefix observed as already reclaimed
// at enumeration time. Inherently racy against the store's own expiry:
// treat the result as an approximate metric, never an authoritative count.
func (s *Store[T]) SweepExpired(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, s.prefix+":*")
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, key := range keys {
		_, exists, err := s.kv.TTL(ctx, key)
		if err != nil {
			return expired, err
		}
		if !exists {
			expired++
		}
	}
	return expired, nil
}
