// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package storetest holds the black-box conformance suite every store
// backend must pass. Backend test packages call Run with a fresh Store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/internal/store"
)

// Factory returns a fresh, empty Store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises the Store contract against the given backend.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetAbsent", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetGetOverwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", "v1", store.NoExpiry))
		val, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v1", val)

		require.NoError(t, s.Set(ctx, "k", "v2", store.NoExpiry))
		val, ok, err = s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v2", val)
	})

	t.Run("SetNX", func(t *testing.T) {
		s := newStore(t)
		won, err := s.SetNX(ctx, "lock", "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, won)

		won, err = s.SetNX(ctx, "lock", "b", time.Minute)
		require.NoError(t, err)
		assert.False(t, won)

		val, ok, err := s.Get(ctx, "lock")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a", val)
	})

	t.Run("DeleteCountsExisting", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "a", "1", store.NoExpiry))
		require.NoError(t, s.Set(ctx, "b", "2", store.NoExpiry))

		n, err := s.Delete(ctx, "a", "b", "c")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = s.Delete(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("Exists", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Set(ctx, "k", "v", store.NoExpiry))
		ok, err = s.Exists(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ExpireAndTTL", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.Expire(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "expire on absent key")

		require.NoError(t, s.Set(ctx, "k", "v", store.NoExpiry))
		ttl, ok, err := s.TTL(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Negative(t, ttl, "no expiry reports negative ttl")

		ok, err = s.Expire(ctx, "k", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ttl, ok, err = s.TTL(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Positive(t, ttl)
		assert.LessOrEqual(t, ttl, time.Hour)

		_, ok, err = s.TTL(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("KeysByPrefix", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "ctx:a", "1", store.NoExpiry))
		require.NoError(t, s.Set(ctx, "ctx:b", "2", store.NoExpiry))
		require.NoError(t, s.Set(ctx, "other:c", "3", store.NoExpiry))

		keys, err := s.Keys(ctx, "ctx:*")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"ctx:a", "ctx:b"}, keys)
	})

	t.Run("RPushPreservesBatchOrder", func(t *testing.T) {
		s := newStore(t)
		n, err := s.RPush(ctx, "log", store.NoExpiry, "a", "b", "c")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		n, err = s.RPush(ctx, "log", store.NoExpiry, "d")
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		vals, err := s.LRange(ctx, "log", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, vals)
	})

	t.Run("LRangeWindows", func(t *testing.T) {
		s := newStore(t)
		_, err := s.RPush(ctx, "log", store.NoExpiry, "a", "b", "c", "d", "e")
		require.NoError(t, err)

		vals, err := s.LRange(ctx, "log", -2, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "e"}, vals)

		vals, err = s.LRange(ctx, "log", -10, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, vals, "window larger than list")

		vals, err = s.LRange(ctx, "log", 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, vals)

		vals, err = s.LRange(ctx, "absent", 0, -1)
		require.NoError(t, err)
		assert.Empty(t, vals)
	})

	t.Run("RPopFromTail", func(t *testing.T) {
		s := newStore(t)
		_, err := s.RPush(ctx, "log", store.NoExpiry, "a", "b")
		require.NoError(t, err)

		val, ok, err := s.RPop(ctx, "log")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", val)

		val, ok, err = s.RPop(ctx, "log")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a", val)

		_, ok, err = s.RPop(ctx, "log")
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := s.LLen(ctx, "log")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("HashFields", func(t *testing.T) {
		s := newStore(t)
		fields, err := s.HGetAll(ctx, "meta")
		require.NoError(t, err)
		assert.Empty(t, fields)

		require.NoError(t, s.HSet(ctx, "meta", map[string]string{
			"session_id": "s1",
			"created_at": "100.5",
		}, store.NoExpiry))
		require.NoError(t, s.HSet(ctx, "meta", map[string]string{
			"updated_at": "101.5",
		}, store.NoExpiry))

		fields, err = s.HGetAll(ctx, "meta")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"session_id": "s1",
			"created_at": "100.5",
			"updated_at": "101.5",
		}, fields)
	})

	t.Run("PushRefreshesTTL", func(t *testing.T) {
		s := newStore(t)
		_, err := s.RPush(ctx, "log", time.Hour, "a")
		require.NoError(t, err)

		ttl, ok, err := s.TTL(ctx, "log")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Positive(t, ttl)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
