// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package store

import (
	"context"
	"time"
)

// NoExpiry disables expiry for a write. Keys written with NoExpiry persist
// until explicitly deleted.
const NoExpiry time.Duration = 0

// Store is the abstract remote key-value/list/hash store Parley persists
// through. Every operation is atomic per key on the backend; a variadic
// RPush lands as one contiguous batch. Implementations must treat an absent
// key as a normal result, never an error, and must surface network or
// timeout failures as store.backend.unavailable — a timed-out call is not
// "key absent".
//
// A ttl of NoExpiry means the key carries no expiry.
type Store interface {
	// Get returns the string value at key. The second return is false when
	// the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value at key, overwriting any prior value, and applies ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes value at key only if the key is absent. Returns true iff
	// the write happened. The ttl applies only on a successful write.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes the given keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire refreshes the expiry of an existing key. Returns false if the
	// key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining lifetime of key. The second return is false
	// when the key is absent. A negative duration with true means the key
	// exists without an expiry.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)

	// Keys enumerates keys matching pattern (a literal prefix followed by
	// '*'). The result is a best-effort point-in-time snapshot.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// RPush appends values to the tail of the list at key in argument order,
	// creating the list if absent, and returns the new length. A positive
	// ttl refreshes the list's expiry; NoExpiry leaves it untouched. The
	// batch is contiguous: no concurrent writer's values interleave within it.
	RPush(ctx context.Context, key string, ttl time.Duration, values ...string) (int64, error)

	// LRange returns list elements between start and stop inclusive.
	// Negative indices count from the tail (-1 is the last element).
	// An absent key yields an empty slice.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// RPop removes and returns the tail element. The second return is false
	// when the list is absent or empty.
	RPop(ctx context.Context, key string) (string, bool, error)

	// LLen returns the list length; 0 for an absent key.
	LLen(ctx context.Context, key string) (int64, error)

	// HSet writes the given fields into the hash at key, creating it if
	// absent. A positive ttl refreshes the hash key's expiry; NoExpiry
	// leaves it untouched.
	HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// HGetAll returns every field of the hash at key. An absent key yields
	// an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection. The Store is unusable afterwards.
	Close() error
}
