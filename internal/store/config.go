// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package store

import "time"

// Config controls which backend the store factory opens and how it connects.
type Config struct {
	// Backend selects the registered backend: "redis", "sqlite" or "memory".
	// Empty defaults to "redis".
	Backend string

	// URL is the backend connection string (redis://host:port for redis,
	// a filesystem path for sqlite, ignored by memory).
	URL string

	// DB is the redis logical database index.
	DB int

	// MaxConns bounds the redis connection pool. 0 uses the driver default.
	MaxConns int

	// DialTimeout and OpTimeout bound connection establishment and
	// individual store round-trips. 0 uses the driver defaults.
	DialTimeout time.Duration
	OpTimeout   time.Duration
}
