// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package store defines the abstract key-value/list/hash store Parley
// persists sessions through, and a registry of named backends. Backend
// packages (redis, sqlite, memory) register themselves from init(); the
// wiring layer decides which one to open.
package store

import (
	"sync"

	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// Factory opens a Store from its configuration.
type Factory func(cfg *Config) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// Register registers a factory for a named backend. Backend packages call
// this from init(). Goroutine-safe.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// resolveBackend returns the effective backend name, defaulting to "redis".
func resolveBackend(cfg *Config) string {
	if cfg.Backend == "" {
		return "redis"
	}
	return cfg.Backend
}

// Open creates a Store using the configured backend.
func Open(cfg *Config) (Store, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, parleyerr.New(parleyerr.CodeStoreBackendUnsupported,
			"unsupported store backend", parleyerr.FieldBackend(backend))
	}

	return factory(cfg)
}
