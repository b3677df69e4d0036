// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"github.com/parley-dev/parley/internal/config"
	"github.com/parley-dev/parley/internal/contextstore"
	"github.com/parley-dev/parley/internal/lock"
	"github.com/parley-dev/parley/internal/manager"
	"github.com/parley-dev/parley/internal/session"
	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"

	// Registered store backends.
	_ "github.com/parley-dev/parley/internal/store/memory"
	_ "github.com/parley-dev/parley/internal/store/redis"
	_ "github.com/parley-dev/parley/internal/store/sqlite"
)

// App holds all wired subsystems and owns the store handle's lifecycle.
// Construction is explicit: open the store, build the layers, and Close
// when done — no lazy singletons.
type App struct {
	Store       store.Store
	Log         *session.Log
	Contexts    *contextstore.Store[contextstore.Object]
	Locker      *lock.Locker
	Coordinator *contextstore.Coordinator[contextstore.Object]
	Manager     *manager.Manager[contextstore.Object]
}

// wireApp opens the configured store backend and builds the session layers
// on top of it.
func wireApp(cfg *config.Config) (*App, error) {
	st, err := store.Open(&store.Config{
		Backend:     cfg.Store.Backend,
		URL:         cfg.Store.URL,
		DB:          cfg.Store.DB,
		MaxConns:    cfg.Store.MaxConns,
		DialTimeout: cfg.Store.DialTimeout,
		OpTimeout:   cfg.Store.OpTimeout,
	})
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeCLISetupFailure, "opening %s store", cfg.Store.Backend)
	}

	log := session.NewLog(st, session.Config{
		SessionPrefix:  cfg.Sessions.SessionPrefix,
		MessagesPrefix: cfg.Sessions.MessagesPrefix,
		TTL:            cfg.Sessions.TTL,
	})
	contexts := contextstore.New[contextstore.Object](st, contextstore.Config{
		Prefix: cfg.Contexts.Prefix,
		TTL:    cfg.Contexts.TTL,
	})
	locker := lock.NewLocker(st, lock.Config{
		Prefix:      cfg.Lock.Prefix,
		HoldTimeout: cfg.Lock.HoldTimeout,
		Retries:     cfg.Lock.Retries,
		Backoff:     cfg.Lock.Backoff,
	})

	return &App{
		Store:       st,
		Log:         log,
		Contexts:    contexts,
		Locker:      locker,
		Coordinator: contextstore.NewCoordinator(locker, contexts),
		Manager:     manager.New(log, contexts),
	}, nil
}

// Close releases the store handle.
func (a *App) Close() error {
	return a.Store.Close()
}
