// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package health tracks backend store reachability for monitoring and
// operator visibility.
package health

import (
	"sync"
	"time"
)

// Metrics exposes the current health state of the store backend. All
// fields are point-in-time snapshots safe to serialize to JSON.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	Available     bool       `json:"available"`
}

// Tracker accumulates ping outcomes. Safe for concurrent use.
type Tracker struct {
	mu            sync.Mutex
	failureCount  int64
	lastFailureAt time.Time
	lastSuccessAt time.Time
	available     bool
}

// NewTracker starts in the available state so a service that has never
// pinged does not report itself down.
func NewTracker() *Tracker {
	return &Tracker{available: true}
}

// RecordSuccess marks the store reachable.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSuccessAt = time.Now()
	t.available = true
}

// RecordFailure marks the store unreachable and bumps the failure count.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failureCount++
	t.lastFailureAt = time.Now()
	t.available = false
}

// Snapshot returns the current metrics.
func (t *Tracker) Snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := Metrics{
		FailureCount: t.failureCount,
		Available:    t.available,
	}
	if !t.lastFailureAt.IsZero() {
		at := t.lastFailureAt
		m.LastFailureAt = &at
	}
	if !t.lastSuccessAt.IsZero() {
		at := t.lastSuccessAt
		m.LastSuccessAt = &at
	}
	return m
}
