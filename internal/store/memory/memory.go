// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package memory provides a volatile in-process Store implementation. It is
// safe for concurrent access and best suited for tests or ephemeral demo
// servers. Expiry is evaluated lazily against an injectable clock so TTL
// behaviour can be exercised on simulated time.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/parley-dev/parley/internal/store"
)

func init() {
	store.Register("memory", func(_ *store.Config) (store.Store, error) {
		return New(), nil
	})
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// entry is one stored key of any kind. Exactly one of value, list, hash is
// populated, mirroring the remote store's per-key typing.
type entry struct {
	value    string
	list     []string
	hash     map[string]string
	kind     kind
	deadline time.Time // zero = no expiry
}

type kind int

const (
	kindString kind = iota
	kindList
	kindHash
)

// Store is the in-memory backend.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, letting tests advance time without
// sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New constructs an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the entry at key, purging it first if expired. Caller must
// hold mu.
func (s *Store) live(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.deadline.IsZero() && !s.now().Before(e.deadline) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *Store) stamp(e *entry, ttl time.Duration) {
	if ttl > 0 {
		e.deadline = s.now().Add(ttl)
	} else {
		e.deadline = time.Time{}
	}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindString {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{value: value, kind: kindString}
	s.stamp(e, ttl)
	s.entries[key] = e
	return nil
}

func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(key) != nil {
		return false, nil
	}
	e := &entry{value: value, kind: kindString}
	s.stamp(e, ttl)
	s.entries[key] = e
	return true, nil
}

func (s *Store) Delete(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if s.live(key) != nil {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(key) != nil, nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return false, nil
	}
	s.stamp(e, ttl)
	return true, nil
}

func (s *Store) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return 0, false, nil
	}
	if e.deadline.IsZero() {
		return -1, true, nil
	}
	return e.deadline.Sub(s.now()), true, nil
}

func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) && s.live(key) != nil {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *Store) RPush(_ context.Context, key string, ttl time.Duration, values ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindList {
		e = &entry{kind: kindList}
		s.entries[key] = e
	}
	e.list = append(e.list, values...)
	if ttl > 0 {
		s.stamp(e, ttl)
	}
	return int64(len(e.list)), nil
}

func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindList {
		return nil, nil
	}

	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}

	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (s *Store) RPop(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindList || len(e.list) == 0 {
		return "", false, nil
	}
	last := e.list[len(e.list)-1]
	e.list = e.list[:len(e.list)-1]
	if len(e.list) == 0 {
		delete(s.entries, key)
	}
	return last, true, nil
}

func (s *Store) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindList {
		return 0, nil
	}
	return int64(len(e.list)), nil
}

func (s *Store) HSet(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindHash {
		e = &entry{kind: kindHash, hash: make(map[string]string)}
		s.entries[key] = e
	}
	for f, v := range fields {
		e.hash[f] = v
	}
	if ttl > 0 {
		s.stamp(e, ttl)
	}
	return nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.kind != kindHash {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(e.hash))
	for f, v := range e.hash {
		out[f] = v
	}
	return out, nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	return nil
}
