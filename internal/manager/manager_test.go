// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package manager_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/internal/contextstore"
	"github.com/parley-dev/parley/internal/manager"
	"github.com/parley-dev/parley/internal/session"
	"github.com/parley-dev/parley/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManager(t *testing.T) *manager.Manager[contextstore.Object] {
	t.Helper()
	kv := memory.New()
	log := session.NewLog(kv, session.Config{})
	cs := contextstore.New[contextstore.Object](kv, contextstore.Config{})
	return manager.New(log, cs)
}

func TestGetOrCreateContextStoresDefault(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	got, err := m.GetOrCreateContext(ctx, "s1", contextstore.Object{"step": "greeting"})
	require.NoError(t, err)
	assert.Equal(t, "greeting", got["step"])

	// The default from a later call must not win.
	got, err = m.GetOrCreateContext(ctx, "s1", contextstore.Object{"step": "other"})
	require.NoError(t, err)
	assert.Equal(t, "greeting", got["step"])
}

func TestGetOrCreateContextExtendsTTLOnHit(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	kv := memory.New(memory.WithClock(clock.Now))
	log := session.NewLog(kv, session.Config{}, session.WithClock(clock.Now))
	cs := contextstore.New[contextstore.Object](kv, contextstore.Config{TTL: time.Second})
	m := manager.New(log, cs)

	_, err := m.GetOrCreateContext(ctx, "s1", contextstore.Object{"step": "greeting"})
	require.NoError(t, err)

	clock.Advance(800 * time.Millisecond)
	_, err = m.GetOrCreateContext(ctx, "s1", contextstore.Object{})
	require.NoError(t, err)

	clock.Advance(800 * time.Millisecond)
	_, ok, err := cs.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok, "hit should have refreshed the record's expiry")
}

func TestPatchContextNeverCreates(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, ok, err := m.PatchContext(ctx, "ghost", map[string]any{"step": "checkout"})
	require.NoError(t, err)
	assert.False(t, ok)

	sessions, err := m.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions.IDs)
}

func TestDeleteSessionReportsParts(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	require.NoError(t, m.Log().Append(ctx, "s1", []session.Item{{"role": "user", "content": "hi"}}))
	require.NoError(t, m.SaveContext(ctx, "s1", contextstore.Object{"step": "greeting"}))
	require.NoError(t, m.SaveContext(ctx, "s2", contextstore.Object{}))

	d, err := m.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, d.Log)
	assert.True(t, d.Context)
	assert.True(t, d.Any())

	d, err = m.DeleteSession(ctx, "s2")
	require.NoError(t, err)
	assert.False(t, d.Log)
	assert.True(t, d.Context)

	d, err = m.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, d.Any(), "second delete finds nothing")
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	require.NoError(t, m.Log().Append(ctx, "s1", []session.Item{
		{"role": "user", "content": "hi"},
		{"role": "assistant", "content": "hello"},
	}))
	require.NoError(t, m.SaveContext(ctx, "s1", contextstore.Object{"step": "greeting"}))

	ov, err := m.Overview(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", ov.SessionID)
	require.NotNil(t, ov.Info)
	assert.Equal(t, "s1", ov.Info.SessionID)
	assert.Equal(t, int64(2), ov.MessageCount)
	assert.True(t, ov.HasContext)
	require.NotNil(t, ov.Context)
	assert.Equal(t, contextstore.Object{"step": "greeting"}, *ov.Context)
}

func TestOverviewUnknownSession(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	ov, err := m.Overview(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, ov.Info)
	assert.Zero(t, ov.MessageCount)
	assert.False(t, ov.HasContext)
	assert.Nil(t, ov.Context)
}

func TestListSessionsUnions(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	// s1 has both, s2 only messages, s3 only context.
	require.NoError(t, m.Log().Append(ctx, "s1", []session.Item{{"role": "user"}}))
	require.NoError(t, m.SaveContext(ctx, "s1", contextstore.Object{}))
	require.NoError(t, m.Log().Append(ctx, "s2", []session.Item{{"role": "user"}}))
	require.NoError(t, m.SaveContext(ctx, "s3", contextstore.Object{}))

	sessions, err := m.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, sessions.IDs)
	assert.Equal(t, 2, sessions.WithLog)
	assert.Equal(t, 2, sessions.WithContext)
}

func TestCleanupExpiredOnActiveStore(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	require.NoError(t, m.SaveContext(ctx, "s1", contextstore.Object{}))

	n, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
