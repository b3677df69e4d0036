// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/internal/session"
	"github.com/parley-dev/parley/internal/store"
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

func newTestLog(t *testing.T, cfg session.Config) (*session.Log, *memory.Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	st := memory.New(memory.WithClock(clock.Now))
	log := session.NewLog(st, cfg, session.WithClock(clock.Now))
	t.Cleanup(func() { _ = st.Close() })
	return log, st, clock
}

func msg(role, content string) session.Item {
	return session.Item{"role": role, "content": content}
}

func TestAppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestLog(t, session.Config{})

	items := []session.Item{msg("user", "hi"), msg("assistant", "hello"), msg("user", "bye")}
	require.NoError(t, log.Append(ctx, "s1", items))

	got, err := log.Items(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, item := range items {
		assert.Equal(t, item["content"], got[i]["content"])
	}
}

func TestAppendEmptyBatchIsNoOp(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestLog(t, session.Config{})

	require.NoError(t, log.Append(ctx, "s1", nil))
	require.NoError(t, log.Append(ctx, "s1", []session.Item{}))

	info, err := log.Info(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, info, "empty append must not create metadata")

	n, err := log.Size(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRecencyWindow(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestLog(t, session.Config{})

	var items []session.Item
	for _, c := range []string{"1", "2", "3", "4", "5"} {
		items = append(items, msg("user", c))
	}
	require.NoError(t, log.Append(ctx, "s1", items))

	full, err := log.Items(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, full, 5)

	window, err := log.Items(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, full[3], window[0], "window is the last N, oldest-first")
	assert.Equal(t, full[4], window[1])

	window, err = log.Items(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, window, 5, "limit beyond length returns everything")
}

func TestPopLastLIFO(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestLog(t, session.Config{})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{
		msg("user", "a"), msg("user", "b"), msg("user", "c"),
	}))

	for _, want := range []string{"c", "b", "a"} {
		item, ok, err := log.PopLast(ctx, "s1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, item["content"])
	}

	_, ok, err := log.PopLast(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok, "empty log pops absent")
}

func TestPopDecrementsSize(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestLog(t, session.Config{})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "a"), msg("user", "b")}))

	n, err := log.Size(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, _, err = log.PopLast(ctx, "s1")
	require.NoError(t, err)

	n, err = log.Size(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCorruptEntriesSkippedOnRead(t *testing.T) {
	ctx := context.Background()
	log, st, _ := newTestLog(t, session.Config{})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "a"), msg("user", "b")}))

	// Inject a physically stored but undecodable entry.
	_, err := st.RPush(ctx, session.DefaultMessagesPrefix+":s1", store.NoExpiry, "{not json")
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "c")}))

	items, err := log.Items(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, items, 3, "only valid entries surface")

	n, err := log.Size(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "size counts physical entries")
}

func TestPopCorruptTailRemovedAndAbsent(t *testing.T) {
	ctx := context.Background()
	log, st, _ := newTestLog(t, session.Config{})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "a")}))
	_, err := st.RPush(ctx, session.DefaultMessagesPrefix+":s1", store.NoExpiry, "{not json")
	require.NoError(t, err)

	_, ok, err := log.PopLast(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok, "corrupt tail reports absent")

	n, err := log.Size(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "corrupt entry was physically removed")

	item, ok, err := log.PopLast(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", item["content"], "valid entry still poppable afterwards")
}

func TestMetadataLifecycle(t *testing.T) {
	ctx := context.Background()
	log, _, clock := newTestLog(t, session.Config{})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "a")}))

	info, err := log.Info(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "s1", info.SessionID)
	created := info.CreatedAt
	assert.Equal(t, created, info.UpdatedAt)

	clock.Advance(3 * time.Second)
	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "b")}))

	info, err = log.Info(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, created, info.CreatedAt, "created_at immutable")
	assert.True(t, info.UpdatedAt.After(created), "updated_at advances")
}

func TestPopRefreshesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	log, _, clock := newTestLog(t, session.Config{})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "a")}))
	before, err := log.Info(ctx, "s1")
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	_, _, err = log.PopLast(ctx, "s1")
	require.NoError(t, err)

	after, err := log.Info(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestClearDeletesEverything(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestLog(t, session.Config{})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "hi")}))

	existed, err := log.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, existed)

	items, err := log.Items(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	info, err := log.Info(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, info)

	existed, err = log.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, existed, "clear is idempotent")
}

func TestTTLExpiryReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	log, _, clock := newTestLog(t, session.Config{TTL: time.Second})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "hi")}))

	clock.Advance(1500 * time.Millisecond)

	items, err := log.Items(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	info, err := log.Info(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestAppendRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	log, _, clock := newTestLog(t, session.Config{TTL: 2 * time.Second})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "a")}))
	clock.Advance(1500 * time.Millisecond)
	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "b")}))
	clock.Advance(1500 * time.Millisecond)

	items, err := log.Items(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, items, 2, "second append pushed expiry forward")
}

func TestTouch(t *testing.T) {
	ctx := context.Background()
	log, _, clock := newTestLog(t, session.Config{TTL: 2 * time.Second})

	touched, err := log.Touch(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, touched)

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "a")}))
	clock.Advance(1500 * time.Millisecond)

	touched, err = log.Touch(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, touched)

	clock.Advance(1500 * time.Millisecond)
	info, err := log.Info(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, info, "touch extended the metadata lifetime")
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	log, _, _ := newTestLog(t, session.Config{})

	require.NoError(t, log.Append(ctx, "s1", []session.Item{msg("user", "a")}))
	require.NoError(t, log.Append(ctx, "s2", []session.Item{msg("user", "b")}))

	ids, err := log.ListSessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)
}

func TestCustomPrefixesIsolateKeyspaces(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := memory.New(memory.WithClock(clock.Now))
	defaultLog := session.NewLog(st, session.Config{}, session.WithClock(clock.Now))
	customLog := session.NewLog(st, session.Config{
		SessionPrefix:  "tenant_session",
		MessagesPrefix: "tenant_messages",
	}, session.WithClock(clock.Now))

	require.NoError(t, defaultLog.Append(ctx, "s1", []session.Item{msg("user", "a")}))
	require.NoError(t, customLog.Append(ctx, "s1", []session.Item{msg("user", "b")}))

	items, err := defaultLog.Items(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0]["content"])

	items, err = customLog.Items(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0]["content"])
}
