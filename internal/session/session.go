// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package session persists per-session conversation history in the remote
// store: an append-only list of conversation items plus a small metadata
// hash, both living under configurable key prefixes and sharing one TTL.
// Items are stored opaquely; the package enforces no message schema.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

const (
	// DefaultSessionPrefix keys the per-session metadata hash.
	DefaultSessionPrefix = "agent_session"
	// DefaultMessagesPrefix keys the per-session conversation list.
	DefaultMessagesPrefix = "agent_messages"
)

// Item is one conversation turn. The core stores and returns items
// opaquely; role/content conventions belong to the calling agent loop.
type Item map[string]any

// Info is the per-session metadata record. Created lazily on the first
// append; CreatedAt never changes afterwards.
type Info struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config controls key derivation and expiry for a Log.
type Config struct {
	SessionPrefix  string        // default "agent_session"
	MessagesPrefix string        // default "agent_messages"
	TTL            time.Duration // 0 = keys never expire
}

// Log is the conversation history store for any number of sessions.
// All per-session state lives in the remote store, so one Log may be
// shared across goroutines and workers.
type Log struct {
	store          store.Store
	sessionPrefix  string
	messagesPrefix string
	ttl            time.Duration
	now            func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces the wall clock used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates a Log over the given store.
func NewLog(st store.Store, cfg Config, opts ...Option) *Log {
	if cfg.SessionPrefix == "" {
		cfg.SessionPrefix = DefaultSessionPrefix
	}
	if cfg.MessagesPrefix == "" {
		cfg.MessagesPrefix = DefaultMessagesPrefix
	}

	l := &Log{
		store:          st,
		sessionPrefix:  cfg.SessionPrefix,
		messagesPrefix: cfg.MessagesPrefix,
		ttl:            cfg.TTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SessionPrefix returns the metadata key prefix.
func (l *Log) SessionPrefix() string { return l.sessionPrefix }

func (l *Log) sessionKey(sessionID string) string {
	return l.sessionPrefix + ":" + sessionID
}

func (l *Log) messagesKey(sessionID string) string {
	return l.messagesPrefix + ":" + sessionID
}

// Append adds items to the tail of the session's history in order. An empty
// batch is a no-op: it neither creates the log nor touches metadata.
// Otherwise the session metadata is created on first use, updated_at is
// rewritten, and the TTL on both keys is refreshed.
func (l *Log) Append(ctx context.Context, sessionID string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	serialized := make([]string, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return parleyerr.Wrap(err, parleyerr.CodeSessionAppendFailure,
				"serializing conversation item", parleyerr.FieldSessionID(sessionID))
		}
		serialized[i] = string(raw)
	}

	if err := l.ensureMetadata(ctx, sessionID); err != nil {
		return err
	}

	if _, err := l.store.RPush(ctx, l.messagesKey(sessionID), l.ttl, serialized...); err != nil {
		return parleyerr.Wrap(err, parleyerr.CodeSessionAppendFailure,
			"appending conversation items", parleyerr.FieldSessionID(sessionID))
	}
	return nil
}

// ensureMetadata creates the metadata hash if absent (fixing created_at at
// that moment) and rewrites updated_at either way, refreshing the TTL.
func (l *Log) ensureMetadata(ctx context.Context, sessionID string) error {
	key := l.sessionKey(sessionID)
	now := formatEpoch(l.now())

	exists, err := l.store.Exists(ctx, key)
	if err != nil {
		return err
	}

	fields := map[string]string{"updated_at": now}
	if !exists {
		fields["session_id"] = sessionID
		fields["created_at"] = now
	}
	return l.store.HSet(ctx, key, fields, l.ttl)
}

// Items returns the session's history oldest-first. A limit above zero
// restricts the result to the most recent limit items, still oldest-first.
// Entries that fail to decode are dropped silently, so the returned count
// may be lower than Size reports.
func (l *Log) Items(ctx context.Context, sessionID string, limit int) ([]Item, error) {
	var (
		raw []string
		err error
	)
	if limit <= 0 {
		raw, err = l.store.LRange(ctx, l.messagesKey(sessionID), 0, -1)
	} else {
		raw, err = l.store.LRange(ctx, l.messagesKey(sessionID), int64(-limit), -1)
	}
	if err != nil {
		return nil, parleyerr.Wrap(err, parleyerr.CodeSessionReadFailure,
			"reading conversation items", parleyerr.FieldSessionID(sessionID))
	}

	items := make([]Item, 0, len(raw))
	for _, entry := range raw {
		var item Item
		if err := json.Unmarshal([]byte(entry), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// PopLast removes and returns the most recent item. The second return is
// false when the log is empty. An undecodable tail entry is removed and
// also reported as absent: physical removal still refreshes updated_at,
// and a warning is logged so corruption is not completely silent.
func (l *Log) PopLast(ctx context.Context, sessionID string) (Item, bool, error) {
	raw, ok, err := l.store.RPop(ctx, l.messagesKey(sessionID))
	if err != nil {
		return nil, false, parleyerr.Wrap(err, parleyerr.CodeSessionReadFailure,
			"popping conversation item", parleyerr.FieldSessionID(sessionID))
	}
	if !ok {
		return nil, false, nil
	}

	if err := l.touchMetadata(ctx, sessionID); err != nil {
		return nil, false, err
	}

	var item Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		slog.Warn("discarded undecodable conversation item",
			"session_id", sessionID, "error", err)
		return nil, false, nil
	}
	return item, true, nil
}

func (l *Log) touchMetadata(ctx context.Context, sessionID string) error {
	return l.store.HSet(ctx, l.sessionKey(sessionID),
		map[string]string{"updated_at": formatEpoch(l.now())}, l.ttl)
}

// Clear deletes the session's history and metadata together. Idempotent;
// reports whether anything existed to delete.
func (l *Log) Clear(ctx context.Context, sessionID string) (bool, error) {
	n, err := l.store.Delete(ctx, l.sessionKey(sessionID), l.messagesKey(sessionID))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Size returns the physical number of stored entries, including any that
// would fail to decode on read.
func (l *Log) Size(ctx context.Context, sessionID string) (int64, error) {
	return l.store.LLen(ctx, l.messagesKey(sessionID))
}

// Info returns the session metadata, or nil when the session was never
// written or has expired.
func (l *Log) Info(ctx context.Context, sessionID string) (*Info, error) {
	fields, err := l.store.HGetAll(ctx, l.sessionKey(sessionID))
	if err != nil {
		return nil, parleyerr.Wrap(err, parleyerr.CodeSessionReadFailure,
			"reading session metadata", parleyerr.FieldSessionID(sessionID))
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return &Info{
		SessionID: fields["session_id"],
		CreatedAt: parseEpoch(fields["created_at"]),
		UpdatedAt: parseEpoch(fields["updated_at"]),
	}, nil
}

// Touch rewrites updated_at and refreshes the TTL on both session keys.
// Returns false when the session does not exist.
func (l *Log) Touch(ctx context.Context, sessionID string) (bool, error) {
	exists, err := l.store.Exists(ctx, l.sessionKey(sessionID))
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if err := l.touchMetadata(ctx, sessionID); err != nil {
		return false, err
	}
	if l.ttl > 0 {
		// Best effort: the messages key may legitimately not exist yet.
		if _, err := l.store.Expire(ctx, l.messagesKey(sessionID), l.ttl); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ListSessions enumerates ids of sessions that currently have metadata.
// Point-in-time snapshot, not consistent with concurrent writes or expiry.
func (l *Log) ListSessions(ctx context.Context) ([]string, error) {
	keys, err := l.store.Keys(ctx, l.sessionPrefix+":*")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	prefixLen := len(l.sessionPrefix) + 1
	for _, key := range keys {
		ids = append(ids, key[prefixLen:])
	}
	return ids, nil
}

// formatEpoch renders a timestamp as fractional seconds since the epoch,
// matching the wire format other workers expect in the metadata hash.
func formatEpoch(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

// parseEpoch is the inverse of formatEpoch; malformed input yields the
// zero time rather than an error.
func parseEpoch(s string) time.Time {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
