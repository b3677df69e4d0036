// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package redis implements the store.Store interface on top of a Redis
// server via go-redis. This is the production backend: per-key atomicity,
// list and hash primitives, and key expiry map one-to-one onto Redis
// commands.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

func init() {
	store.Register("redis", func(cfg *store.Config) (store.Store, error) {
		return Open(cfg)
	})
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the Redis-backed store.
type Store struct {
	client *goredis.Client
}

// Open connects to the Redis server described by cfg and verifies the
// connection before returning.
func Open(cfg *store.Config) (*Store, error) {
	url := cfg.URL
	if url == "" {
		url = "redis://localhost:6379"
	}

	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, parleyerr.Wrap(err, parleyerr.CodeStoreOpenFailure,
			"parsing redis url", parleyerr.FieldBackend("redis"))
	}
	opts.DB = cfg.DB
	if cfg.MaxConns > 0 {
		opts.PoolSize = cfg.MaxConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.OpTimeout > 0 {
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, parleyerr.Wrap(err, parleyerr.CodeStoreUnavailable,
			"pinging redis", parleyerr.FieldBackend("redis"))
	}

	return &Store{client: client}, nil
}

// NewWithClient wraps an existing go-redis client. Used by tests that run
// against miniredis.
func NewWithClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

// unavailable wraps a transport-level failure. goredis.Nil never reaches it;
// callers translate Nil into explicit absence first.
func unavailable(err error, op string) error {
	return parleyerr.Wrapf(err, parleyerr.CodeStoreUnavailable, "redis %s: %w", op, err)
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err, "get")
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, normalizeTTL(ttl)).Err(); err != nil {
		return unavailable(err, "set")
	}
	return nil
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, normalizeTTL(ttl)).Result()
	if err != nil {
		return false, unavailable(err, "setnx")
	}
	return ok, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, unavailable(err, "del")
	}
	return n, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err, "exists")
	}
	return n > 0, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ok, err := s.client.Persist(ctx, key).Result()
		if err != nil {
			return false, unavailable(err, "persist")
		}
		return ok, nil
	}
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, unavailable(err, "expire")
	}
	return ok, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, unavailable(err, "ttl")
	}
	// go-redis surfaces the protocol's -2 (missing) and -1 (no expiry)
	// sentinels as raw negative durations.
	switch {
	case d == -2:
		return 0, false, nil
	case d == -1:
		return -1, true, nil
	default:
		return d, true, nil
	}
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable(err, "scan")
	}
	return keys, nil
}

func (s *Store) RPush(ctx context.Context, key string, ttl time.Duration, values ...string) (int64, error) {
	if len(values) == 0 {
		return s.LLen(ctx, key)
	}

	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}

	// Pipeline keeps the push and the expiry refresh in one round trip.
	pipe := s.client.TxPipeline()
	push := pipe.RPush(ctx, key, args...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, unavailable(err, "rpush")
	}
	return push.Val(), nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, unavailable(err, "lrange")
	}
	return vals, nil
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.RPop(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err, "rpop")
	}
	return val, true, nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err, "llen")
	}
	return n, nil
}

func (s *Store) HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(fields)*2)
	for f, v := range fields {
		args = append(args, f, v)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, args...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err, "hset")
	}
	return nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable(err, "hgetall")
	}
	return fields, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable(err, "ping")
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// normalizeTTL maps store.NoExpiry onto go-redis's "no expiration" zero.
func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}
