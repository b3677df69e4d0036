// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package sqlite implements the store.Store interface on a local SQLite
// database. It exists for single-node deployments and development setups
// that have no Redis available: the same key/list/hash semantics, with
// expiry emulated through an expires_at column and lazy purging on access.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

func init() {
	store.Register("sqlite", func(cfg *store.Config) (store.Store, error) {
		return Open(cfg.URL)
	})
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the SQLite-backed store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the database at dbPath and initialises the
// key, list and hash tables.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if dbPath == "" {
		return nil, parleyerr.New(parleyerr.CodeStoreOpenFailure,
			"sqlite backend requires a database path", parleyerr.FieldBackend("sqlite"))
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, parleyerr.Wrap(err, parleyerr.CodeStoreOpenFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, parleyerr.Wrap(err, parleyerr.CodeStoreUnavailable, "pinging sqlite db")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, parleyerr.Wrap(err, parleyerr.CodeStoreOpenFailure, "migrating sqlite db")
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS list_entries (
	key   TEXT NOT NULL,
	seq   INTEGER NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (key, seq)
);

CREATE TABLE IF NOT EXISTS hash_fields (
	key   TEXT NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (key, field)
);

-- One expiry per key regardless of kind; absence means no expiry.
CREATE TABLE IF NOT EXISTS expiries (
	key        TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

func dbFailure(err error, op string) error {
	return parleyerr.Wrapf(err, parleyerr.CodeStoreUnavailable, "sqlite %s: %w", op, err)
}

// purgeIfExpired removes the key across all tables when its expiry has
// passed. Returns true when the key remains usable (not expired).
func (s *Store) purgeIfExpired(ctx context.Context, tx *sql.Tx, key string) (bool, error) {
	var expiresAt int64
	err := tx.QueryRowContext(ctx, `SELECT expires_at FROM expiries WHERE key = ?`, key).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if s.now().UnixMilli() < expiresAt {
		return true, nil
	}

	if err := deleteKeyTx(ctx, tx, key); err != nil {
		return false, err
	}
	return false, nil
}

func deleteKeyTx(ctx context.Context, tx *sql.Tx, key string) error {
	for _, q := range []string{
		`DELETE FROM kv WHERE key = ?`,
		`DELETE FROM list_entries WHERE key = ?`,
		`DELETE FROM hash_fields WHERE key = ?`,
		`DELETE FROM expiries WHERE key = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, key); err != nil {
			return err
		}
	}
	return nil
}

func existsTx(ctx context.Context, tx *sql.Tx, key string) (bool, error) {
	const q = `SELECT EXISTS (
	SELECT 1 FROM kv WHERE key = ?1
	UNION SELECT 1 FROM list_entries WHERE key = ?1
	UNION SELECT 1 FROM hash_fields WHERE key = ?1
)`
	var found bool
	if err := tx.QueryRowContext(ctx, q, key).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

func (s *Store) setExpiryTx(ctx context.Context, tx *sql.Tx, key string, ttl time.Duration) error {
	if ttl <= 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM expiries WHERE key = ?`, key)
		return err
	}
	deadline := s.now().Add(ttl).UnixMilli()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO expiries (key, expires_at) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at`,
		key, deadline)
	return err
}

// withTx runs fn inside a transaction, translating failures into the
// transient store error class.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbFailure(err, op)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return dbFailure(err, op)
	}
	if err := tx.Commit(); err != nil {
		return dbFailure(err, op)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	var found bool
	err := s.withTx(ctx, "get", func(tx *sql.Tx) error {
		live, err := s.purgeIfExpired(ctx, tx, key)
		if err != nil || !live {
			return err
		}
		err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&val)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return val, found, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.withTx(ctx, "set", func(tx *sql.Tx) error {
		// Overwrite semantics regardless of the prior kind.
		if err := deleteKeyTx(ctx, tx, key); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?)`, key, value); err != nil {
			return err
		}
		return s.setExpiryTx(ctx, tx, key, ttl)
	})
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var won bool
	err := s.withTx(ctx, "setnx", func(tx *sql.Tx) error {
		if _, err := s.purgeIfExpired(ctx, tx, key); err != nil {
			return err
		}
		exists, err := existsTx(ctx, tx, key)
		if err != nil || exists {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?)`, key, value); err != nil {
			return err
		}
		if err := s.setExpiryTx(ctx, tx, key, ttl); err != nil {
			return err
		}
		won = true
		return nil
	})
	return won, err
}

func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	var removed int64
	err := s.withTx(ctx, "delete", func(tx *sql.Tx) error {
		for _, key := range keys {
			live, err := s.purgeIfExpired(ctx, tx, key)
			if err != nil {
				return err
			}
			if !live {
				continue
			}
			exists, err := existsTx(ctx, tx, key)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			if err := deleteKeyTx(ctx, tx, key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := s.withTx(ctx, "exists", func(tx *sql.Tx) error {
		live, err := s.purgeIfExpired(ctx, tx, key)
		if err != nil || !live {
			return err
		}
		found, err = existsTx(ctx, tx, key)
		return err
	})
	return found, err
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var refreshed bool
	err := s.withTx(ctx, "expire", func(tx *sql.Tx) error {
		live, err := s.purgeIfExpired(ctx, tx, key)
		if err != nil || !live {
			return err
		}
		exists, err := existsTx(ctx, tx, key)
		if err != nil || !exists {
			return err
		}
		if err := s.setExpiryTx(ctx, tx, key, ttl); err != nil {
			return err
		}
		refreshed = true
		return nil
	})
	return refreshed, err
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	var remaining time.Duration
	var found bool
	err := s.withTx(ctx, "ttl", func(tx *sql.Tx) error {
		live, err := s.purgeIfExpired(ctx, tx, key)
		if err != nil || !live {
			return err
		}
		exists, err := existsTx(ctx, tx, key)
		if err != nil || !exists {
			return err
		}
		found = true

		var expiresAt int64
		err = tx.QueryRowContext(ctx, `SELECT expires_at FROM expiries WHERE key = ?`, key).Scan(&expiresAt)
		if err == sql.ErrNoRows {
			remaining = -1
			return nil
		}
		if err != nil {
			return err
		}
		remaining = time.Duration(expiresAt-s.now().UnixMilli()) * time.Millisecond
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return remaining, found, nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	err := s.withTx(ctx, "keys", func(tx *sql.Tx) error {
		const q = `SELECT key FROM kv WHERE key LIKE ?1 ESCAPE '\'
UNION SELECT key FROM list_entries WHERE key LIKE ?1 ESCAPE '\'
UNION SELECT key FROM hash_fields WHERE key LIKE ?1 ESCAPE '\'`

		rows, err := tx.QueryContext(ctx, q, escapeLike(prefix)+"%")
		if err != nil {
			return err
		}
		var candidates []string
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return err
			}
			candidates = append(candidates, key)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, key := range candidates {
			live, err := s.purgeIfExpired(ctx, tx, key)
			if err != nil {
				return err
			}
			if live {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) RPush(ctx context.Context, key string, ttl time.Duration, values ...string) (int64, error) {
	var length int64
	err := s.withTx(ctx, "rpush", func(tx *sql.Tx) error {
		if _, err := s.purgeIfExpired(ctx, tx, key); err != nil {
			return err
		}

		var next int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM list_entries WHERE key = ?`, key).Scan(&next); err != nil {
			return err
		}
		for _, v := range values {
			next++
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO list_entries (key, seq, value) VALUES (?, ?, ?)`, key, next, v); err != nil {
				return err
			}
		}
		if ttl > 0 {
			if err := s.setExpiryTx(ctx, tx, key, ttl); err != nil {
				return err
			}
		}
		return tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM list_entries WHERE key = ?`, key).Scan(&length)
	})
	if err != nil {
		return 0, err
	}
	return length, nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var out []string
	err := s.withTx(ctx, "lrange", func(tx *sql.Tx) error {
		live, err := s.purgeIfExpired(ctx, tx, key)
		if err != nil || !live {
			return err
		}

		var n int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM list_entries WHERE key = ?`, key).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

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
			return nil
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT value FROM list_entries WHERE key = ? ORDER BY seq LIMIT ? OFFSET ?`,
			key, stop-start+1, start)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	var val string
	var popped bool
	err := s.withTx(ctx, "rpop", func(tx *sql.Tx) error {
		live, err := s.purgeIfExpired(ctx, tx, key)
		if err != nil || !live {
			return err
		}

		var seq int64
		err = tx.QueryRowContext(ctx,
			`SELECT seq, value FROM list_entries WHERE key = ? ORDER BY seq DESC LIMIT 1`, key).Scan(&seq, &val)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM list_entries WHERE key = ? AND seq = ?`, key, seq); err != nil {
			return err
		}
		popped = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return val, popped, nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.withTx(ctx, "llen", func(tx *sql.Tx) error {
		live, err := s.purgeIfExpired(ctx, tx, key)
		if err != nil || !live {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM list_entries WHERE key = ?`, key).Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	return s.withTx(ctx, "hset", func(tx *sql.Tx) error {
		if _, err := s.purgeIfExpired(ctx, tx, key); err != nil {
			return err
		}
		for f, v := range fields {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO hash_fields (key, field, value) VALUES (?, ?, ?)
				 ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`,
				key, f, v); err != nil {
				return err
			}
		}
		if ttl > 0 {
			return s.setExpiryTx(ctx, tx, key, ttl)
		}
		return nil
	})
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	out := map[string]string{}
	err := s.withTx(ctx, "hgetall", func(tx *sql.Tx) error {
		live, err := s.purgeIfExpired(ctx, tx, key)
		if err != nil || !live {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT field, value FROM hash_fields WHERE key = ?`, key)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f, v string
			if err := rows.Scan(&f, &v); err != nil {
				return err
			}
			out[f] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return dbFailure(err, "ping")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}
