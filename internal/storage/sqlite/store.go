package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	stash "github.com/eugener/stash/internal"
)

// Options configures a namespaced Store.
type Options struct {
	// TTL is applied to every write. Zero means entries never expire.
	TTL time.Duration
	// MaxEntries bounds the namespace; the oldest writes are evicted first.
	// Zero means unbounded.
	MaxEntries int
}

// Store is a durable stash.Store whose entries live in one namespace of a
// shared DB. Expired rows are invisible to reads and left out of Len; they
// are physically removed by DeleteExpired.
type Store struct {
	db         *DB
	namespace  string
	ttl        time.Duration
	maxEntries int
}

// Store returns the Store for namespace.
func (db *DB) Store(namespace string, opts Options) *Store {
	return &Store{db: db, namespace: namespace, ttl: opts.TTL, maxEntries: opts.MaxEntries}
}

var (
	_ stash.Store     = (*Store)(nil)
	_ stash.Sweepable = (*Store)(nil)
	_ stash.Sweepable = (*DB)(nil)
)

// Get retrieves a live value by key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.db.read.QueryRowContext(ctx,
		`SELECT value FROM cache_entries
		 WHERE namespace=? AND key=? AND (expires_at=0 OR expires_at>?)`,
		s.namespace, key, s.db.now().UnixMilli(),
	).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite get: %w", err)
	}
	return val, true, nil
}

// Set upserts a value and enforces MaxEntries.
func (s *Store) Set(ctx context.Context, key, val string) error {
	now := s.db.now()
	var expiresAt int64
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl).UnixMilli()
	}

	tx, err := s.db.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, key, value, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
		   value=excluded.value, created_at=excluded.created_at, expires_at=excluded.expires_at`,
		s.namespace, key, val, now.UnixMilli(), expiresAt,
	); err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}

	if s.maxEntries > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE namespace=? AND key IN (
			   SELECT key FROM cache_entries WHERE namespace=?
			   ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?)`,
			s.namespace, s.namespace, s.maxEntries,
		); err != nil {
			return fmt.Errorf("sqlite evict: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

// Delete removes a value.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.write.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace=? AND key=?`, s.namespace, key,
	); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// Purge removes every value in the namespace.
func (s *Store) Purge(ctx context.Context) error {
	if _, err := s.db.write.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace=?`, s.namespace,
	); err != nil {
		return fmt.Errorf("sqlite purge: %w", err)
	}
	return nil
}

// Len counts live entries in the namespace.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries
		 WHERE namespace=? AND (expires_at=0 OR expires_at>?)`,
		s.namespace, s.db.now().UnixMilli(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite len: %w", err)
	}
	return n, nil
}

// DeleteExpired removes expired entries in the namespace.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.write.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace=? AND expires_at > 0 AND expires_at <= ?`,
		s.namespace, s.db.now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return result.RowsAffected()
}
