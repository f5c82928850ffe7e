// Package sqlite implements a durable stash.Store using SQLite via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB owns the SQLite connections shared by every namespaced Store.
type DB struct {
	write *sql.DB // single-writer connection
	read  *sql.DB // multi-reader pool
	now   func() time.Time
}

// Open opens a SQLite database and runs migrations.
func Open(dsn string) (*DB, error) {
	pragmas := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	// For :memory: databases, use shared cache so read/write pools share the same data
	var fullDSN string
	if dsn == ":memory:" {
		fullDSN = "file::memory:?mode=memory&cache=shared&" + pragmas
	} else {
		fullDSN = "file:" + dsn + "?" + pragmas
	}

	write, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read db: %w", err)
	}
	read.SetMaxOpenConns(max(4, runtime.NumCPU()))

	if err := runMigrations(write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &DB{write: write, read: read, now: time.Now}, nil
}

// runMigrations applies embedded SQL migrations using goose.
// fs.Sub strips the "migrations/" prefix so goose sees files at the FS root.
func runMigrations(db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(context.Background())
	return err
}

// DeleteExpired removes expired entries across all namespaces.
func (db *DB) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := db.write.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at <= ?`,
		db.now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return result.RowsAffected()
}

// Ping verifies database connectivity by pinging the read pool.
func (db *DB) Ping(ctx context.Context) error {
	return db.read.PingContext(ctx)
}

// Close closes both database connections.
func (db *DB) Close() error {
	return errors.Join(db.write.Close(), db.read.Close())
}
