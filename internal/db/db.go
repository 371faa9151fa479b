// Package db is crucible's single-writer SQLite driver: schema, entity
// structs, and CRUD for projects, files, AST/CST trees, extracted
// entities, chunks, and the vector index.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// DB wraps a single-writer SQLite connection in WAL mode.
type DB struct {
	mu     sync.Mutex
	sqlDB  *sql.DB
	path   string
	closed bool
}

// Open opens (creating if necessary) a SQLite database at path, applying
// WAL mode and a single-writer connection pool so that all callers
// serialize through one connection, mirroring a dedicated database
// driver process.
func Open(path string, cacheMB int) (*DB, error) {
	var dsn string
	if path == "" || path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if cacheMB <= 0 {
		cacheMB = 64
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheMB*1024),
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	d := &DB{sqlDB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return d, nil
}

// Close checkpoints the WAL and closes the connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	_, _ = d.sqlDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return d.sqlDB.Close()
}

// Do runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which is re-raised after
// rollback). Every multi-statement write in this package goes through
// Do so that a caller's "clear derived rows, reparse, insert fresh
// rows" sequence is atomic.
func (d *DB) Do(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// QueryContext and ExecContext expose the read path directly: reads use
// a shared path and do not block writes beyond the single statement.

// QueryContext runs a read query outside of any transaction.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sqlDB.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a read query expecting at most one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sqlDB.QueryRowContext(ctx, query, args...)
}

// ExecContext runs a single statement outside of any transaction.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.sqlDB.ExecContext(ctx, query, args...)
}
