// Package db owns the embedded relational store: a pure-Go SQLite database
// opened with WAL and foreign keys, evolved by a numbered migration list.
// Callers must fall back to file-based variants when Open fails.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// DB wraps the single shared connection to the embedded store.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates the parent directory, opens the database with WAL and
// foreign-key enforcement, and applies outstanding migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// All goroutines serialize through one connection, avoiding
	// SQLITE_BUSY from concurrent writers.
	conn.SetMaxOpenConns(1)

	d := &DB{conn: conn, path: path}
	if err := d.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Conn exposes the underlying handle for component stores.
func (d *DB) Conn() *sql.DB { return d.conn }

// Path returns the on-disk database location.
func (d *DB) Path() string { return d.path }

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// migrate applies every migration past the stored user_version, each inside
// its own transaction, then advances the counter.
func (d *DB) migrate(ctx context.Context) error {
	var version int
	if err := d.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := d.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("advance user_version to %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
		slog.Debug("migration applied", "version", i+1)
	}
	return nil
}

// Version reports the applied migration count.
func (d *DB) Version(ctx context.Context) (int, error) {
	var v int
	err := d.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}
