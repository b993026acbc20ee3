// Package store implements the persistent trigram index: a five-table
// SQLite schema, Roaring-bitmap postings, and the transactional upsert,
// remove and meta operations the writer actor drives inside its batches.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Engine owns the writable database connection. It is meant to be driven by
// a single goroutine (the writer actor); it holds no locks of its own.
type Engine struct {
	db   *sql.DB
	path string
}

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting the read helpers
// in this package run either inside the writer's transaction or against a
// standalone read-only connection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open opens (creating if absent) the writable database at path and applies
// the crash-safety pragmas and schema. Returns an error satisfying IsCorrupt
// if the file exists but is not a valid SQLite database.
func Open(path string) (*Engine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Engine{db: db, path: path}, nil
}

// OpenReadOnly opens an independent read-only connection, per the
// concurrency model's "each search opens an independent read-only
// connection" requirement. Callers should close it once the search that
// opened it has completed.
func OpenReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func configure(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: %s: %w", p, err)
		}
	}
	return nil
}

// DB returns the underlying handle so the writer actor can begin
// transactions and the lease manager can issue its own statements.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Path returns the database file path this engine was opened with.
func (e *Engine) Path() string {
	return e.path
}

// Close closes the writable connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// IsCorrupt reports whether err is SQLite's "not a database" error, the one
// condition that triggers automatic delete-and-recreate at open time.
func IsCorrupt(err error) bool {
	return err != nil && strings.Contains(err.Error(), "file is not a database")
}

// MaxFileID returns the highest file id currently stored, or 0 if the files
// table is empty. The writer initializes its id counter from this value.
func MaxFileID(ctx context.Context, q Queryer) (uint32, error) {
	var id uint32
	err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM files`).Scan(&id)
	return id, err
}
