// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package localstore provides the on-device SQLite store that mirrors a
// subset of remote tables, plus the durable mutation queue and sync
// metadata. It is the leaf dependency of the sync subsystem: the push and
// pull engines, the orchestrator, and the UI all read and write through it.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors. Callers branch with errors.Is.
var (
	// ErrStorageUnavailable means the database file could not be created or
	// opened (storage exhausted, permissions).
	ErrStorageUnavailable = errors.New("local store unavailable")

	// ErrQuery means a statement was malformed or violated a constraint.
	ErrQuery = errors.New("local store query failed")
)

// Store is a single-process, file-backed SQLite store. Construct it with
// Open and pass it by reference to whatever needs it; use Shared when the
// whole process should converge on one handle.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	// Serialize writes to avoid SQLITE_BUSY between the queue writers and
	// the pull engine's upsert transactions.
	writeMu sync.Mutex
}

// Open opens (creating if needed) the database file at path and returns a
// ready Store. The schema is not touched; call Migrate before first use.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	// A single connection keeps statement ordering deterministic and
	// sidesteps cross-connection locking on the one shared file.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %v", ErrStorageUnavailable, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable foreign keys: %v", ErrStorageUnavailable, err)
	}
	return &Store{db: db, logger: logger}, nil
}

var (
	sharedMu   sync.Mutex
	sharedPath string
	shared     *Store
)

// Shared returns the process-wide Store, opening and migrating it on the
// first successful call. All callers must agree on one path; a second path
// is rejected rather than silently opening a second handle. A failed open
// does not pin the path, so the composition root may retry. Library code
// should accept a *Store instead of calling this.
func Shared(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		if sharedPath != path {
			return nil, fmt.Errorf("shared store already open at %s, refusing %s", sharedPath, path)
		}
		return shared, nil
	}

	s, err := Open(path, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		// Migrate only fails on base-schema creation; additive column
		// errors are absorbed inside.
		_ = s.Close()
		return nil, err
	}
	shared, sharedPath = s, path
	return shared, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for tests and for transactional helpers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Execute runs a parameterized statement that returns no rows.
func (s *Store) Execute(ctx context.Context, query string, args ...any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return nil
}

// QueryAll runs a parameterized query and returns every row as a
// column-name keyed map. BLOB-free schemas make []byte values plain text,
// so they are surfaced as strings.
func (s *Store) QueryAll(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQuery, err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return out, nil
}

// QueryFirst returns the first row of a query, or nil when there is none.
func (s *Store) QueryFirst(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rows, err := s.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// withTx runs fn inside a transaction, rolling back unless fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrQuery, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrQuery, err)
	}
	return nil
}
