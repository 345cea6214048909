// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"fmt"
	"strings"
)

// Base schema. Mirrored entity tables carry the remote primary key verbatim
// (client-generated UUIDv4 for new rows) plus created_at/updated_at used by
// the pull watermark. All timestamps are RFC3339 UTC text.
var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		table_name TEXT NOT NULL,
		row_id     TEXT,
		action     TEXT NOT NULL CHECK (action IN ('INSERT','UPDATE','DELETE')),
		data       TEXT,
		status     TEXT NOT NULL DEFAULT 'PENDING',
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,

	`CREATE TABLE IF NOT EXISTS app_settings (
		key   TEXT PRIMARY KEY,
		value TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS attendance (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		date       TEXT NOT NULL,
		time_in    TEXT,
		time_out   TEXT,
		status     TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS accomplishments (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		date        TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT,
		created_at  TEXT,
		updated_at  TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS job_positions (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		office     TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS profiles (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		full_name       TEXT,
		job_position_id TEXT,
		created_at      TEXT,
		updated_at      TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS saved_reports (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		format     TEXT NOT NULL,
		created_at TEXT,
		updated_at TEXT
	)`,
}

// columnMigration is one historical additive column. New columns are always
// nullable so older rows stay valid.
type columnMigration struct {
	table  string
	column string
	ddl    string
}

var columnMigrations = []columnMigration{
	{"attendance", "remarks", `ALTER TABLE attendance ADD COLUMN remarks TEXT`},
	{"accomplishments", "hours", `ALTER TABLE accomplishments ADD COLUMN hours REAL`},
	{"profiles", "avatar_url", `ALTER TABLE profiles ADD COLUMN avatar_url TEXT`},
	{"saved_reports", "period_from", `ALTER TABLE saved_reports ADD COLUMN period_from TEXT`},
	{"saved_reports", "period_to", `ALTER TABLE saved_reports ADD COLUMN period_to TEXT`},
}

// Migrate idempotently ensures the full table set and all historical column
// additions exist. Base-table creation failures are fatal; additive column
// failures are logged and skipped — the app keeps running on a possibly
// stale schema rather than crashing at startup.
func (s *Store) Migrate(ctx context.Context) error {
	for _, ddl := range baseSchema {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%w: failed to create table: %v", ErrQuery, err)
		}
	}

	for _, m := range columnMigrations {
		exists, err := s.columnExists(ctx, m.table, m.column)
		if err != nil {
			s.logger.Warn("migration probe failed", "table", m.table, "column", m.column, "error", err)
			continue
		}
		if exists {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.ddl); err != nil {
			// A concurrent opener may have added the column between the
			// probe and the ALTER; that case is a no-op.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			s.logger.Warn("migration failed", "table", m.table, "column", m.column, "error", err)
		}
	}
	return nil
}

// columnExists checks whether a column exists on a table.
func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
