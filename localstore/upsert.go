// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// UpsertRow inserts or replaces a mirrored row by primary key. Payload keys
// that do not exist as columns are dropped rather than erroring, so a newer
// remote schema never breaks an older client. Remote is authoritative for
// any row it returns.
func (s *Store) UpsertRow(ctx context.Context, table string, row map[string]any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertRowTx(ctx, tx, table, row)
	})
}

// DeleteRow removes a mirrored row by primary key. Missing rows are a no-op.
func (s *Store) DeleteRow(ctx context.Context, table, rowID string) error {
	return s.Execute(ctx, fmt.Sprintf(`DELETE FROM "%s" WHERE id = ?`, table), rowID)
}

func upsertRowTx(ctx context.Context, tx *sql.Tx, table string, row map[string]any) error {
	known, err := tableColumnsTx(ctx, tx, table)
	if err != nil {
		return fmt.Errorf("%w: failed to read columns for %s: %v", ErrQuery, table, err)
	}

	var cols []string
	for col := range row {
		if known[col] {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return fmt.Errorf("%w: no known columns in payload for %s", ErrQuery, table)
	}
	// Deterministic statement text keeps SQLite's statement cache warm and
	// makes test assertions stable.
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = `"` + col + `"`
		marks[i] = "?"
		args[i] = row[col]
	}

	stmt := fmt.Sprintf(`INSERT OR REPLACE INTO "%s" (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: failed to upsert into %s: %v", ErrQuery, table, err)
	}
	return nil
}

func tableColumnsTx(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
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
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
