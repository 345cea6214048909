// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package backend is the reference remote store: a Postgres-backed,
// JWT-authenticated HTTP service exposing the per-table CRUD surface the
// remote adapter consumes. The mobile deployment points the adapter at the
// production backend instead; this implementation exists for development,
// the device simulator and the test suite.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store failure sentinels. Handlers translate these to HTTP statuses; the
// classification happens here, once, off pgconn SQLSTATEs.
var (
	ErrUnknownTable = errors.New("unknown table")
	ErrRowNotFound  = errors.New("row not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrBadColumn    = errors.New("column not allowed")
)

// Store is the per-table persistence surface the handlers run on.
type Store interface {
	Select(ctx context.Context, table, userID, updatedAfter string) ([]map[string]any, error)
	Insert(ctx context.Context, table, userID string, row map[string]any) error
	Update(ctx context.Context, table, userID, rowID string, row map[string]any) error
	Delete(ctx context.Context, table, userID, rowID string) error
}

// PgStore implements Store on a pgx connection pool.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a PgStore over pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// InitSchema applies the reference DDL idempotently.
func (s *PgStore) InitSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Select returns rows from table scoped to userID (unless the table is a
// shared catalogue) and, when updatedAfter is set, changed strictly after
// it. Timestamps are rendered RFC3339 UTC with millisecond precision so
// they compare bit-for-bit with the client watermark format.
func (s *PgStore) Select(ctx context.Context, table, userID, updatedAfter string) ([]map[string]any, error) {
	allowed, ok := tableColumns[table]
	if !ok {
		return nil, ErrUnknownTable
	}

	var conds []string
	var args []any
	if !sharedTables[table] {
		args = append(args, userID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if updatedAfter != "" {
		args = append(args, updatedAfter)
		conds = append(conds, fmt.Sprintf("updated_at > ($%d)::timestamptz", len(args)))
	}

	query := fmt.Sprintf(`SELECT * FROM %q`, table)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPg(err)
	}
	defer rows.Close()

	var out []map[string]any
	descs := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classifyPg(err)
		}
		row := make(map[string]any, len(descs))
		for i, d := range descs {
			name := string(d.Name)
			if !allowed[name] {
				continue
			}
			row[name] = renderValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPg(err)
	}
	return out, nil
}

// Insert creates a new row owned by userID. The server stamps updated_at
// regardless of what the client sent.
func (s *PgStore) Insert(ctx context.Context, table, userID string, row map[string]any) error {
	allowed, ok := tableColumns[table]
	if !ok {
		return ErrUnknownTable
	}
	if !sharedTables[table] {
		row["user_id"] = userID
	}
	delete(row, "updated_at")
	delete(row, "created_at")

	cols := sortedKeys(row)
	for _, c := range cols {
		if !allowed[c] {
			return fmt.Errorf("%w: %s.%s", ErrBadColumn, table, c)
		}
	}

	quoted := make([]string, 0, len(cols)+2)
	marks := make([]string, 0, len(cols)+2)
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		quoted = append(quoted, fmt.Sprintf("%q", c))
		marks = append(marks, fmt.Sprintf("$%d", i+1))
		args = append(args, row[c])
	}
	quoted = append(quoted, `"created_at"`, `"updated_at"`)
	marks = append(marks, "now()", "now()")

	stmt := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
		return classifyPg(err)
	}
	return nil
}

// Update patches the row matching rowID, scoped to userID for owned
// tables. Zero rows matched maps to ErrRowNotFound.
func (s *PgStore) Update(ctx context.Context, table, userID, rowID string, row map[string]any) error {
	allowed, ok := tableColumns[table]
	if !ok {
		return ErrUnknownTable
	}
	delete(row, "id")
	delete(row, "user_id")
	delete(row, "updated_at")
	delete(row, "created_at")

	cols := sortedKeys(row)
	if len(cols) == 0 {
		return fmt.Errorf("%w: empty update payload", ErrBadColumn)
	}
	for _, c := range cols {
		if !allowed[c] {
			return fmt.Errorf("%w: %s.%s", ErrBadColumn, table, c)
		}
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%q = $%d", c, i+1))
		args = append(args, row[c])
	}
	sets = append(sets, `"updated_at" = now()`)

	args = append(args, rowID)
	where := fmt.Sprintf("id = $%d", len(args))
	if !sharedTables[table] {
		args = append(args, userID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}

	stmt := fmt.Sprintf(`UPDATE %q SET %s WHERE %s`, table, strings.Join(sets, ", "), where)
	tag, err := s.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return classifyPg(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}

// Delete removes the row matching rowID. Zero rows matched maps to
// ErrRowNotFound so a client replaying a delete against an already-deleted
// row can evict its queue entry.
func (s *PgStore) Delete(ctx context.Context, table, userID, rowID string) error {
	if _, ok := tableColumns[table]; !ok {
		return ErrUnknownTable
	}
	args := []any{rowID}
	where := "id = $1"
	if !sharedTables[table] {
		args = append(args, userID)
		where += " AND user_id = $2"
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %q WHERE %s`, table, where), args...)
	if err != nil {
		return classifyPg(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}

// classifyPg maps pgconn SQLSTATEs onto the store sentinels.
func classifyPg(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.SQLState() {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRowNotFound
	}
	return err
}

func renderValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	case [16]byte:
		// pgx returns UUID columns as byte arrays without a registered
		// codec; render the canonical string form.
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
