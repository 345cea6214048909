// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fieldtrack/fieldsync/model"
)

// StatusPending is the only sustained queue status. Entries are deleted on
// completion rather than marked done.
const StatusPending = "PENDING"

// Entry is one pending local write awaiting transmission to the remote
// store. The autoincrementing ID defines replay order.
type Entry struct {
	ID        int64
	TableName string
	RowID     string
	Action    model.Action
	Data      json.RawMessage
	Status    string
	CreatedAt string
}

// Queue is the durable mutation queue. It records intent to mutate remote
// state without blocking on network availability. Entries are never
// reordered or coalesced: multiple updates to the same row produce multiple
// remote round-trips, in exchange for a trivially correct replay order.
type Queue struct {
	store *Store
}

// NewQueue returns a Queue over store.
func NewQueue(store *Store) *Queue {
	return &Queue{store: store}
}

// Enqueue appends a new PENDING entry. The payload is validated against the
// table's registered row type up front so malformed payloads surface here,
// not mid-push. rowID may be empty only for inserts, where the id is
// embedded in the payload.
func (q *Queue) Enqueue(ctx context.Context, table, rowID string, action model.Action, payload json.RawMessage) error {
	if err := model.ValidatePayload(table, action, payload); err != nil {
		return fmt.Errorf("enqueue rejected: %w", err)
	}
	if rowID == "" && action != model.ActionInsert {
		return fmt.Errorf("enqueue rejected: %s on %s requires a row id", action, table)
	}
	return q.store.Execute(ctx, `
		INSERT INTO sync_queue (table_name, row_id, action, data, status)
		VALUES (?, ?, ?, ?, ?)
	`, table, nullable(rowID), string(action), nullableRaw(payload), StatusPending)
}

// Pending returns all PENDING entries ordered by id ascending. The push
// engine treats the result as a snapshot: entries enqueued during a pass
// are picked up on the next pass.
func (q *Queue) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := q.store.db.QueryContext(ctx, `
		SELECT id, table_name, COALESCE(row_id, ''), action, COALESCE(data, ''), status, created_at
		FROM sync_queue
		WHERE status = ?
		ORDER BY id ASC
	`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action, data string
		if err := rows.Scan(&e.ID, &e.TableName, &e.RowID, &action, &data, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQuery, err)
		}
		e.Action = model.Action(action)
		if data != "" {
			e.Data = json.RawMessage(data)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return entries, nil
}

// Remove deletes a single entry. Removing a missing id is not an error.
func (q *Queue) Remove(ctx context.Context, entryID int64) error {
	return q.store.Execute(ctx, `DELETE FROM sync_queue WHERE id = ?`, entryID)
}

// Count returns the number of PENDING entries.
func (q *Queue) Count(ctx context.Context) (int, error) {
	row, err := q.store.QueryFirst(ctx, `SELECT COUNT(*) AS n FROM sync_queue WHERE status = ?`, StatusPending)
	if err != nil {
		return 0, err
	}
	n, _ := row["n"].(int64)
	return int(n), nil
}

// SaveAndQueue is the shared "write locally + enqueue" helper screens call.
// The local mirror write and the queue append happen in one transaction, so
// a crash can never leave a queued change with no local effect. For INSERT
// and UPDATE the payload is upserted into the mirrored table; for DELETE
// the local row is removed.
func (q *Queue) SaveAndQueue(ctx context.Context, table, rowID string, action model.Action, payload json.RawMessage) error {
	if err := model.ValidatePayload(table, action, payload); err != nil {
		return fmt.Errorf("save rejected: %w", err)
	}
	if rowID == "" {
		return fmt.Errorf("save rejected: row id required")
	}
	return q.store.withTx(ctx, func(tx *sql.Tx) error {
		switch action {
		case model.ActionDelete:
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM "%s" WHERE id = ?`, table), rowID); err != nil {
				return fmt.Errorf("%w: failed to delete local row: %v", ErrQuery, err)
			}
		default:
			var row map[string]any
			if err := json.Unmarshal(payload, &row); err != nil {
				return fmt.Errorf("failed to decode payload: %w", err)
			}
			if err := upsertRowTx(ctx, tx, table, row); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_queue (table_name, row_id, action, data, status)
			VALUES (?, ?, ?, ?, ?)
		`, table, rowID, string(action), nullableRaw(payload), StatusPending); err != nil {
			return fmt.Errorf("%w: failed to enqueue: %v", ErrQuery, err)
		}
		return nil
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableRaw(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
