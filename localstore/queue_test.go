package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/fieldsync/model"
)

func attendancePayload(id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"user_id":"u1","date":"2025-06-01","status":"present"}`, id))
}

func TestEnqueueValidation(t *testing.T) {
	store := newTestStore(t)
	queue := NewQueue(store)
	ctx := context.Background()

	tests := []struct {
		name    string
		table   string
		rowID   string
		action  model.Action
		payload json.RawMessage
		wantErr bool
	}{
		{"valid insert", model.TableAttendance, "a1", model.ActionInsert, attendancePayload("a1"), false},
		{"insert without row id", model.TableAttendance, "", model.ActionInsert, attendancePayload("a2"), false},
		{"unregistered table", "nope", "x", model.ActionInsert, attendancePayload("x"), true},
		{"update without row id", model.TableAttendance, "", model.ActionUpdate, attendancePayload("a3"), true},
		{"insert without payload", model.TableAttendance, "a4", model.ActionInsert, nil, true},
		{"payload missing id", model.TableAttendance, "a5", model.ActionInsert, json.RawMessage(`{"user_id":"u1"}`), true},
		{"delete without payload", model.TableAttendance, "a6", model.ActionDelete, nil, false},
		{"bad action", model.TableAttendance, "a7", model.Action("UPSERT"), attendancePayload("a7"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := queue.Enqueue(ctx, tt.table, tt.rowID, tt.action, tt.payload)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPendingOrderedBySequence(t *testing.T) {
	store := newTestStore(t)
	queue := NewQueue(store)
	ctx := context.Background()

	// Same logical row mutated repeatedly; replay order must be creation
	// order, never coalesced.
	require.NoError(t, queue.Enqueue(ctx, model.TableAttendance, "a1", model.ActionInsert, attendancePayload("a1")))
	require.NoError(t, queue.Enqueue(ctx, model.TableAttendance, "a1", model.ActionUpdate, attendancePayload("a1")))
	require.NoError(t, queue.Enqueue(ctx, model.TableAttendance, "a1", model.ActionUpdate, attendancePayload("a1")))
	require.NoError(t, queue.Enqueue(ctx, model.TableAttendance, "a1", model.ActionDelete, nil))

	entries, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	wantActions := []model.Action{model.ActionInsert, model.ActionUpdate, model.ActionUpdate, model.ActionDelete}
	for i, e := range entries {
		require.Equal(t, wantActions[i], e.Action)
		require.Equal(t, StatusPending, e.Status)
		if i > 0 {
			require.Greater(t, e.ID, entries[i-1].ID)
		}
	}
}

func TestRemoveIdempotent(t *testing.T) {
	store := newTestStore(t)
	queue := NewQueue(store)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, model.TableAttendance, "a1", model.ActionInsert, attendancePayload("a1")))
	entries, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, queue.Remove(ctx, entries[0].ID))
	require.NoError(t, queue.Remove(ctx, entries[0].ID)) // missing id is not an error
	require.NoError(t, queue.Remove(ctx, 99999))

	n, err := queue.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSaveAndQueueWritesBoth(t *testing.T) {
	store := newTestStore(t)
	queue := NewQueue(store)
	ctx := context.Background()

	require.NoError(t, queue.SaveAndQueue(ctx, model.TableAttendance, "a1", model.ActionInsert, attendancePayload("a1")))

	// Local mirror shows the row immediately.
	row, err := store.QueryFirst(ctx, `SELECT id, status FROM attendance WHERE id = ?`, "a1")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "present", row["status"])

	// And exactly one queue entry exists for it.
	entries, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.ActionInsert, entries[0].Action)
	require.Equal(t, "a1", entries[0].RowID)
}

func TestSaveAndQueueDeleteRemovesLocalRow(t *testing.T) {
	store := newTestStore(t)
	queue := NewQueue(store)
	ctx := context.Background()

	require.NoError(t, queue.SaveAndQueue(ctx, model.TableAttendance, "a1", model.ActionInsert, attendancePayload("a1")))
	require.NoError(t, queue.SaveAndQueue(ctx, model.TableAttendance, "a1", model.ActionDelete, nil))

	row, err := store.QueryFirst(ctx, `SELECT id FROM attendance WHERE id = ?`, "a1")
	require.NoError(t, err)
	require.Nil(t, row)

	entries, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2) // INSERT then DELETE, both still queued
}

func TestHasSavedReport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hit, err := store.HasSavedReport(ctx, "u1", "June DTR", "pdf")
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, store.Execute(ctx, `
		INSERT INTO saved_reports (id, user_id, title, format) VALUES (?, ?, ?, ?)
	`, "r1", "u1", "June DTR", "pdf"))

	hit, err = store.HasSavedReport(ctx, "u1", "June DTR", "pdf")
	require.NoError(t, err)
	require.True(t, hit)

	hit, err = store.HasSavedReport(ctx, "u1", "June DTR", "xlsx")
	require.NoError(t, err)
	require.False(t, hit)
}
