// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldtrack/fieldsync/localstore"
	"github.com/fieldtrack/fieldsync/model"
	"github.com/fieldtrack/fieldsync/remote"
)

// Engine binds the local store, the mutation queue and the remote store
// adapter for one signed-in user. Push and Pull never return errors to the
// caller: they are invoked opportunistically (connectivity events, screen
// focus) and must never crash the caller, so failures are absorbed, logged
// and reflected in the returned stats.
type Engine struct {
	Store  *localstore.Store
	Queue  *localstore.Queue
	Remote remote.Store
	Net    Connectivity
	UserID string
	Logger *slog.Logger

	// Now is the pass clock; overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// NewEngine returns an Engine with the default clock.
func NewEngine(store *localstore.Store, queue *localstore.Queue, rs remote.Store, net Connectivity, userID string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Store:  store,
		Queue:  queue,
		Remote: rs,
		Net:    net,
		UserID: userID,
		Logger: logger,
		Now:    time.Now,
	}
}

// PushStats summarizes one push pass.
type PushStats struct {
	Skipped  bool // offline guard fired, nothing attempted
	Pushed   int  // entries confirmed and removed
	Evicted  int  // entries removed on terminal-benign remote errors
	Retained int  // entries left queued for the next pass
}

// Push drains the mutation queue against the remote store, oldest first,
// one entry at a time. The pending list is snapshotted once at the start of
// the pass; entries appended mid-pass wait for the next one. Per entry:
// success removes it; not-found and unique-violation remove it too (the
// desired end state is already satisfied or unreachable, retrying would
// loop forever); anything else leaves it in place and the pass moves on so
// one bad entry cannot block the rest of the queue.
func (e *Engine) Push(ctx context.Context) PushStats {
	if !e.Net.Online(ctx) {
		return PushStats{Skipped: true}
	}

	entries, err := e.Queue.Pending(ctx)
	if err != nil {
		e.Logger.Error("push: failed to read pending queue", "error", err)
		return PushStats{}
	}

	var stats PushStats
	for _, entry := range entries {
		err := e.dispatch(ctx, entry)
		if err == nil {
			if err := e.Queue.Remove(ctx, entry.ID); err != nil {
				e.Logger.Error("push: failed to remove confirmed entry",
					"entry", entry.ID, "table", entry.TableName, "error", err)
				stats.Retained++
				continue
			}
			stats.Pushed++
			continue
		}

		switch remote.KindOf(err) {
		case remote.KindNotFound, remote.KindConflict:
			// Terminal but benign for this entry.
			e.Logger.Info("push: evicting unrecoverable entry",
				"entry", entry.ID, "table", entry.TableName,
				"action", entry.Action, "kind", remote.KindOf(err).String())
			if err := e.Queue.Remove(ctx, entry.ID); err != nil {
				e.Logger.Error("push: failed to evict entry",
					"entry", entry.ID, "table", entry.TableName, "error", err)
				stats.Retained++
				continue
			}
			stats.Evicted++
		default:
			// Transient by assumption; retried verbatim on the next pass.
			e.Logger.Warn("push: entry failed, will retry",
				"entry", entry.ID, "table", entry.TableName,
				"action", entry.Action, "error", err)
			stats.Retained++
		}
	}
	return stats
}

func (e *Engine) dispatch(ctx context.Context, entry localstore.Entry) error {
	switch entry.Action {
	case model.ActionInsert:
		return e.Remote.Insert(ctx, entry.TableName, entry.Data)
	case model.ActionUpdate:
		return e.Remote.Update(ctx, entry.TableName, entry.RowID, entry.Data)
	case model.ActionDelete:
		return e.Remote.Delete(ctx, entry.TableName, entry.RowID)
	}
	// Unknown actions cannot be replayed; classify as not-found so the
	// eviction path clears them instead of jamming the queue.
	return &remote.Error{Kind: remote.KindNotFound, Op: "dispatch", Table: entry.TableName,
		Msg: "unknown action " + string(entry.Action)}
}
