// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"encoding/json"

	"github.com/fieldtrack/fieldsync/localstore"
	"github.com/fieldtrack/fieldsync/model"
	"github.com/fieldtrack/fieldsync/remote"
)

// WatermarkFormat is the RFC3339 layout used for the pull watermark.
// Millisecond precision, always UTC, so string comparison orders correctly.
const WatermarkFormat = "2006-01-02T15:04:05.000Z"

// PullStats summarizes one pull pass.
type PullStats struct {
	Skipped      bool // offline guard fired, nothing attempted
	Applied      int  // rows upserted into the local mirror
	TablesFailed int  // tables whose fetch or apply failed this pass
	Advanced     bool // watermark moved forward
}

// Pull fetches remote rows owned by the engine's user changed strictly
// after the stored watermark and upserts them into the local mirror by
// primary key (remote wins). The pass timestamp is captured once before any
// table is fetched so rows changed mid-pass are never skipped; the
// watermark advances to it only when every table succeeded and it is ahead
// of the stored value. An absent watermark means first run: everything is
// pulled.
func (e *Engine) Pull(ctx context.Context) PullStats {
	if !e.Net.Online(ctx) {
		return PullStats{Skipped: true}
	}

	watermark, err := e.Store.GetSetting(ctx, localstore.SettingLastSyncedAt)
	if err != nil {
		e.Logger.Error("pull: failed to read watermark", "error", err)
		return PullStats{}
	}
	passStart := e.Now().UTC().Format(WatermarkFormat)

	var stats PullStats
	for _, table := range model.Tables() {
		applied, err := e.pullTable(ctx, table, watermark)
		if err != nil {
			e.Logger.Warn("pull: table failed", "table", table.Name, "error", err)
			stats.TablesFailed++
			continue
		}
		stats.Applied += applied
	}

	if stats.TablesFailed > 0 {
		return stats
	}
	// A device clock that moved backwards must never roll the watermark
	// back; the stored value only ever grows.
	if watermark != "" && passStart <= watermark {
		return stats
	}
	if err := e.Store.SetSetting(ctx, localstore.SettingLastSyncedAt, passStart); err != nil {
		e.Logger.Error("pull: failed to advance watermark", "error", err)
		return stats
	}
	stats.Advanced = true
	return stats
}

func (e *Engine) pullTable(ctx context.Context, table model.SyncTable, watermark string) (int, error) {
	f := remote.Filter{UserID: e.UserID, UpdatedAfter: watermark}
	if table.Shared {
		f.UserID = ""
	}
	rows, err := e.Remote.Select(ctx, table.Name, f)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, raw := range rows {
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			e.Logger.Warn("pull: skipping malformed row", "table", table.Name, "error", err)
			continue
		}
		if err := e.Store.UpsertRow(ctx, table.Name, row); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
