// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldsync/backend"
	"github.com/fieldtrack/fieldsync/localstore"
	"github.com/fieldtrack/fieldsync/model"
	"github.com/fieldtrack/fieldsync/remote"
	"github.com/fieldtrack/fieldsync/syncer"
)

var (
	simServer    string
	simJWTSecret string
	simUserID    string
	simDBPath    string
)

// offlineSwitch is a Connectivity the simulator flips by hand.
type offlineSwitch struct{ online bool }

func (o *offlineSwitch) Online(context.Context) bool { return o.online }

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a device going offline, writing locally, then syncing",
	Long: `Runs the offline-to-online device flow end to end against a live
backend: punch in while offline, save an accomplishment, inspect the
mutation queue, reconnect, trigger one sync cycle, and report the drained
queue and advanced watermark.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()
		ctx := cmd.Context()

		dbPath := simDBPath
		if dbPath == "" {
			dir, err := os.MkdirTemp("", "fieldsync-sim-*")
			if err != nil {
				return fmt.Errorf("failed to create temp dir: %w", err)
			}
			defer os.RemoveAll(dir)
			dbPath = filepath.Join(dir, "device.db")
		}

		store, err := localstore.Open(dbPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}

		deviceID, err := store.EnsureDeviceID(ctx)
		if err != nil {
			return err
		}
		logger.Info("device ready", "db", dbPath, "device_id", deviceID, "user_id", simUserID)

		jwtAuth := backend.NewJWTAuth(simJWTSecret)
		tok := func(context.Context) (string, error) {
			return jwtAuth.GenerateToken(simUserID, deviceID, time.Hour)
		}
		rs := remote.NewRESTStore(simServer, tok)

		net := &offlineSwitch{online: false}
		queue := localstore.NewQueue(store)
		engine := syncer.NewEngine(store, queue, rs, net, simUserID, logger)
		orch := syncer.NewOrchestrator(engine)

		// Offline writes: punch in, then an accomplishment.
		now := time.Now().UTC()
		attID := uuid.New().String()
		timeIn := now.Format(time.RFC3339)
		att := model.Attendance{
			ID:     attID,
			UserID: simUserID,
			Date:   now.Format("2006-01-02"),
			TimeIn: &timeIn,
			Status: "present",
		}
		attJSON, _ := json.Marshal(att)
		if err := queue.SaveAndQueue(ctx, model.TableAttendance, attID, model.ActionInsert, attJSON); err != nil {
			return err
		}

		accID := uuid.New().String()
		acc := model.Accomplishment{
			ID:     accID,
			UserID: simUserID,
			Date:   now.Format("2006-01-02"),
			Title:  "Simulated field visit",
		}
		accJSON, _ := json.Marshal(acc)
		if err := queue.SaveAndQueue(ctx, model.TableAccomplishments, accID, model.ActionInsert, accJSON); err != nil {
			return err
		}

		pending, err := queue.Count(ctx)
		if err != nil {
			return err
		}
		logger.Info("offline writes recorded", "pending", pending)

		// Dropped trigger while offline: push and pull both no-op.
		orch.Trigger(ctx)

		// Reconnect and run one full cycle.
		net.online = true
		logger.Info("connectivity regained, syncing")
		result := orch.Trigger(ctx)
		logger.Info("sync cycle finished", "result", result.String())

		pending, err = queue.Count(ctx)
		if err != nil {
			return err
		}
		watermark, err := store.GetSetting(ctx, localstore.SettingLastSyncedAt)
		if err != nil {
			return err
		}
		logger.Info("post-sync state", "pending", pending, "last_synced_at", watermark)
		if pending != 0 {
			return fmt.Errorf("simulation incomplete: %d entries still queued", pending)
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simServer, "server", "http://localhost:8080", "backend URL")
	simulateCmd.Flags().StringVar(&simJWTSecret, "jwt-secret", "dev-secret-change-in-production", "JWT secret for local token generation")
	simulateCmd.Flags().StringVar(&simUserID, "user", uuid.NewString(), "user id to simulate")
	simulateCmd.Flags().StringVar(&simDBPath, "db", "", "SQLite path (default: temp file, removed on exit)")
}
