// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Well-known app_settings keys.
const (
	// SettingLastSyncedAt holds the RFC3339 watermark of the last
	// successful pull pass. Monotonically non-decreasing.
	SettingLastSyncedAt = "last_synced_at"

	// SettingDeviceID is the locally generated device identifier, created
	// once and persisted for the lifetime of the install.
	SettingDeviceID = "device_id"
)

// GetSetting returns the value for key, or "" when the key is absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	row, err := s.QueryFirst(ctx, `SELECT value FROM app_settings WHERE key = ?`, key)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	v, _ := row["value"].(string)
	return v, nil
}

// SetSetting upserts a key/value pair.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return s.Execute(ctx, `
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
}

// EnsureDeviceID returns the persisted device id, generating and storing a
// new UUIDv4 on first call.
func (s *Store) EnsureDeviceID(ctx context.Context) (string, error) {
	id, err := s.GetSetting(ctx, SettingDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.New().String()
	if err := s.SetSetting(ctx, SettingDeviceID, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}
