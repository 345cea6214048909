// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import "context"

// HasSavedReport reports whether a saved report with the same title, owner
// and format already exists in the local mirror. Screens call this before
// queueing a new report so the remote unique constraint is normally never
// hit; the queue layer still tolerates the race when two devices save the
// same title concurrently.
func (s *Store) HasSavedReport(ctx context.Context, userID, title, format string) (bool, error) {
	row, err := s.QueryFirst(ctx, `
		SELECT 1 AS hit FROM saved_reports
		WHERE user_id = ? AND title = ? AND format = ?
		LIMIT 1
	`, userID, title, format)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}
