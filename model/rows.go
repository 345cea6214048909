// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package model

// Row types mirror the remote schema. Primary keys are client-generated
// UUIDv4 strings so inserts can be queued before the remote store has ever
// seen the row. Timestamps are RFC3339 UTC strings end to end; the pull
// watermark compares them lexicographically.

// Attendance is one day-row per user per date. Punching out updates the
// existing row rather than inserting a second one.
type Attendance struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Date      string  `json:"date"`
	TimeIn    *string `json:"time_in,omitempty"`
	TimeOut   *string `json:"time_out,omitempty"`
	Status    string  `json:"status,omitempty"`
	Remarks   *string `json:"remarks,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

// Accomplishment is a free-form daily accomplishment entry.
type Accomplishment struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Date        string   `json:"date"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Hours       *float64 `json:"hours,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// JobPosition is a reference row (title catalogue) shared across users.
type JobPosition struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Office    string `json:"office,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Profile mirrors the signed-in user's profile row.
type Profile struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	FullName      string  `json:"full_name"`
	JobPositionID *string `json:"job_position_id,omitempty"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// SavedReport records an exported report (PDF/Excel) by title and format.
// Title+user+format is unique on the remote store; the local pre-check in
// localstore mirrors that constraint but the queue tolerates the race.
type SavedReport struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
	Format     string `json:"format"`
	PeriodFrom string `json:"period_from,omitempty"`
	PeriodTo   string `json:"period_to,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}
