// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package backend

// Backend-side table registry. The column allowlists keep dynamically built
// statements injection-safe: any payload key outside the list is rejected.

var tableColumns = map[string]map[string]bool{
	"attendance": cols("id", "user_id", "date", "time_in", "time_out",
		"status", "remarks", "created_at", "updated_at"),
	"accomplishments": cols("id", "user_id", "date", "title", "description",
		"hours", "created_at", "updated_at"),
	"job_positions": cols("id", "title", "office", "created_at", "updated_at"),
	"profiles": cols("id", "user_id", "full_name", "job_position_id",
		"avatar_url", "created_at", "updated_at"),
	"saved_reports": cols("id", "user_id", "title", "format", "period_from",
		"period_to", "created_at", "updated_at"),
}

// sharedTables have no per-user ownership and are readable by any
// authenticated user.
var sharedTables = map[string]bool{
	"job_positions": true,
}

func cols(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Schema is the reference Postgres DDL applied by InitSchema.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS attendance (
		id         UUID PRIMARY KEY,
		user_id    TEXT NOT NULL,
		date       TEXT NOT NULL,
		time_in    TEXT,
		time_out   TEXT,
		status     TEXT,
		remarks    TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS accomplishments (
		id          UUID PRIMARY KEY,
		user_id     TEXT NOT NULL,
		date        TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT,
		hours       DOUBLE PRECISION,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS job_positions (
		id         UUID PRIMARY KEY,
		title      TEXT NOT NULL,
		office     TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id              UUID PRIMARY KEY,
		user_id         TEXT NOT NULL,
		full_name       TEXT,
		job_position_id UUID,
		avatar_url      TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS saved_reports (
		id          UUID PRIMARY KEY,
		user_id     TEXT NOT NULL,
		title       TEXT NOT NULL,
		format      TEXT NOT NULL,
		period_from TEXT,
		period_to   TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT saved_reports_title_user_format_key UNIQUE (user_id, title, format)
	)`,
}
