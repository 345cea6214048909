// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package model defines the mirrored-table registry and the typed payloads
// carried by the mutation queue. Every table that syncs between the local
// store and the remote store is registered here; the queue validates
// payloads against this registry at enqueue time so malformed rows fail
// before they ever reach a push pass.
package model

import (
	"encoding/json"
	"fmt"
)

// Action is the kind of pending write recorded in the mutation queue.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Valid reports whether a is one of the three queue actions.
func (a Action) Valid() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Table names mirrored from the remote store.
const (
	TableAttendance      = "attendance"
	TableAccomplishments = "accomplishments"
	TableJobPositions    = "job_positions"
	TableProfiles        = "profiles"
	TableSavedReports    = "saved_reports"
)

// SyncTable describes one mirrored table: its remote name, the column used
// as the shared primary key between local and remote copies, and whether
// the table is a shared catalogue (pulled without an owner filter).
type SyncTable struct {
	Name     string
	PKColumn string
	Shared   bool
}

// Tables returns the registered sync tables in pull order. Order matters
// only insofar as referenced rows (positions, profiles) land before the
// rows that point at them.
func Tables() []SyncTable {
	return []SyncTable{
		{Name: TableProfiles, PKColumn: "id"},
		{Name: TableJobPositions, PKColumn: "id", Shared: true},
		{Name: TableAttendance, PKColumn: "id"},
		{Name: TableAccomplishments, PKColumn: "id"},
		{Name: TableSavedReports, PKColumn: "id"},
	}
}

// Registered reports whether name is a known sync table.
func Registered(name string) bool {
	for _, t := range Tables() {
		if t.Name == name {
			return true
		}
	}
	return false
}

// ValidatePayload checks a queue payload for the given table and action.
// INSERT and UPDATE payloads must decode into the table's row type and
// carry a primary key and owner. DELETE payloads are allowed to be minimal
// (id only) or absent entirely.
func ValidatePayload(table string, action Action, payload json.RawMessage) error {
	if !Registered(table) {
		return fmt.Errorf("unregistered table %q", table)
	}
	if !action.Valid() {
		return fmt.Errorf("invalid action %q", action)
	}
	if action == ActionDelete {
		return nil
	}
	if len(payload) == 0 {
		return fmt.Errorf("%s on %s requires a payload", action, table)
	}

	var err error
	switch table {
	case TableAttendance:
		var row Attendance
		err = decodeStrictID(payload, &row, func() string { return row.ID })
	case TableAccomplishments:
		var row Accomplishment
		err = decodeStrictID(payload, &row, func() string { return row.ID })
	case TableJobPositions:
		var row JobPosition
		err = decodeStrictID(payload, &row, func() string { return row.ID })
	case TableProfiles:
		var row Profile
		err = decodeStrictID(payload, &row, func() string { return row.ID })
	case TableSavedReports:
		var row SavedReport
		err = decodeStrictID(payload, &row, func() string { return row.ID })
	}
	if err != nil {
		return fmt.Errorf("invalid %s payload for %s: %w", action, table, err)
	}
	return nil
}

func decodeStrictID(payload json.RawMessage, dst any, id func() string) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return err
	}
	if id() == "" {
		return fmt.Errorf("missing id")
	}
	return nil
}
