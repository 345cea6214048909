// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package remote defines the interface the sync engines use to talk to the
// remote store, together with a closed error-kind taxonomy. Classification
// of remote failures happens exactly once, at the adapter boundary; the
// push and pull engines branch on Kind and never inspect message text.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a remote store failure.
type Kind int

const (
	// KindNone is the zero value and never appears on a returned error.
	KindNone Kind = iota

	// KindUnreachable means the request never produced an HTTP response
	// (DNS, dial, timeout). The caller should treat it as a transient
	// connectivity gap, not a data error.
	KindUnreachable

	// KindNotFound means the target row does not exist remotely.
	KindNotFound

	// KindConflict means a unique constraint was violated (duplicate key).
	KindConflict

	// KindOther covers everything else: auth failures, validation errors,
	// rate limits, backend faults. Assumed transient and retried.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindOther:
		return "other"
	}
	return "none"
}

// Error is a classified remote store failure.
type Error struct {
	Kind  Kind
	Op    string // "select", "insert", "update", "delete"
	Table string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("remote %s on %s: %s: %s", e.Op, e.Table, e.Kind, e.Msg)
	}
	return fmt.Sprintf("remote %s on %s: %s", e.Op, e.Table, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the Kind from err, or KindNone when err is not a remote
// error (or nil).
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindNone
}

// Filter scopes a Select call: rows owned by UserID, optionally restricted
// to rows whose updated_at is strictly greater than UpdatedAfter.
type Filter struct {
	UserID       string
	UpdatedAfter string
}

// Store is the per-table CRUD surface of the remote backend. Rows travel as
// raw JSON objects keyed by column name; row ownership and timestamp
// maintenance are the backend's concern.
type Store interface {
	Select(ctx context.Context, table string, f Filter) ([]json.RawMessage, error)
	Insert(ctx context.Context, table string, row json.RawMessage) error
	Update(ctx context.Context, table string, rowID string, row json.RawMessage) error
	Delete(ctx context.Context, table string, rowID string) error
}
