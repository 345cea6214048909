// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package syncer implements the push engine, pull engine and the sync
// orchestrator that coordinates them. All remote access goes through the
// remote.Store interface and all local state through localstore, so the
// engines are testable against in-memory fakes.
package syncer

import (
	"context"
	"net/http"
	"time"
)

// Connectivity reports whether the network path to the remote store is
// believed reachable. It is a guard, not a guarantee: a pass that starts
// online can still fail mid-flight and is handled by the per-entry error
// policy.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// ProbeMonitor implements Connectivity with a cheap HEAD request against
// the backend's health endpoint.
type ProbeMonitor struct {
	URL  string
	HTTP *http.Client
}

// NewProbeMonitor returns a monitor probing url with a short timeout.
func NewProbeMonitor(url string) *ProbeMonitor {
	return &ProbeMonitor{
		URL:  url,
		HTTP: &http.Client{Timeout: 3 * time.Second},
	}
}

// Online performs one probe. Any HTTP response counts as reachable; only a
// transport-level failure reports offline.
func (m *ProbeMonitor) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.URL, nil)
	if err != nil {
		return false
	}
	resp, err := m.HTTP.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// AlwaysOnline is a Connectivity that never reports offline. Used by the
// simulator and tests.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(context.Context) bool { return true }
