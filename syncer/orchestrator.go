// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TriggerResult is the typed outcome of a Trigger call, so callers and
// tests can assert on the single-flight behavior instead of inferring it
// from timing.
type TriggerResult int

const (
	// TriggerStarted means this call ran a full push-then-pull cycle.
	TriggerStarted TriggerResult = iota

	// TriggerAlreadyRunning means another cycle was in flight and this call
	// was dropped. Dropped, not queued: the in-flight cycle already
	// captured the best-known pending state, so only freshness is lost. A
	// caller that needs the next state triggers again after completion.
	TriggerAlreadyRunning
)

func (r TriggerResult) String() string {
	if r == TriggerStarted {
		return "started"
	}
	return "already_running"
}

// Orchestrator is the single entry point for sync. Screens, the
// connectivity watcher and the bootstrap path all call Trigger; concurrent
// invocations collapse into one running cycle.
type Orchestrator struct {
	engine *Engine
	logger *slog.Logger

	mu   sync.Mutex
	done chan struct{} // non-nil while a cycle is in flight; closed on completion
}

// NewOrchestrator wraps engine.
func NewOrchestrator(engine *Engine) *Orchestrator {
	return &Orchestrator{engine: engine, logger: engine.Logger}
}

// Trigger runs one push-then-pull cycle unless one is already in flight.
// The cycle is synchronous: fire-and-forget callers run it on their own
// goroutine, while callers needing the post-cycle state use AwaitCycle. The
// in-flight marker is cleared on every path out, including a panic in
// either engine pass.
func (o *Orchestrator) Trigger(ctx context.Context) TriggerResult {
	o.mu.Lock()
	if o.done != nil {
		o.mu.Unlock()
		return TriggerAlreadyRunning
	}
	done := make(chan struct{})
	o.done = done
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.done = nil
		o.mu.Unlock()
		close(done)
	}()

	push := o.engine.Push(ctx)
	pull := o.engine.Pull(ctx)
	o.logger.Debug("sync cycle complete",
		"pushed", push.Pushed, "evicted", push.Evicted, "retained", push.Retained,
		"applied", pull.Applied, "tables_failed", pull.TablesFailed,
		"watermark_advanced", pull.Advanced)
	return TriggerStarted
}

// AwaitCycle returns once a full push-then-pull cycle has completed,
// starting one if none is in flight and joining the in-flight one
// otherwise. Pull-to-refresh callers use it to re-read the local store
// only after a cycle has actually finished. The only failure is ctx
// cancellation while waiting.
func (o *Orchestrator) AwaitCycle(ctx context.Context) error {
	if o.Trigger(ctx) == TriggerStarted {
		return nil
	}
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		// The in-flight cycle finished between Trigger and the read.
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Syncing reports whether a cycle is currently in flight.
func (o *Orchestrator) Syncing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done != nil
}

// Run auto-triggers sync until ctx is cancelled: once at start (the
// bootstrap trigger, fired when a signed-in user and an opened local store
// both exist), on every offline-to-online connectivity edge, and on a
// foreground interval tick. Connectivity is polled on the same tick used
// for the periodic trigger.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	online := o.engine.Net.Online(ctx)
	if online {
		o.Trigger(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := o.engine.Net.Online(ctx)
		if now && !online {
			o.logger.Info("connectivity regained, triggering sync")
		}
		if now {
			o.Trigger(ctx)
		}
		online = now
	}
}
