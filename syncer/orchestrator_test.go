package syncer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/fieldsync/localstore"
	"github.com/fieldtrack/fieldsync/model"
)

func TestTriggerRunsPushThenPull(t *testing.T) {
	h := newHarness(t)
	orch := NewOrchestrator(h.Engine)
	ctx := context.Background()

	queuedAttendance(t, h, "a1", model.ActionInsert)
	h.Remote.setRows(model.TableAccomplishments,
		`{"id":"c1","user_id":"u1","date":"2025-06-15","title":"t","updated_at":"2025-06-15T08:00:00.000Z"}`)

	require.Equal(t, TriggerStarted, orch.Trigger(ctx))

	// The queued insert was dispatched before any pull select.
	calls := h.Remote.recorded()
	require.NotEmpty(t, calls)
	require.Equal(t, "insert", calls[0].Op)

	// And the pull merged the remote accomplishment.
	row, err := h.Store.QueryFirst(ctx, `SELECT id FROM accomplishments WHERE id = ?`, "c1")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.False(t, orch.Syncing())
}

func TestTriggerSingleFlight(t *testing.T) {
	h := newHarness(t)
	orch := NewOrchestrator(h.Engine)
	ctx := context.Background()

	h.Remote.block = make(chan struct{})

	first := make(chan TriggerResult, 1)
	go func() { first <- orch.Trigger(ctx) }()

	// Wait until the cycle is in flight, then trigger again: the second
	// call must be dropped, not queued.
	require.Eventually(t, orch.Syncing, time.Second, time.Millisecond)
	require.Equal(t, TriggerAlreadyRunning, orch.Trigger(ctx))

	close(h.Remote.block)
	require.Equal(t, TriggerStarted, <-first)
	require.False(t, orch.Syncing())

	// After completion a new trigger starts a fresh cycle.
	h.Remote.block = nil
	require.Equal(t, TriggerStarted, orch.Trigger(ctx))
}

func TestAwaitCycleJoinsInFlightCycle(t *testing.T) {
	h := newHarness(t)
	orch := NewOrchestrator(h.Engine)
	ctx := context.Background()

	queuedAttendance(t, h, "a1", model.ActionInsert)
	h.Remote.block = make(chan struct{})

	go orch.Trigger(ctx)
	require.Eventually(t, orch.Syncing, time.Second, time.Millisecond)

	awaited := make(chan error, 1)
	go func() { awaited <- orch.AwaitCycle(ctx) }()

	// The awaiting caller must not return while the cycle is held open.
	select {
	case <-awaited:
		t.Fatal("AwaitCycle returned before the cycle completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(h.Remote.block)
	require.NoError(t, <-awaited)
	require.False(t, orch.Syncing())

	// The queue drained during the awaited cycle.
	n, err := h.Queue.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAwaitCycleStartsWhenIdle(t *testing.T) {
	h := newHarness(t)
	orch := NewOrchestrator(h.Engine)
	ctx := context.Background()

	queuedAttendance(t, h, "a1", model.ActionInsert)
	require.NoError(t, orch.AwaitCycle(ctx))

	n, err := h.Queue.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAwaitCycleHonorsContext(t *testing.T) {
	h := newHarness(t)
	orch := NewOrchestrator(h.Engine)

	h.Remote.block = make(chan struct{})
	queuedAttendance(t, h, "a1", model.ActionInsert)

	trigDone := make(chan struct{})
	go func() {
		orch.Trigger(context.Background())
		close(trigDone)
	}()
	require.Eventually(t, orch.Syncing, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, orch.AwaitCycle(ctx), context.Canceled)

	close(h.Remote.block)
	<-trigDone
}

func TestOfflineInsertThenReconnect(t *testing.T) {
	h := newHarness(t)
	orch := NewOrchestrator(h.Engine)
	ctx := context.Background()

	// Offline: save an accomplishment locally.
	h.Net.set(false)
	payload := json.RawMessage(`{"id":"c1","user_id":"u1","date":"2025-06-15","title":"Fixed pump"}`)
	require.NoError(t, h.Queue.SaveAndQueue(ctx, model.TableAccomplishments, "c1", model.ActionInsert, payload))

	// Local store shows the row immediately and one INSERT entry exists.
	row, err := h.Store.QueryFirst(ctx, `SELECT title FROM accomplishments WHERE id = ?`, "c1")
	require.NoError(t, err)
	require.Equal(t, "Fixed pump", row["title"])
	n, err := h.Queue.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// A trigger while offline completes without touching the remote.
	require.Equal(t, TriggerStarted, orch.Trigger(ctx))
	require.Empty(t, h.Remote.recorded())

	// Reconnect and sync: queue drains, remote saw the insert, watermark
	// advanced.
	h.Net.set(true)
	require.Equal(t, TriggerStarted, orch.Trigger(ctx))

	n, err = h.Queue.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	calls := h.Remote.recorded()
	require.Equal(t, "insert", calls[0].Op)
	require.Equal(t, model.TableAccomplishments, calls[0].Table)

	watermark, err := h.Store.GetSetting(ctx, localstore.SettingLastSyncedAt)
	require.NoError(t, err)
	require.Equal(t, h.Clock.UTC().Format(WatermarkFormat), watermark)
}

func TestRunTriggersOnReconnectEdge(t *testing.T) {
	h := newHarness(t)
	orch := NewOrchestrator(h.Engine)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.Net.set(false)
	queuedAttendance(t, h, "a1", model.ActionInsert)

	done := make(chan struct{})
	go func() {
		orch.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	// While offline nothing reaches the remote.
	time.Sleep(25 * time.Millisecond)
	require.Empty(t, h.Remote.recorded())

	// Going online gets picked up on the next tick and drains the queue.
	h.Net.set(true)
	require.Eventually(t, func() bool {
		n, err := h.Queue.Count(context.Background())
		return err == nil && n == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
