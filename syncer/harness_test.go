package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/fieldsync/localstore"
	"github.com/fieldtrack/fieldsync/remote"
)

// switchNet is a Connectivity flipped by tests, safe across goroutines.
type switchNet struct{ online atomic.Bool }

func (n *switchNet) Online(context.Context) bool { return n.online.Load() }

func (n *switchNet) set(online bool) { n.online.Store(online) }

// recordedCall is one dispatch the fake remote observed.
type recordedCall struct {
	Op      string
	Table   string
	RowID   string
	Payload string
}

// fakeRemote is an in-memory remote.Store that records every call, serves
// scripted failures, and holds rows per table for Select.
type fakeRemote struct {
	mu    sync.Mutex
	calls []recordedCall

	// rows[table] = list of raw JSON rows returned by Select.
	rows map[string][]json.RawMessage

	// fail maps "op table rowID" (rowID empty for select/insert keyed by
	// payload id) to a scripted error returned once per call.
	fail map[string]error

	// block, when non-nil, is closed by the test to release in-flight
	// calls; used to hold a sync cycle open.
	block chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows: make(map[string][]json.RawMessage),
		fail: make(map[string]error),
	}
}

func (f *fakeRemote) failWith(op, table, rowID string, kind remote.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op+" "+table+" "+rowID] = &remote.Error{Kind: kind, Op: op, Table: table}
}

func (f *fakeRemote) clearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = make(map[string]error)
}

func (f *fakeRemote) record(op, table, rowID string, payload json.RawMessage) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{Op: op, Table: table, RowID: rowID, Payload: string(payload)})
	if err, ok := f.fail[op+" "+table+" "+rowID]; ok {
		return err
	}
	return nil
}

func (f *fakeRemote) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeRemote) setRows(table string, rows ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[table] = nil
	for _, r := range rows {
		f.rows[table] = append(f.rows[table], json.RawMessage(r))
	}
}

func (f *fakeRemote) Select(ctx context.Context, table string, filter remote.Filter) ([]json.RawMessage, error) {
	if err := f.record("select", table, "", nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, raw := range f.rows[table] {
		var row struct {
			UserID    string `json:"user_id"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := json.Unmarshal(raw, &row); err != nil {
			// Pass malformed rows through so the pull engine's own
			// skip-and-continue path can be exercised.
			out = append(out, raw)
			continue
		}
		if filter.UserID != "" && row.UserID != filter.UserID {
			continue
		}
		if filter.UpdatedAfter != "" && row.UpdatedAt <= filter.UpdatedAfter {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

func (f *fakeRemote) Insert(ctx context.Context, table string, row json.RawMessage) error {
	var body struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(row, &body)
	return f.record("insert", table, body.ID, row)
}

func (f *fakeRemote) Update(ctx context.Context, table string, rowID string, row json.RawMessage) error {
	return f.record("update", table, rowID, row)
}

func (f *fakeRemote) Delete(ctx context.Context, table string, rowID string) error {
	return f.record("delete", table, rowID, nil)
}

// harness bundles a migrated store, queue, fake remote, switchable network
// and an engine with a fixed clock.
type harness struct {
	Store  *localstore.Store
	Queue  *localstore.Queue
	Remote *fakeRemote
	Net    *switchNet
	Engine *Engine
	Clock  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "device.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	h := &harness{
		Store:  store,
		Queue:  localstore.NewQueue(store),
		Remote: newFakeRemote(),
		Net:    &switchNet{},
		Clock:  time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	h.Net.set(true)
	h.Engine = NewEngine(store, h.Queue, h.Remote, h.Net, "u1", slog.Default())
	h.Engine.Now = func() time.Time { return h.Clock }
	return h
}

func attRow(id, updatedAt string) string {
	return fmt.Sprintf(`{"id":%q,"user_id":"u1","date":"2025-06-15","status":"present","updated_at":%q}`, id, updatedAt)
}
