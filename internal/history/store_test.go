package history

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/HendryAvila/bevy-brp-mcp/internal/watch"
)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T, runID string) *Store {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "history.db"))
	cfg.RunID = runID
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSub(id uint64, state watch.State) watch.Subscription {
	return watch.Subscription{
		ID:         id,
		Kind:       watch.KindValue,
		Entity:     4294967338,
		Components: []string{"Health"},
		Port:       15702,
		LogPath:    "/tmp/bevy_brp_mcp_watch_1_get_4294967338_0.log",
		State:      state,
		CreatedAt:  time.Date(2026, 5, 1, 12, 0, int(id), 0, time.UTC),
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

func TestNew_GeneratesRunID(t *testing.T) {
	s := newTestStore(t, "")
	if s.RunID() == "" {
		t.Fatal("expected a generated run id")
	}
}

func TestNew_CreatesNestedDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "history.db")
	s, err := New(DefaultConfig(path))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Close()
}

func TestNew_OpenError(t *testing.T) {
	orig := openDB
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { openDB = orig })

	if _, err := New(DefaultConfig(filepath.Join(t.TempDir(), "h.db"))); err == nil {
		t.Fatal("expected open error")
	}
}

// ─── Record ──────────────────────────────────────────────────────────────────

func TestRecord_InsertThenUpdate(t *testing.T) {
	s := newTestStore(t, "run-1")

	if err := s.Record(testSub(1, watch.StateStarting)); err != nil {
		t.Fatalf("Record starting: %v", err)
	}
	got, err := s.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != "starting" || got.EndedAt != nil {
		t.Errorf("after insert: state=%s ended=%v", got.State, got.EndedAt)
	}
	if got.Entity != 4294967338 || got.Kind != "get" || len(got.Components) != 1 {
		t.Errorf("fields not round-tripped: %+v", got)
	}

	failed := testSub(1, watch.StateFailed)
	failed.Err = "connection reset"
	if err := s.Record(failed); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	got, err = s.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != "failed" {
		t.Errorf("State = %s, want failed", got.State)
	}
	if got.Error != "connection reset" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.EndedAt == nil {
		t.Error("EndedAt should be set for a terminal state")
	}
}

func TestRecord_StructureWatchHasNoComponents(t *testing.T) {
	s := newTestStore(t, "run-1")
	sub := testSub(2, watch.StateStreaming)
	sub.Kind = watch.KindStructure
	sub.Components = nil

	if err := s.Record(sub); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := s.Get(2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != "list" || got.Components != nil {
		t.Errorf("got %+v", got)
	}
}

func TestGet_Unknown(t *testing.T) {
	s := newTestStore(t, "run-1")
	if _, err := s.Get(99); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

// ─── Recent ──────────────────────────────────────────────────────────────────

func TestRecent_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t, "run-1")
	for id := uint64(1); id <= 5; id++ {
		if err := s.Record(testSub(id, watch.StateStreaming)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(3, true)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []uint64{5, 4, 3} {
		if got[i].WatchID != want {
			t.Errorf("got[%d].WatchID = %d, want %d", i, got[i].WatchID, want)
		}
	}
}

func TestRecent_CurrentRunFilterAndAbandoned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	first, err := New(Config{Path: path, RunID: "old"})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Record(testSub(1, watch.StateStreaming)); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second, err := New(Config{Path: path, RunID: "new"})
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if err := second.Record(testSub(1, watch.StateStarting)); err != nil {
		t.Fatal(err)
	}

	mine, err := second.Recent(10, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].RunID != "new" {
		t.Fatalf("current run = %+v", mine)
	}

	all, err := second.Recent(10, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	for _, e := range all {
		if e.RunID != "old" {
			continue
		}
		if e.State != "failed" || e.Error != abandonedReason || e.EndedAt == nil {
			t.Errorf("old run watch not closed out: %+v", e)
		}
	}
}

// ─── Observer ────────────────────────────────────────────────────────────────

func TestObserveWatch_FollowsManager(t *testing.T) {
	s := newTestStore(t, "run-1")
	m := watch.NewManager(blockingTransport{}, watch.Options{
		LogDir:      t.TempDir(),
		MaxWatches:  4,
		StopTimeout: time.Second,
		DefaultPort: 15702,
		Observer:    s,
	})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	res, err := m.StartStructureWatch(7, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(t.Context(), res.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got, err := s.Get(res.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != "stopped" || got.EndedAt == nil {
		t.Errorf("got %+v, want stopped with end time", got)
	}
	if got.LogPath != res.LogPath {
		t.Errorf("LogPath = %s, want %s", got.LogPath, res.LogPath)
	}
}
