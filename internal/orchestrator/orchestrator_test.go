package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/control"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/report"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/state"
)

func newOrchTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.New(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	return s
}

func newOrchTestControl(t *testing.T) (*control.Control, string) {
	t.Helper()
	stagingDir := t.TempDir()
	c, err := control.New(stagingDir)
	if err != nil {
		t.Fatalf("control.New: %v", err)
	}
	return c, stagingDir
}

// writePriorityList overwrites priority.json directly in
// <stagingDir>/control since Control exposes no setter — it is a
// read-only view over operator-edited documents.
func writePriorityList(t *testing.T, stagingDir string, paths []string) {
	t.Helper()
	data, err := json.Marshal(struct {
		Paths []string `json:"paths"`
	}{Paths: paths})
	if err != nil {
		t.Fatalf("marshal priority list: %v", err)
	}
	if err := os.WriteFile(filepath.Join(stagingDir, "control", "priority.json"), data, 0o644); err != nil {
		t.Fatalf("write priority.json: %v", err)
	}
}

func newOrchestrator(t *testing.T, items []queue.WorkItem, store *state.Store) *Orchestrator {
	t.Helper()
	run := queue.NewRun(items, &report.Report{})
	ctrl, _ := newOrchTestControl(t)
	cfg := config.New(t.TempDir(), filepath.Join(t.TempDir(), "report.json"))
	return New(run, cfg, store, ctrl, reporter.NullReporter{}, func() bool { return false })
}

func TestSelectNextPrefersReadyToAdvanceOverPending(t *testing.T) {
	store := newOrchTestStore(t)
	_ = store.Set("/nas/A.mkv", state.Pending)
	_ = store.Set("/nas/B.mkv", state.Fetched)

	o := newOrchestrator(t, []queue.WorkItem{
		{SourcePath: "/nas/A.mkv"},
		{SourcePath: "/nas/B.mkv"},
	}, store)

	item, ok := o.selectNext()
	if !ok || item.SourcePath != "/nas/B.mkv" {
		t.Fatalf("expected B (FETCHED) to win over A (PENDING), got %+v ok=%v", item, ok)
	}
}

func TestSelectNextSkipsTerminalItems(t *testing.T) {
	store := newOrchTestStore(t)
	_ = store.Set("/nas/A.mkv", state.Replaced)
	_ = store.Set("/nas/B.mkv", state.Pending)

	o := newOrchestrator(t, []queue.WorkItem{
		{SourcePath: "/nas/A.mkv"},
		{SourcePath: "/nas/B.mkv"},
	}, store)

	item, ok := o.selectNext()
	if !ok || item.SourcePath != "/nas/B.mkv" {
		t.Fatalf("expected terminal A skipped, B selected; got %+v ok=%v", item, ok)
	}
}

func TestSelectNextReturnsFalseWhenQueueExhausted(t *testing.T) {
	store := newOrchTestStore(t)
	_ = store.Set("/nas/A.mkv", state.Replaced)

	o := newOrchestrator(t, []queue.WorkItem{{SourcePath: "/nas/A.mkv"}}, store)

	if _, ok := o.selectNext(); ok {
		t.Fatalf("expected no selectable item")
	}
}

func TestSelectNextJumpsPendingPriorityItemAheadOfPlainPending(t *testing.T) {
	store := newOrchTestStore(t)
	_ = store.Set("/nas/A.mkv", state.Pending)
	_ = store.Set("/nas/B.mkv", state.Pending)

	ctrl, stagingDir := newOrchTestControl(t)
	writePriorityList(t, stagingDir, []string{"/nas/B.mkv"})

	run := queue.NewRun([]queue.WorkItem{
		{SourcePath: "/nas/A.mkv"},
		{SourcePath: "/nas/B.mkv"},
	}, &report.Report{})
	cfg := config.New(t.TempDir(), filepath.Join(t.TempDir(), "report.json"))
	o := New(run, cfg, store, ctrl, reporter.NullReporter{}, func() bool { return false })

	item, ok := o.selectNext()
	if !ok || item.SourcePath != "/nas/B.mkv" {
		t.Fatalf("expected priority-listed B to jump ahead of A, got %+v ok=%v", item, ok)
	}
}

func TestRecoverZombieResetsFetchingToPending(t *testing.T) {
	store := newOrchTestStore(t)
	_ = store.Set("/nas/A.mkv", state.Fetching)

	o := newOrchestrator(t, nil, store)
	o.recoverZombie("/nas/A.mkv")

	rec := store.Get("/nas/A.mkv")
	if rec.Status != state.Pending {
		t.Fatalf("expected Pending, got %v", rec.Status)
	}
}

func TestRecoverZombieKeepsEncodingAsFetchedWhenLocalFilePresent(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "input.mkv")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	store := newOrchTestStore(t)
	_ = store.Set("/nas/A.mkv", state.Encoding, state.WithLocalPath(local))

	o := newOrchestrator(t, nil, store)
	o.recoverZombie("/nas/A.mkv")

	rec := store.Get("/nas/A.mkv")
	if rec.Status != state.Fetched {
		t.Fatalf("expected Fetched when local file present, got %v", rec.Status)
	}
}

func TestRecoverZombieResetsEncodingToPendingWhenLocalFileAbsent(t *testing.T) {
	store := newOrchTestStore(t)
	_ = store.Set("/nas/A.mkv", state.Encoding, state.WithLocalPath("/does/not/exist.mkv"))

	o := newOrchestrator(t, nil, store)
	o.recoverZombie("/nas/A.mkv")

	rec := store.Get("/nas/A.mkv")
	if rec.Status != state.Pending {
		t.Fatalf("expected Pending when local file absent, got %v", rec.Status)
	}
}

func TestRecoverZombieLeavesReplacingAlone(t *testing.T) {
	store := newOrchTestStore(t)
	_ = store.Set("/nas/A.mkv", state.Replacing)

	o := newOrchestrator(t, nil, store)
	o.recoverZombie("/nas/A.mkv")

	rec := store.Get("/nas/A.mkv")
	if rec.Status != state.Replacing {
		t.Fatalf("expected Replacing left untouched for self-recovering protocol, got %v", rec.Status)
	}
}

func TestRunExitsCleanlyWhenQueueEmptyAndPrefetchDead(t *testing.T) {
	store := newOrchTestStore(t)
	run := queue.NewRun(nil, &report.Report{})
	ctrl, _ := newOrchTestControl(t)
	cfg := config.New(t.TempDir(), filepath.Join(t.TempDir(), "report.json"))
	o := New(run, cfg, store, ctrl, reporter.NullReporter{}, func() bool { return false })

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
