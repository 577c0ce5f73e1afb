package stages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/state"
)

func setupReplaceFixture(t *testing.T) (src, dest string, store *state.Store) {
	t.Helper()
	dir := t.TempDir()
	src = filepath.Join(dir, "movie.mp4")
	dest = filepath.Join(dir, "movie.av1.mkv")
	if err := os.WriteFile(src, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("av1"), 0o644); err != nil {
		t.Fatal(err)
	}
	store = newTestStoreStages(t)
	if err := store.Set(src, state.Uploaded, state.WithDestPath(dest)); err != nil {
		t.Fatal(err)
	}
	return src, dest, store
}

func TestReplaceFromCleanStart(t *testing.T) {
	src, _, store := setupReplaceFixture(t)
	item := queue.WorkItem{SourcePath: src, Filename: "movie.mp4"}

	if err := Replace(src, item, store, reporter.NullReporter{}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	rec := store.Get(src)
	if rec == nil || rec.Status != state.Replaced {
		t.Fatalf("expected REPLACED, got %+v", rec)
	}
	final := finalName(src)
	data, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if string(data) != "av1" {
		t.Fatalf("final content = %q, want av1 bytes", data)
	}
	if exists(backupName(src)) {
		t.Fatal("backup should be removed after successful replace")
	}
	if exists(src) {
		t.Fatal("original source path should no longer exist under its own name")
	}
}

func TestReplaceResumesAfterCrashBetweenBackupAndSwap(t *testing.T) {
	src, dest, store := setupReplaceFixture(t)
	b := backupName(src)

	if err := os.Rename(src, b); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(src, state.Replacing, state.WithBackupPath(b), state.WithFinalPath(finalName(src))); err != nil {
		t.Fatal(err)
	}

	item := queue.WorkItem{SourcePath: src, Filename: "movie.mp4"}
	if err := Replace(src, item, store, reporter.NullReporter{}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	final := finalName(src)
	data, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if string(data) != "av1" {
		t.Fatalf("final content = %q, want av1 bytes", data)
	}
	if exists(b) {
		t.Fatal("backup should be cleaned up")
	}
	if exists(dest) {
		t.Fatal("D should have been consumed by the rename to F")
	}
}

func TestReplaceIsIdempotentWhenAlreadyReplaced(t *testing.T) {
	src, _, store := setupReplaceFixture(t)
	item := queue.WorkItem{SourcePath: src, Filename: "movie.mp4"}

	if err := Replace(src, item, store, reporter.NullReporter{}); err != nil {
		t.Fatalf("first Replace: %v", err)
	}
	// Re-invoke exactly as a restart finding status=REPLACING would: S gone,
	// B gone, D gone, F present. Every step should no-op.
	if err := Replace(src, item, store, reporter.NullReporter{}); err != nil {
		t.Fatalf("second Replace: %v", err)
	}
	rec := store.Get(src)
	if rec.Status != state.Replaced {
		t.Fatalf("expected still REPLACED, got %+v", rec)
	}
}
