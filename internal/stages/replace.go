package stages

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/state"
)

func finalName(sourcePath string) string {
	dir := filepath.Dir(sourcePath)
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+".mkv")
}

func backupName(sourcePath string) string {
	return sourcePath + ".original.bak"
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Replace performs the crash-safe atomic swap of the uploaded AV1 file
// over the original source: S=source, D=uploaded .av1.mkv, F=final path
// (same directory, original stem + .mkv), B=backup (S + ".original.bak").
// Every step is guarded by existence checks on S/B/D/F so re-invoking this
// function after a crash at any point converges to REPLACED without
// touching an AV1 output that already landed.
func Replace(sourcePath string, item queue.WorkItem, store *state.Store, rep reporter.Reporter) error {
	rec := store.Get(sourcePath)
	if rec == nil || rec.DestPath == "" {
		return store.Set(sourcePath, state.Error, state.WithError("replace", fmt.Errorf("no destination path on record")))
	}

	s := sourcePath
	d := rec.DestPath
	f := finalName(sourcePath)
	b := backupName(sourcePath)

	if err := store.Set(sourcePath, state.Replacing,
		state.WithFinalPath(f), state.WithBackupPath(b)); err != nil {
		return err
	}

	if exists(s) && !exists(b) {
		if err := os.Rename(s, b); err != nil {
			wrapped := fmt.Errorf("replace: rename source to backup: %w (S=%s B=%s D=%s F=%s)", err, s, b, d, f)
			_ = store.Set(sourcePath, state.Error, state.WithError("replace", wrapped))
			return wrapped
		}
	}

	if exists(d) {
		if exists(f) {
			if err := os.Remove(f); err != nil {
				wrapped := fmt.Errorf("replace: remove existing final before swap: %w (B=%s D=%s F=%s)", err, b, d, f)
				_ = store.Set(sourcePath, state.Error, state.WithError("replace", wrapped))
				return wrapped
			}
		}
		if err := os.Rename(d, f); err != nil {
			wrapped := fmt.Errorf("replace: rename av1 output to final: %w (B=%s D=%s F=%s)", err, b, d, f)
			_ = store.Set(sourcePath, state.Error, state.WithError("replace", wrapped))
			return wrapped
		}
	}

	if exists(b) {
		if err := os.Remove(b); err != nil {
			rep.Warning(sourcePath, fmt.Sprintf("replace: could not remove backup %s: %v", b, err))
		}
	}

	if err := store.Set(sourcePath, state.Replaced, state.WithFinalPath(f)); err != nil {
		return err
	}
	rep.Info(sourcePath, fmt.Sprintf("replaced: %s", f))
	return nil
}
