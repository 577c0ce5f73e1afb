package stages

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/state"
	"github.com/kpjobrien/av1shelf/internal/util"
)

// destName builds the sibling destination filename: <stem>.av1.mkv, placed
// alongside the source so the replace stage can later swap it in.
func destName(sourcePath string) string {
	dir := filepath.Dir(sourcePath)
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+".av1.mkv")
}

// Upload copies the encoded output to a sibling of the source file, ready
// for the replace stage to swap in. An existing destination is left alone
// unless OverwriteExisting is set; the file is then marked SKIPPED and the
// local encoded copy is removed.
func Upload(sourcePath string, item queue.WorkItem, cfg *config.Config, store *state.Store, rep reporter.Reporter) error {
	rec := store.Get(sourcePath)
	if rec == nil || rec.OutputPath == "" {
		return store.Set(sourcePath, state.Error, state.WithError("upload", fmt.Errorf("no output path on record")))
	}
	if _, err := os.Stat(rec.OutputPath); os.IsNotExist(err) {
		return store.Set(sourcePath, state.Error, state.WithError("upload", fmt.Errorf("encoded file missing: %s", rec.OutputPath)))
	}

	dest := destName(sourcePath)
	if _, err := os.Stat(dest); err == nil && !cfg.OverwriteExisting {
		rep.Warning(sourcePath, fmt.Sprintf("destination already exists, skipping: %s", dest))
		_ = os.Remove(rec.OutputPath)
		return store.Set(sourcePath, state.Skipped, state.WithReason("destination exists"))
	}

	if err := store.Set(sourcePath, state.Uploading, state.WithDestPath(dest)); err != nil {
		return err
	}

	rep.Info(sourcePath, fmt.Sprintf("uploading to %s", dest))
	if err := copyToDest(rec.OutputPath, dest); err != nil {
		_ = store.Set(sourcePath, state.Error, state.WithError("upload", err))
		return err
	}

	info, err := os.Stat(dest)
	if err != nil {
		_ = store.Set(sourcePath, state.Error, state.WithError("upload", err))
		return err
	}

	if err := store.Set(sourcePath, state.Uploaded, state.WithDestPath(dest)); err != nil {
		return err
	}

	if err := os.Remove(rec.OutputPath); err != nil && !os.IsNotExist(err) {
		rep.Warning(sourcePath, fmt.Sprintf("cleanup of encoded file failed: %v", err))
	}
	rep.Info(sourcePath, fmt.Sprintf("uploaded %s", util.FormatBytes(info.Size())))
	return nil
}

func copyToDest(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
