// Package stages implements the five stage workers — fetch, encode,
// upload, verify, replace — as pure functions over (path, item, staging
// dir, config, store). Each stage owns a disjoint filesystem region and
// updates the store before returning on every path, success or failure,
// except a fetch blocked by a pre-flight gate, which changes no state.
package stages

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/state"
	"github.com/kpjobrien/av1shelf/internal/util"
)

// ErrGated is returned by Fetch when a pre-flight budget/space gate blocks
// the attempt. It is not a failure: the caller should retry later.
var ErrGated = fmt.Errorf("stages: blocked by staging gate")

// FetchDir is the fetch-buffer subdirectory name under staging.
const FetchDir = "fetch"

// stagingUsageFn and freeSpaceFn are the teacher-idiom seams that let tests
// substitute deterministic values instead of hitting the real filesystem.
var (
	stagingUsageFn = util.DirUsage
	freeSpaceFn    = util.AvailableSpace
)

// Fetch copies the source file into local staging, subject to three
// pre-flight budget gates, claiming the FETCHING status atomically so at
// most one worker ever copies a given source path at once.
func Fetch(sourcePath string, item queue.WorkItem, stagingDir string, cfg *config.Config, store *state.Store, rep reporter.Reporter) error {
	fetchDir := filepath.Join(stagingDir, FetchDir)
	if err := os.MkdirAll(fetchDir, 0o755); err != nil {
		return err
	}
	localPath := filepath.Join(fetchDir, util.HashPrefix(sourcePath)+"_"+item.Filename)

	stagingUsed, err := stagingUsageFn(stagingDir)
	if err != nil {
		return err
	}
	if stagingUsed+item.FileSizeBytes > cfg.MaxStagingBytes {
		rep.Warning(sourcePath, fmt.Sprintf("staging full (%s used), waiting", util.FormatBytes(stagingUsed)))
		return ErrGated
	}

	free, err := freeSpaceFn(stagingDir)
	if err != nil {
		return err
	}
	if int64(free) < cfg.MinFreeSpaceBytes+item.FileSizeBytes {
		rep.Warning(sourcePath, fmt.Sprintf("insufficient free space (%s), waiting", util.FormatBytes(int64(free))))
		return ErrGated
	}

	fetchUsed, err := stagingUsageFn(fetchDir)
	if err != nil {
		return err
	}
	if fetchUsed+item.FileSizeBytes > cfg.MaxFetchBufferBytes {
		rep.Info(sourcePath, fmt.Sprintf("fetch buffer full (%s), waiting for encodes to drain", util.FormatBytes(fetchUsed)))
		return ErrGated
	}

	if _, err := os.Stat(sourcePath); os.IsNotExist(err) {
		rep.Warning(sourcePath, "source file not found, skipping")
		return store.Set(sourcePath, state.Skipped, state.WithReason("source not found"))
	}

	claimed := false
	err = store.WithLock(sourcePath, func(cur *state.FileRecord) (state.Status, []state.Mutation, bool) {
		if cur != nil && cur.Status == state.Fetching {
			return "", nil, false
		}
		claimed = true
		return state.Fetching, []state.Mutation{state.WithLocalPath(localPath)}, true
	})
	if err != nil {
		return err
	}
	if !claimed {
		return ErrGated
	}

	rep.Info(sourcePath, fmt.Sprintf("fetching %s (%s)", item.Filename, util.FormatBytes(item.FileSizeBytes)))
	if err := copyFile(sourcePath, localPath, cfg.MaxCopyMBps); err != nil {
		_ = store.Set(sourcePath, state.Error, state.WithError("fetch", err))
		_ = os.Remove(localPath)
		return err
	}

	return store.Set(sourcePath, state.Fetched, state.WithLocalPath(localPath))
}

// copyFile performs a straightforward stream copy, optionally rate-limited
// to maxMBps (0 = unlimited) so a single large fetch cannot starve the
// encoder's own NAS bandwidth.
func copyFile(src, dst string, maxMBps float64) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	var w io.Writer = out
	if maxMBps > 0 {
		w = util.NewRateLimitedWriter(out, maxMBps)
	}
	if _, err := io.Copy(w, in); err != nil {
		return err
	}
	return out.Sync()
}
