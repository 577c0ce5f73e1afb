package stages

import (
	"fmt"
	"os"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/ffprobe"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/state"
)

// Verify confirms the uploaded destination file exists and, when the
// source duration is known and ffprobe succeeds, matches it within
// tolerance (a failed probe is only a warning), then records the run's
// completion stats for the file's resolution tier.
func Verify(sourcePath string, item queue.WorkItem, cfg *config.Config, store *state.Store, rep reporter.Reporter) error {
	rec := store.Get(sourcePath)
	if rec == nil || rec.DestPath == "" {
		return store.Set(sourcePath, state.Error, state.WithError("verify", fmt.Errorf("no destination path on record")))
	}
	info, err := os.Stat(rec.DestPath)
	if os.IsNotExist(err) {
		wrapped := fmt.Errorf("uploaded file missing: %s", rec.DestPath)
		return store.Set(sourcePath, state.Error, state.WithError("verify", wrapped))
	} else if err != nil {
		return store.Set(sourcePath, state.Error, state.WithError("verify", err))
	}

	if item.DurationSeconds > 0 {
		dur, err := ffprobe.Duration(rec.DestPath)
		if err != nil {
			rep.Warning(sourcePath, fmt.Sprintf("could not probe uploaded file duration: %v", err))
		} else if diff := item.DurationSeconds - dur; diff > cfg.VerifyDurationToleranceSecs || -diff > cfg.VerifyDurationToleranceSecs {
			wrapped := fmt.Errorf("duration mismatch: input=%.1fs uploaded=%.1fs", item.DurationSeconds, dur)
			return store.Set(sourcePath, state.Error, state.WithError("verify", wrapped))
		}
	}

	destSize := info.Size()
	saved := rec.InputSizeBytes - destSize
	if err := store.Set(sourcePath, state.Verified, state.WithVerifyResult(destSize, saved)); err != nil {
		return err
	}

	resKey := config.ResKey(item.ResolutionClass, item.HDR)
	if err := store.AddCompleted(resKey, saved, rec.InputSizeBytes, destSize, rec.EncodeTimeSecs); err != nil {
		return err
	}

	rep.Info(sourcePath, "verified")
	return nil
}
