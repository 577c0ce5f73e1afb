// Package orchestrator drives the main loop: item selection, zombie
// recovery, per-file override application, and the serial
// fetch(inline)/encode/upload/verify/replace advance for one item at a
// time. The prefetch worker runs concurrently, overlapping later items'
// network fetch with the item the orchestrator is currently encoding.
package orchestrator

import (
	"context"
	"os"
	"time"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/control"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/stages"
	"github.com/kpjobrien/av1shelf/internal/state"
)

// progressEvery is how many items pass between progress summaries and
// control-list reapplication, per spec.
const progressEvery = 5

// Orchestrator owns the main processing loop.
type Orchestrator struct {
	run   *queue.Run
	cfg   *config.Config
	store *state.Store
	ctrl  *control.Control
	rep   reporter.Reporter

	// prefetchAlive reports whether the prefetch worker is still running;
	// once it has exited, an empty selection pass means the run is done.
	prefetchAlive func() bool

	itemsSinceSummary int
}

// New constructs an Orchestrator over a shared run queue.
func New(run *queue.Run, cfg *config.Config, store *state.Store, ctrl *control.Control, rep reporter.Reporter, prefetchAlive func() bool) *Orchestrator {
	return &Orchestrator{run: run, cfg: cfg, store: store, ctrl: ctrl, rep: rep, prefetchAlive: prefetchAlive}
}

// Run drives the loop until the queue is exhausted or ctx is cancelled.
// A cancellation lets the current item's stage finish before returning,
// per the spec's graceful-shutdown contract.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if err := o.waitForPause(ctx); err != nil {
			return nil
		}

		o.run.InjectPriorityPaths(o.ctrl.PriorityPaths(), o.cfg)

		o.itemsSinceSummary++
		if o.itemsSinceSummary >= progressEvery {
			o.itemsSinceSummary = 0
			o.printSummary()
			if err := o.run.ApplyOverrides(o.ctrl, o.store); err != nil {
				return err
			}
		}

		item, found := o.selectNext()
		if !found {
			if o.prefetchAlive() {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(1 * time.Second):
				}
				continue
			}
			o.printSummary()
			return nil
		}

		if err := o.advance(ctx, item); err != nil {
			o.rep.Error(item.SourcePath, err.Error())
		}
		o.itemsSinceSummary++

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (o *Orchestrator) waitForPause(ctx context.Context) error {
	for o.ctrl.Pause() == control.PauseAll || o.ctrl.IsEncodePaused() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

// selectNext implements the spec's ordering: terminal items are skipped;
// the first ready-to-advance item wins outright; otherwise the first
// PENDING item is remembered, except a PENDING item on the priority list
// is selected immediately.
func (o *Orchestrator) selectNext() (queue.WorkItem, bool) {
	priority := make(map[string]bool)
	for _, p := range o.ctrl.PriorityPaths() {
		priority[p] = true
	}

	var firstPending *queue.WorkItem
	for _, it := range o.run.Snapshot() {
		rec := o.store.Get(it.SourcePath)
		status := state.Pending
		if rec != nil {
			status = rec.Status
		}
		if status.Terminal() {
			continue
		}
		if status.ReadyToAdvance() {
			return it, true
		}
		if firstPending == nil {
			v := it
			firstPending = &v
		}
		if priority[it.SourcePath] {
			return it, true
		}
	}
	if firstPending != nil {
		return *firstPending, true
	}
	return queue.WorkItem{}, false
}

// advance recovers any zombie mid-flight status, performs an inline fetch
// if the item is still PENDING, then drives it through the remaining
// stages in order, checking for shutdown before each.
func (o *Orchestrator) advance(ctx context.Context, item queue.WorkItem) error {
	o.recoverZombie(item.SourcePath)

	rec := o.store.Get(item.SourcePath)
	status := state.Pending
	if rec != nil {
		status = rec.Status
	}

	if status == state.Pending {
		if ctx.Err() != nil {
			return nil
		}
		if err := stages.Fetch(item.SourcePath, item, o.cfg.StagingDir, o.cfg, o.store, o.rep); err != nil && err != stages.ErrGated {
			return err
		}
		rec = o.store.Get(item.SourcePath)
		if rec == nil {
			return nil
		}
		status = rec.Status
	}

	if status == state.Fetched {
		if ctx.Err() != nil {
			return nil
		}
		if err := stages.Encode(item.SourcePath, item, o.cfg.StagingDir, o.cfg, o.store, o.ctrl, o.rep); err != nil {
			return err
		}
		status = state.Encoded
	}

	if status == state.Encoded {
		if ctx.Err() != nil {
			return nil
		}
		if err := stages.Upload(item.SourcePath, item, o.cfg, o.store, o.rep); err != nil {
			return err
		}
		rec = o.store.Get(item.SourcePath)
		if rec != nil {
			status = rec.Status
		}
	}

	if status == state.Uploaded {
		if ctx.Err() != nil {
			return nil
		}
		if err := stages.Verify(item.SourcePath, item, o.cfg, o.store, o.rep); err != nil {
			return err
		}
		rec = o.store.Get(item.SourcePath)
		if rec != nil {
			status = rec.Status
		}
	}

	if status == state.Verified && o.cfg.ReplaceOriginal {
		if ctx.Err() != nil {
			return nil
		}
		if err := stages.Replace(item.SourcePath, item, o.store, o.rep); err != nil {
			return err
		}
	}

	return nil
}

// recoverZombie demotes an in-progress status left behind by a prior
// crash to the nearest safely-restartable prior stage: if the artifact
// that stage produces is still present on disk, the item resumes from
// the following stage; otherwise it is reset all the way to PENDING so
// fetch starts over.
func (o *Orchestrator) recoverZombie(sourcePath string) {
	rec := o.store.Get(sourcePath)
	if rec == nil {
		return
	}
	switch rec.Status {
	case state.Fetching:
		_ = o.store.Set(sourcePath, state.Pending)
	case state.Encoding:
		if rec.LocalPath != "" && fileExists(rec.LocalPath) {
			_ = o.store.Set(sourcePath, state.Fetched)
		} else {
			_ = o.store.Set(sourcePath, state.Pending)
		}
	case state.Uploading:
		if rec.OutputPath != "" && fileExists(rec.OutputPath) {
			_ = o.store.Set(sourcePath, state.Encoded)
		} else if rec.LocalPath != "" && fileExists(rec.LocalPath) {
			_ = o.store.Set(sourcePath, state.Fetched)
		} else {
			_ = o.store.Set(sourcePath, state.Pending)
		}
	// Replacing is recovered by simply re-invoking the replace protocol,
	// which is idempotent from any partial-completion point.
	case state.Replacing:
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// printSummary reports the run-wide progress snapshot with a tier-aware
// ETA: for each not-yet-done item, look up the per-resolution-class
// average encode time, falling back to the overall average when fewer
// than two samples exist for that class.
func (o *Orchestrator) printSummary() {
	stats := o.store.Snapshot()
	items := o.run.Snapshot()

	var overallTotalSecs float64
	var overallCount int
	for _, t := range stats.TierStats {
		overallTotalSecs += t.TotalEncodeTimeSecs
		overallCount += t.Completed
	}
	overallAvg := 0.0
	if overallCount > 0 {
		overallAvg = overallTotalSecs / float64(overallCount)
	}

	var eta time.Duration
	for _, it := range items {
		rec := o.store.Get(it.SourcePath)
		if rec != nil && rec.Status.Terminal() {
			continue
		}
		resKey := config.ResKey(it.ResolutionClass, it.HDR)
		tier := o.store.TierStatsFor(resKey)
		avg, enough := tier.AverageEncodeSecs()
		if !enough {
			avg = overallAvg
		}
		eta += time.Duration(avg) * time.Second
	}

	o.rep.BatchSummary(reporter.BatchSummary{
		Total:      stats.Total,
		Completed:  stats.Completed,
		Skipped:    stats.Skipped,
		Errors:     stats.Errors,
		BytesSaved: stats.BytesSaved,
		ETA:        eta,
	})
}
