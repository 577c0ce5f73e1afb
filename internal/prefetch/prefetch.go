// Package prefetch runs the background worker that overlaps network fetch
// with encode: while the orchestrator encodes item K, this worker streams
// items K+1, K+2, ... into staging until the fetch-buffer budget gates it.
package prefetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/control"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/retry"
	"github.com/kpjobrien/av1shelf/internal/stages"
	"github.com/kpjobrien/av1shelf/internal/state"
)

// Worker is the single long-running prefetch task.
type Worker struct {
	run   *queue.Run
	cfg   *config.Config
	store *state.Store
	ctrl  *control.Control
	rep   reporter.Reporter
}

// New constructs a prefetch Worker over a shared run queue.
func New(run *queue.Run, cfg *config.Config, store *state.Store, ctrl *control.Control, rep reporter.Reporter) *Worker {
	return &Worker{run: run, cfg: cfg, store: store, ctrl: ctrl, rep: rep}
}

// Run iterates the queue repeatedly until ctx is cancelled or a pass finds
// no eligible PENDING item left. Each pass fetches every eligible PENDING
// item once; gated items are retried with a capped exponential backoff
// within the same pass rather than deferred to the next. A pass that
// fetches nothing sleeps retry.PassInterval before trying again, giving
// the orchestrator's encodes time to drain the fetch buffer.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		fetchedAny, sawEligible := w.pass(ctx)
		if ctx.Err() != nil || !sawEligible {
			return
		}
		if !fetchedAny {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry.PassInterval):
			}
		}
	}
}

// pass makes one sweep of the queue, returning whether at least one file
// was successfully fetched and whether any eligible PENDING item was seen.
func (w *Worker) pass(ctx context.Context) (fetchedAny, sawEligible bool) {
	for _, item := range w.run.Snapshot() {
		if ctx.Err() != nil {
			return fetchedAny, true
		}
		if w.waitForFetchUnpause(ctx) {
			return fetchedAny, true
		}
		if w.ctrl.ShouldSkip(item.SourcePath) {
			continue
		}

		rec := w.store.Get(item.SourcePath)
		if rec != nil && rec.Status != state.Pending {
			continue
		}

		sawEligible = true
		if w.fetchWithGateRetry(ctx, item) {
			fetchedAny = true
		}
	}
	return fetchedAny, sawEligible
}

// waitForFetchUnpause blocks until fetch-pause clears or ctx is
// cancelled, returning true only on cancellation.
func (w *Worker) waitForFetchUnpause(ctx context.Context) bool {
	for w.ctrl.IsFetchPaused() {
		select {
		case <-ctx.Done():
			return true
		case <-time.After(2 * time.Second):
		}
	}
	return false
}

// fetchWithGateRetry retries a single gated attempt with capped
// exponential backoff so one stuck item does not stall the rest of the
// pass indefinitely; a non-gate error is logged and, since Fetch has
// already marked the item ERROR, later passes skip it.
func (w *Worker) fetchWithGateRetry(ctx context.Context, item queue.WorkItem) bool {
	b := backoff.WithContext(retry.GateBackoff(), ctx)
	succeeded := false

	op := func() error {
		err := stages.Fetch(item.SourcePath, item, w.cfg.StagingDir, w.cfg, w.store, w.rep)
		if err == stages.ErrGated {
			return err
		}
		if err != nil {
			w.rep.Error(item.SourcePath, err.Error())
			succeeded = false
			return nil // stop retrying; a real error is not gate-retriable
		}
		succeeded = true
		return nil
	}

	_ = backoff.Retry(op, b)
	return succeeded
}
