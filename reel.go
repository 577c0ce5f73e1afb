// Package av1shelf provides a Go library for running the AV1 shelf
// transcoding pipeline: fetch, remux-if-needed, encode, upload, verify,
// and atomically replace, driven from a pre-generated media report and
// resumable across restarts via a durable per-file state file.
//
// Basic usage:
//
//	p, err := av1shelf.New("report.json", "/mnt/staging",
//	    av1shelf.WithAudioMode("smart"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := p.Run(ctx, nil)
package av1shelf

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/control"
	"github.com/kpjobrien/av1shelf/internal/orchestrator"
	"github.com/kpjobrien/av1shelf/internal/prefetch"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/report"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/state"
)

// Pipeline is the main entry point for running a transcoding batch.
type Pipeline struct {
	config *config.Config
}

// Result is the run-wide outcome snapshot.
type Result struct {
	Total      int
	Completed  int
	Skipped    int
	Errors     int
	BytesSaved int64
}

// Option configures the pipeline.
type Option func(*config.Config)

// New creates a Pipeline reading reportPath and staging work under
// stagingDir.
func New(reportPath, stagingDir string, opts ...Option) (*Pipeline, error) {
	cfg := config.New(stagingDir, reportPath)
	cfg.StateFilePath = stagingDir + "/pipeline_state.json"

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{config: cfg}, nil
}

// WithStateFile overrides the default <staging>/pipeline_state.json path.
func WithStateFile(path string) Option {
	return func(c *config.Config) { c.StateFilePath = path }
}

// WithMaxStagingGB caps total staging directory usage.
func WithMaxStagingGB(gb int64) Option {
	return func(c *config.Config) { c.MaxStagingBytes = gb * 1024 * 1024 * 1024 }
}

// WithMaxFetchGB caps the fetch-buffer subdirectory's usage, bounding how
// far the prefetch worker can run ahead of the encoder.
func WithMaxFetchGB(gb int64) Option {
	return func(c *config.Config) { c.MaxFetchBufferBytes = gb * 1024 * 1024 * 1024 }
}

// WithAudioMode sets "copy" or "smart" audio handling.
func WithAudioMode(mode string) Option {
	return func(c *config.Config) { c.AudioMode = mode }
}

// WithNoReplace disables the final atomic replace step: files stop at
// VERIFIED, leaving the original source untouched.
func WithNoReplace() Option {
	return func(c *config.Config) { c.ReplaceOriginal = false }
}

// WithOverwriteExisting allows Upload to overwrite an existing
// destination file instead of skipping.
func WithOverwriteExisting() Option {
	return func(c *config.Config) { c.OverwriteExisting = true }
}

// WithMaxCopyMBps rate-limits the fetch stage's copy throughput.
func WithMaxCopyMBps(mbps float64) Option {
	return func(c *config.Config) { c.MaxCopyMBps = mbps }
}

// Run loads the media report, builds the run queue, and drives the
// prefetch worker and orchestrator concurrently until the queue is
// exhausted or ctx is cancelled. If handler is non-nil, every Reporter
// call except Progress is delivered to it as a typed Event; with a nil
// handler nothing is reported.
func (p *Pipeline) Run(ctx context.Context, handler EventHandler) (*Result, error) {
	rpt, err := report.Load(p.config.ReportPath)
	if err != nil {
		return nil, err
	}

	store, err := state.New(p.config.StateFilePath)
	if err != nil {
		return nil, fmt.Errorf("av1shelf: open state file: %w", err)
	}

	ctrl, err := control.New(p.config.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("av1shelf: init control channel: %w", err)
	}

	items, err := queue.Build(rpt, p.config, store)
	if err != nil {
		return nil, err
	}
	if err := store.SetTotal(len(items)); err != nil {
		return nil, err
	}
	items, err = ctrl.ApplyQueueOverrides(items, store)
	if err != nil {
		return nil, err
	}
	run := queue.NewRun(items, rpt)

	var rep reporter.Reporter = reporter.NullReporter{}
	if handler != nil {
		rep = newEventReporter(handler)
	}

	prefetchCtx, cancelPrefetch := context.WithCancel(ctx)
	defer cancelPrefetch()

	var prefetchAlive int32 = 1
	g, gctx := errgroup.WithContext(prefetchCtx)
	pw := prefetch.New(run, p.config, store, ctrl, rep)
	g.Go(func() error {
		defer atomic.StoreInt32(&prefetchAlive, 0)
		pw.Run(gctx)
		return nil
	})

	orch := orchestrator.New(run, p.config, store, ctrl, rep, func() bool {
		return atomic.LoadInt32(&prefetchAlive) == 1
	})
	runErr := orch.Run(ctx)

	cancelPrefetch()
	_ = g.Wait()

	stats := store.Snapshot()
	result := &Result{
		Total:      stats.Total,
		Completed:  stats.Completed,
		Skipped:    stats.Skipped,
		Errors:     stats.Errors,
		BytesSaved: stats.BytesSaved,
	}
	return result, runErr
}

// eventReporter adapts EventHandler to the internal Reporter interface.
type eventReporter struct {
	handler EventHandler
}

func newEventReporter(handler EventHandler) *eventReporter {
	return &eventReporter{handler: handler}
}

func (r *eventReporter) Info(path, msg string) {
	_ = r.handler(StageEnteredEvent{
		BaseEvent: BaseEvent{EventType: EventTypeStageEntered, Time: NewTimestamp()},
		Path:      path,
		Message:   msg,
	})
}

func (r *eventReporter) Warning(path, msg string) {
	_ = r.handler(WarningEvent{
		BaseEvent: BaseEvent{EventType: EventTypeWarning, Time: NewTimestamp()},
		Path:      path,
		Message:   msg,
	})
}

func (r *eventReporter) Error(path, msg string) {
	_ = r.handler(ErrorEvent{
		BaseEvent: BaseEvent{EventType: EventTypeError, Time: NewTimestamp()},
		Path:      path,
		Message:   msg,
	})
}

func (r *eventReporter) Progress(path, stage string, fraction float64) {}

func (r *eventReporter) FileComplete(path string, outcome reporter.FileOutcome) {
	_ = r.handler(FileCompleteEvent{
		BaseEvent:        BaseEvent{EventType: EventTypeFileComplete, Time: NewTimestamp()},
		Path:             path,
		Stage:            outcome.Stage,
		BytesSaved:       outcome.Saved,
		CompressionRatio: outcome.Ratio,
		ElapsedSeconds:   outcome.Elapsed.Seconds(),
	})
}

func (r *eventReporter) BatchSummary(s reporter.BatchSummary) {
	_ = r.handler(BatchSummaryEvent{
		BaseEvent:  BaseEvent{EventType: EventTypeBatchSummary, Time: NewTimestamp()},
		Total:      s.Total,
		Completed:  s.Completed,
		Skipped:    s.Skipped,
		Errors:     s.Errors,
		BytesSaved: s.BytesSaved,
		ETASeconds: int64(s.ETA.Seconds()),
	})
}
