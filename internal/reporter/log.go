package reporter

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/kpjobrien/av1shelf/internal/util"
)

// LogReporter writes plain-text timestamped lines to the run's log file.
// Progress is throttled to coarse 5%-buckets so a multi-hour encode does
// not flood the log.
type LogReporter struct {
	w                  io.Writer
	mu                 sync.Mutex
	lastProgressBucket int
}

// NewLogReporter creates a reporter writing to w.
func NewLogReporter(w io.Writer) *LogReporter {
	return &LogReporter{w: w, lastProgressBucket: -1}
}

func (r *LogReporter) log(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(r.w, "%s [%s] %s\n", timestamp, level, msg)
}

func (r *LogReporter) Info(path, msg string) {
	if path == "" {
		r.log("INFO", "%s", msg)
		return
	}
	r.log("INFO", "[%s] %s", filepath.Base(path), msg)
}

func (r *LogReporter) Warning(path, msg string) {
	r.log("WARN", "[%s] %s", filepath.Base(path), msg)
}

func (r *LogReporter) Error(path, msg string) {
	r.log("ERROR", "[%s] %s", filepath.Base(path), msg)
}

func (r *LogReporter) Progress(path, stage string, fraction float64) {
	bucket := int(fraction * 20) // 5% buckets, capped below
	if bucket > 20 {
		bucket = 20
	}
	r.mu.Lock()
	last := r.lastProgressBucket
	if bucket == last {
		r.mu.Unlock()
		return
	}
	r.lastProgressBucket = bucket
	r.mu.Unlock()
	r.log("INFO", "[%s] %s %d%%", filepath.Base(path), stage, bucket*5)
}

func (r *LogReporter) FileComplete(path string, outcome FileOutcome) {
	r.mu.Lock()
	r.lastProgressBucket = -1
	r.mu.Unlock()
	r.log("INFO", "[%s] %s complete: saved %s (%.1f%%) in %s",
		filepath.Base(path), outcome.Stage, util.FormatBytes(outcome.Saved), outcome.Ratio, util.FormatDuration(outcome.Elapsed))
}

func (r *LogReporter) BatchSummary(s BatchSummary) {
	r.log("INFO", "progress: %d/%d completed, %d skipped, %d errors, %s saved",
		s.Completed, s.Total, s.Skipped, s.Errors, util.FormatBytes(s.BytesSaved))
}
