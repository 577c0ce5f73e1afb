// Package reporter defines the pluggable progress/event sink used by
// every stage worker and the orchestrator. Stage workers speak to this
// interface only; terminal output, the log file, and the metrics endpoint
// are all implementations layered on top of the same calls.
package reporter

import "time"

// FileOutcome summarizes one file's completion of a stage, for reporters
// that want to print or export a one-line result.
type FileOutcome struct {
	Stage   string
	Saved   int64
	Ratio   float64
	Elapsed time.Duration
}

// BatchSummary is the denormalized run-wide snapshot printed at the
// periodic progress tick and at shutdown.
type BatchSummary struct {
	Total     int
	Completed int
	Skipped   int
	Errors    int
	BytesSaved int64
	ETA       time.Duration
}

// Reporter is the sink every stage worker and the orchestrator report
// through. Implementations must be safe for concurrent use: the prefetch
// worker and the orchestrator call it from different goroutines.
type Reporter interface {
	// Info logs routine progress for path (fetch started, encode
	// started, upload complete, ...).
	Info(path, msg string)
	// Warning logs a non-fatal anomaly (size sanity check, duration
	// mismatch) that does not change the file's status.
	Warning(path, msg string)
	// Error logs a stage failure. The caller is responsible for the
	// corresponding state transition; Error is purely observational.
	Error(path, msg string)
	// Progress reports fractional completion of a long-running stage.
	// No stage worker currently calls it.
	Progress(path, stage string, fraction float64)
	// FileComplete reports a file reaching a terminal or near-terminal
	// outcome for one stage.
	FileComplete(path string, outcome FileOutcome)
	// BatchSummary reports the run-wide snapshot.
	BatchSummary(s BatchSummary)
}
