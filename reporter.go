// Package av1shelf re-exports the internal Reporter interface and
// associated types as aliases. Pipeline.Run does not accept a Reporter;
// callers receive events through an EventHandler.

package av1shelf

import "github.com/kpjobrien/av1shelf/internal/reporter"

// Reporter defines the interface for progress reporting during a run.
type Reporter = reporter.Reporter

// NullReporter is a no-op reporter that discards all updates.
type NullReporter = reporter.NullReporter

// FileOutcome summarizes one file's completion of a stage.
type FileOutcome = reporter.FileOutcome

// BatchSummary contains run-wide progress information.
type BatchSummary = reporter.BatchSummary
