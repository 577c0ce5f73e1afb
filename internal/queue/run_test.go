package queue

import (
	"path/filepath"
	"testing"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/report"
	"github.com/kpjobrien/av1shelf/internal/state"
)

func newRunTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.New(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	return s
}

type stubTierCfg struct{}

func (stubTierCfg) AssignTier(codec, resolution string, bitrateKbps int) (int, string) {
	return 0, "Other"
}

func testReport() *report.Report {
	return &report.Report{Files: []report.Entry{
		{FilePath: "/nas/A.mkv", Filename: "A.mkv", FileSizeBytes: 1 << 30, Video: report.Video{Codec: "h264", CodecRaw: "h264", ResolutionClass: config.Res1080p}},
		{FilePath: "/nas/B.mkv", Filename: "B.mkv", FileSizeBytes: 2 << 30, Video: report.Video{Codec: "hevc", CodecRaw: "hevc", ResolutionClass: config.Res1080p}},
	}}
}

func TestInjectPriorityPathsPrependsUnknownPath(t *testing.T) {
	rpt := testReport()
	run := NewRun([]WorkItem{{SourcePath: "/nas/A.mkv"}}, rpt)

	run.InjectPriorityPaths([]string{"/nas/B.mkv"}, stubTierCfg{})

	items := run.Snapshot()
	if len(items) != 2 || items[0].SourcePath != "/nas/B.mkv" {
		t.Fatalf("expected B prepended, got %+v", items)
	}
}

func TestInjectPriorityPathsIsNoOpWhenAlreadyQueued(t *testing.T) {
	rpt := testReport()
	run := NewRun([]WorkItem{{SourcePath: "/nas/A.mkv"}, {SourcePath: "/nas/B.mkv"}}, rpt)

	run.InjectPriorityPaths([]string{"/NAS/b.mkv"}, stubTierCfg{})

	items := run.Snapshot()
	if len(items) != 2 || items[0].SourcePath != "/nas/A.mkv" {
		t.Fatalf("expected no reordering for already-queued path, got %+v", items)
	}
}

func TestInjectPriorityPathsIgnoresPathAbsentFromReport(t *testing.T) {
	rpt := testReport()
	run := NewRun([]WorkItem{{SourcePath: "/nas/A.mkv"}}, rpt)

	run.InjectPriorityPaths([]string{"/nas/ghost.mkv"}, stubTierCfg{})

	if run.Len() != 1 {
		t.Fatalf("expected unknown path to be ignored, got len %d", run.Len())
	}
}

type stubOverrideApplier struct {
	apply func([]WorkItem, *state.Store) ([]WorkItem, error)
}

func (s stubOverrideApplier) ApplyQueueOverrides(items []WorkItem, store *state.Store) ([]WorkItem, error) {
	return s.apply(items, store)
}

func TestApplyOverridesReplacesQueueInPlace(t *testing.T) {
	store := newRunTestStore(t)
	run := NewRun([]WorkItem{{SourcePath: "/nas/A.mkv"}, {SourcePath: "/nas/B.mkv"}}, testReport())

	ctrl := stubOverrideApplier{apply: func(items []WorkItem, s *state.Store) ([]WorkItem, error) {
		// Drop the first item, keep the rest, simulating a skip applied.
		return items[1:], nil
	}}

	if err := run.ApplyOverrides(ctrl, store); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if got := run.Snapshot(); len(got) != 1 || got[0].SourcePath != "/nas/B.mkv" {
		t.Fatalf("expected queue trimmed to B, got %+v", got)
	}
}
