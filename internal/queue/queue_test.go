package queue

import (
	"path/filepath"
	"testing"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/report"
	"github.com/kpjobrien/av1shelf/internal/state"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.New(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	return s
}

// Scenario 1 from the testable-properties section: three files, one
// already AV1 (skipped), the other two ordered by tier then size.
func TestBuildOrdersByTierThenSize(t *testing.T) {
	rpt := &report.Report{Files: []report.Entry{
		{
			FilePath: "/nas/A.mkv", Filename: "A.mkv", FileSizeBytes: 5 * 1 << 30,
			Video: report.Video{Codec: "h264", CodecRaw: "h264", ResolutionClass: config.Res1080p},
		},
		{
			FilePath: "/nas/B.mkv", Filename: "B.mkv", FileSizeBytes: 40 * 1 << 30,
			OverallBitrateKbps: 30000,
			Video:              report.Video{Codec: "hevc", CodecRaw: "hevc", ResolutionClass: config.Res4K},
		},
		{
			FilePath: "/nas/C.mkv", Filename: "C.mkv", FileSizeBytes: 2 * 1 << 30,
			Video: report.Video{Codec: "av1", CodecRaw: "av1", ResolutionClass: config.Res1080p},
		},
	}}

	cfg := config.New("/staging", "/report.json")
	store := newTestStore(t)

	items, err := Build(rpt, cfg, store)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 queued items (C skipped), got %d", len(items))
	}
	if items[0].SourcePath != "/nas/A.mkv" || items[1].SourcePath != "/nas/B.mkv" {
		t.Fatalf("expected order [A, B] (tier 0 before tier 2), got [%s, %s]",
			items[0].SourcePath, items[1].SourcePath)
	}

	fr := store.Get("/nas/C.mkv")
	if fr == nil || fr.Status != state.Skipped || fr.Reason != "already target codec" {
		t.Fatalf("expected C marked skipped/already target codec, got %+v", fr)
	}
}

func TestBuildSkipsUnknownCodec(t *testing.T) {
	rpt := &report.Report{Files: []report.Entry{
		{FilePath: "/nas/X.mkv", Filename: "X.mkv", Video: report.Video{Codec: "unknown", CodecRaw: "weirdcodec"}},
	}}
	cfg := config.New("/staging", "/report.json")
	store := newTestStore(t)

	items, err := Build(rpt, cfg, store)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no queued items, got %d", len(items))
	}
	fr := store.Get("/nas/X.mkv")
	if fr == nil || fr.Reason != "unknown codec" {
		t.Fatalf("expected X marked skipped/unknown codec, got %+v", fr)
	}
}

// On a resumed run, a record already mid-flight (non-PENDING, non-terminal)
// whose report entry still shows an unknown codec must not be force-skipped
// — SKIPPED is reachable only from PENDING.
func TestBuildDoesNotOverwriteExistingRecordWithUnknownCodec(t *testing.T) {
	rpt := &report.Report{Files: []report.Entry{
		{FilePath: "/nas/X.mkv", Filename: "X.mkv", Video: report.Video{Codec: "unknown", CodecRaw: "weirdcodec"}},
	}}
	cfg := config.New("/staging", "/report.json")
	store := newTestStore(t)
	if err := store.Set("/nas/X.mkv", state.Fetched, state.WithLocalPath("/staging/fetch/X.mkv")); err != nil {
		t.Fatal(err)
	}

	if _, err := Build(rpt, cfg, store); err != nil {
		t.Fatalf("Build: %v", err)
	}

	fr := store.Get("/nas/X.mkv")
	if fr == nil || fr.Status != state.Fetched {
		t.Fatalf("expected existing FETCHED record left untouched, got %+v", fr)
	}
}

func TestBuildExcludesTerminalRecords(t *testing.T) {
	rpt := &report.Report{Files: []report.Entry{
		{FilePath: "/nas/A.mkv", Filename: "A.mkv", Video: report.Video{Codec: "h264", CodecRaw: "h264", ResolutionClass: config.Res1080p}},
	}}
	cfg := config.New("/staging", "/report.json")
	store := newTestStore(t)
	if err := store.Set("/nas/A.mkv", state.Replaced); err != nil {
		t.Fatal(err)
	}

	items, err := Build(rpt, cfg, store)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected already-terminal record excluded, got %d items", len(items))
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	rpt := &report.Report{Files: []report.Entry{
		{FilePath: "/nas/A.mkv", Filename: "A.mkv", FileSizeBytes: 10, Video: report.Video{Codec: "h264", CodecRaw: "h264", ResolutionClass: config.Res1080p}},
		{FilePath: "/nas/B.mkv", Filename: "B.mkv", FileSizeBytes: 20, Video: report.Video{Codec: "h264", CodecRaw: "h264", ResolutionClass: config.Res1080p}},
	}}
	cfg := config.New("/staging", "/report.json")

	items1, err := Build(rpt, cfg, newTestStore(t))
	if err != nil {
		t.Fatal(err)
	}
	items2, err := Build(rpt, cfg, newTestStore(t))
	if err != nil {
		t.Fatal(err)
	}
	for i := range items1 {
		if items1[i].SourcePath != items2[i].SourcePath {
			t.Fatalf("non-deterministic ordering at index %d: %s vs %s", i, items1[i].SourcePath, items2[i].SourcePath)
		}
	}
}
