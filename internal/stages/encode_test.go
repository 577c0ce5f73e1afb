package stages

import (
	"strings"
	"testing"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/report"
)

func TestBuildFFmpegArgsAppliesHDRColorMetadataAndMultipass(t *testing.T) {
	cfg := config.New("/staging", "")
	item := queue.WorkItem{HDR: true, ResolutionClass: config.Res4K, LibraryType: "movie"}
	params := cfg.ResolveEncodeParams(item.LibraryType, item.ResolutionClass, item.HDR)

	args := buildFFmpegArgs("/in.mkv", "/out.mkv", item, cfg, params)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-color_primaries bt2020") {
		t.Fatalf("expected HDR color metadata, got: %s", joined)
	}
	if !strings.Contains(joined, "-multipass fullres") {
		t.Fatalf("expected fullres multipass for 4K, got: %s", joined)
	}
	if !strings.Contains(joined, "-temporal-aq 1") {
		t.Fatalf("expected temporal-aq for movie content, got: %s", joined)
	}
}

func TestBuildFFmpegArgsOmitsTemporalAQForSeries(t *testing.T) {
	cfg := config.New("/staging", "")
	item := queue.WorkItem{ResolutionClass: config.Res1080p, LibraryType: "series"}
	params := cfg.ResolveEncodeParams(item.LibraryType, item.ResolutionClass, item.HDR)

	args := buildFFmpegArgs("/in.mkv", "/out.mkv", item, cfg, params)
	joined := strings.Join(args, " ")

	if strings.Contains(joined, "-temporal-aq") {
		t.Fatalf("series content should not set temporal-aq, got: %s", joined)
	}
}

func TestAudioArgsSmartModeTranscodesLosslessOnly(t *testing.T) {
	cfg := config.New("/staging", "")
	cfg.AudioMode = "smart"
	item := queue.WorkItem{AudioStreams: []report.AudioStream{
		{Codec: "flac", Channels: 6},
		{Codec: "aac", Channels: 2},
	}}

	args := audioArgs(item, cfg)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-c:a:0 eac3") || !strings.Contains(joined, "-b:a:0 640k") {
		t.Fatalf("expected lossless stream 0 transcoded to surround eac3, got: %s", joined)
	}
	if !strings.Contains(joined, "-c:a:1 copy") {
		t.Fatalf("expected lossy stream 1 copied, got: %s", joined)
	}
}

func TestAudioArgsCopyModeIgnoresStreamDetail(t *testing.T) {
	cfg := config.New("/staging", "")
	cfg.AudioMode = "copy"
	item := queue.WorkItem{AudioStreams: []report.AudioStream{{Codec: "flac", Channels: 8}}}

	args := audioArgs(item, cfg)
	if strings.Join(args, " ") != "-c:a copy" {
		t.Fatalf("expected bare copy in copy mode, got: %v", args)
	}
}

func TestRemuxExtensionsMatchSpecSet(t *testing.T) {
	want := []string{".m2ts", ".avi", ".wmv", ".ts", ".m2v", ".vob", ".mpg", ".mpeg", ".mp4"}
	for _, ext := range want {
		if !remuxExtensions[ext] {
			t.Errorf("expected %s to require remux-first", ext)
		}
	}
	if remuxExtensions[".mkv"] {
		t.Error(".mkv should not require remux")
	}
}
