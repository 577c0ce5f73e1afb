package stages

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/control"
	"github.com/kpjobrien/av1shelf/internal/ffprobe"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/state"
	"github.com/kpjobrien/av1shelf/internal/util"
)

// EncodeDir is the encoded-output subdirectory name under staging.
const EncodeDir = "encoded"

// remuxExtensions is the fixed set of containers known to confuse ffmpeg's
// seeking/timestamp handling closely enough that a stream-copy remux to
// .mkv first is cheaper than debugging the direct encode.
var remuxExtensions = map[string]bool{
	".m2ts": true, ".avi": true, ".wmv": true, ".ts": true,
	".m2v": true, ".vob": true, ".mpg": true, ".mpeg": true, ".mp4": true,
}

// buildFFmpegArgs constructs the NVENC AV1 ffmpeg command line, following
// the same declarative arg-list-building shape as any other codec command
// in this codebase: a fixed prefix, then conditional extensions.
func buildFFmpegArgs(inputPath, outputPath string, item queue.WorkItem, cfg *config.Config, params config.EncodeParams) []string {
	pixFmt := cfg.PixelFormatSDR
	if item.HDR {
		pixFmt = cfg.PixelFormatHDR
	}

	args := []string{
		"-y",
		"-i", inputPath,
		"-map", "0",
		"-c:v", cfg.VideoCodec,
		"-cq", strconv.Itoa(params.CQ),
		"-preset", params.Preset,
		"-tune", "hq",
		"-rc", "vbr",
		"-b:v", "0",
		"-pix_fmt", pixFmt,
	}

	if params.Multipass != "disabled" {
		args = append(args, "-multipass", params.Multipass)
	}
	if params.Lookahead > 0 {
		args = append(args, "-rc-lookahead", strconv.Itoa(params.Lookahead))
	}

	args = append(args, "-spatial-aq", "1")
	if params.ContentType == "movie" {
		args = append(args, "-temporal-aq", "1")
	}

	if params.MaxRate != "" {
		args = append(args, "-maxrate", params.MaxRate)
	}
	if params.BufSize != "" {
		args = append(args, "-bufsize", params.BufSize)
	}

	if item.HDR {
		args = append(args,
			"-color_primaries", "bt2020",
			"-color_trc", "smpte2084",
			"-colorspace", "bt2020nc",
		)
	}

	args = append(args, audioArgs(item, cfg)...)
	args = append(args, "-c:s", "copy")
	args = append(args, outputPath)
	return args
}

// audioArgs resolves per-stream audio codec args under "copy" or "smart"
// mode. Smart mode transcodes lossless tracks to E-AC3 (a format every
// playback target actually supports) and copies everything else.
func audioArgs(item queue.WorkItem, cfg *config.Config) []string {
	if cfg.AudioMode == "copy" || len(item.AudioStreams) == 0 {
		return []string{"-c:a", "copy"}
	}

	var args []string
	for i, a := range item.AudioStreams {
		codec := strings.ToLower(strings.TrimSpace(a.Codec))
		lossless := a.Lossless || cfg.LosslessAudioCodecs[codec]
		streamSel := fmt.Sprintf("-c:a:%d", i)
		if !lossless {
			args = append(args, streamSel, "copy")
			continue
		}
		bitrate := cfg.AudioEAC3StereoBitrate
		if a.Channels > 2 {
			bitrate = cfg.AudioEAC3SurroundBitrate
		}
		args = append(args, streamSel, "eac3", fmt.Sprintf("-b:a:%d", i), bitrate)
	}
	return args
}

// remuxToMKV stream-copies input into a sibling .remux.mkv file, for
// containers whose seeking/timestamp behavior is unreliable under direct
// NVENC encode.
func remuxToMKV(inputPath string, rep reporter.Reporter) (string, error) {
	remuxed := inputPath + ".remux.mkv"
	rep.Info(inputPath, "remuxing to mkv before encode")
	cmd := exec.Command("ffmpeg", "-y", "-i", inputPath, "-map", "0", "-c", "copy", remuxed)
	out, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(remuxed)
		return "", fmt.Errorf("remux: %w: %s", err, lastLines(string(out), 5))
	}
	return remuxed, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// Encode runs the fetched local file through ffmpeg to produce an AV1/MKV
// output, applying any live "gentle" CQ/preset override, then performs
// size- and duration-sanity checks (warning-only — neither blocks the
// ENCODING->ENCODED transition).
func Encode(sourcePath string, item queue.WorkItem, stagingDir string, cfg *config.Config, store *state.Store, ctrl *control.Control, rep reporter.Reporter) error {
	rec := store.Get(sourcePath)
	if rec == nil || rec.LocalPath == "" {
		return store.Set(sourcePath, state.Error, state.WithError("encode", fmt.Errorf("no local path on record")))
	}
	localInput := rec.LocalPath
	if _, err := os.Stat(localInput); os.IsNotExist(err) {
		return store.Set(sourcePath, state.Error, state.WithError("encode", fmt.Errorf("local file missing: %s", localInput)))
	}

	encodeInput := localInput
	var remuxedPath string
	if remuxExtensions[strings.ToLower(filepath.Ext(localInput))] {
		p, err := remuxToMKV(localInput, rep)
		if err != nil {
			_ = store.Set(sourcePath, state.Error, state.WithError("encode", err))
			return err
		}
		remuxedPath = p
		encodeInput = p
	}

	encodeDir := filepath.Join(stagingDir, EncodeDir)
	if err := os.MkdirAll(encodeDir, 0o755); err != nil {
		return err
	}
	outName := strings.TrimSuffix(item.Filename, filepath.Ext(item.Filename)) + ".mkv"
	outputPath := filepath.Join(encodeDir, util.HashPrefix(sourcePath)+"_"+outName)

	if err := store.Set(sourcePath, state.Encoding, state.WithOutputPath(outputPath)); err != nil {
		return err
	}

	params := cfg.ResolveEncodeParams(item.LibraryType, item.ResolutionClass, item.HDR)
	if ctrl != nil {
		if override, ok := ctrl.GentleOverride(sourcePath, item.Filename); ok {
			params.CQ = control.ResolveCQ(params.CQ, override)
			params.Preset = override.PresetOr(params.Preset)
		}
	}

	rep.Info(sourcePath, fmt.Sprintf("encoding %s | %s | HDR:%v | CQ:%d preset:%s multipass:%s",
		item.LibraryType, item.ResolutionClass, item.HDR, params.CQ, params.Preset, params.Multipass))

	args := buildFFmpegArgs(encodeInput, outputPath, item, cfg, params)
	start := time.Now()
	cmd := exec.Command("ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	cleanupIntermediates := func() {
		if remuxedPath != "" {
			_ = os.Remove(remuxedPath)
		}
	}

	if err != nil {
		cleanupIntermediates()
		_ = os.Remove(outputPath)
		wrapped := fmt.Errorf("ffmpeg: %w: %s", err, lastLines(string(out), 5))
		_ = store.Set(sourcePath, state.Error, state.WithError("encode", wrapped))
		return wrapped
	}

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		cleanupIntermediates()
		wrapped := fmt.Errorf("encode: output not created: %w", err)
		_ = store.Set(sourcePath, state.Error, state.WithError("encode", wrapped))
		return wrapped
	}
	inInfo, err := os.Stat(localInput)
	if err != nil {
		cleanupIntermediates()
		return err
	}
	outputSize := outInfo.Size()
	inputSize := inInfo.Size()

	if float64(outputSize) > float64(inputSize)*1.1 {
		rep.Warning(sourcePath, fmt.Sprintf("output larger than input: %s > %s", util.FormatBytes(outputSize), util.FormatBytes(inputSize)))
	}
	if item.DurationSeconds > 0 {
		if outDur, err := ffprobe.Duration(outputPath); err == nil {
			if diff := item.DurationSeconds - outDur; diff > cfg.VerifyDurationToleranceSecs || -diff > cfg.VerifyDurationToleranceSecs {
				rep.Warning(sourcePath, fmt.Sprintf("duration mismatch: input=%.1fs output=%.1fs", item.DurationSeconds, outDur))
			}
		}
	}

	saved := inputSize - outputSize
	ratio := 0.0
	if inputSize > 0 {
		ratio = (1 - float64(outputSize)/float64(inputSize)) * 100
	}
	rep.FileComplete(sourcePath, reporter.FileOutcome{Stage: "encode", Saved: saved, Ratio: ratio, Elapsed: elapsed})

	if err := store.Set(sourcePath, state.Encoded,
		state.WithEncodeResult(outputPath, outputSize, inputSize, saved, ratio, elapsed.Seconds())); err != nil {
		return err
	}

	cleanupIntermediates()
	if err := os.Remove(localInput); err != nil && !os.IsNotExist(err) {
		rep.Warning(sourcePath, fmt.Sprintf("cleanup of fetched file failed: %v", err))
	}

	return nil
}
