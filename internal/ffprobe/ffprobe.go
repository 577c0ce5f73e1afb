// Package ffprobe wraps the ffprobe binary for the one query the pipeline
// needs: a file's duration, used by the verify stage and by the encode
// stage's post-encode sanity check.
package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// probeTimeout bounds how long the pipeline will wait on a stuck ffprobe
// invocation (a hung NAS mount, a corrupt file) before giving up.
const probeTimeout = 30 * time.Second

type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the duration, in seconds, of the media file at path.
func Duration(path string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %s: %w", path, err)
	}

	var pf probeFormat
	if err := json.Unmarshal(out, &pf); err != nil {
		return 0, fmt.Errorf("ffprobe: parse output for %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(pf.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: duration %q for %s: %w", pf.Format.Duration, path, err)
	}
	return d, nil
}

// IsAvailable reports whether the ffprobe binary can be located on PATH.
func IsAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}
