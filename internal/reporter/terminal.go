package reporter

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/kpjobrien/av1shelf/internal/util"
)

const labelWidth = 16

// TerminalReporter prints colorized, human-oriented progress to stdout.
type TerminalReporter struct {
	mu      sync.Mutex
	verbose bool
	bar     *progressbar.ProgressBar

	cyan    *color.Color
	green   *color.Color
	yellow  *color.Color
	red     *color.Color
	magenta *color.Color
	bold    *color.Color
	dim     *color.Color
}

// NewTerminalReporter builds a reporter; verbose additionally prints INFO
// lines that a non-verbose run would suppress in favor of the progress
// bar alone.
func NewTerminalReporter(verbose bool) *TerminalReporter {
	return &TerminalReporter{
		verbose: verbose,
		cyan:    color.New(color.FgCyan),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow),
		red:     color.New(color.FgRed),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
}

func (t *TerminalReporter) printLabel(label, value string) {
	fmt.Printf("%-*s %s\n", labelWidth, label+":", value)
}

func (t *TerminalReporter) finishProgress() {
	if t.bar != nil {
		_ = t.bar.Finish()
		t.bar = nil
		fmt.Println()
	}
}

func short(path string) string {
	return filepath.Base(path)
}

// Info logs routine progress; suppressed unless verbose.
func (t *TerminalReporter) Info(path, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishProgress()
	if !t.verbose {
		return
	}
	t.cyan.Print("  info  ")
	if path != "" {
		t.dim.Printf("[%s] ", short(path))
	}
	fmt.Println(msg)
}

func (t *TerminalReporter) Warning(path, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishProgress()
	t.yellow.Print("  warn  ")
	if path != "" {
		t.dim.Printf("[%s] ", short(path))
	}
	fmt.Println(msg)
}

func (t *TerminalReporter) Error(path, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishProgress()
	t.red.Print("  error ")
	if path != "" {
		t.dim.Printf("[%s] ", short(path))
	}
	fmt.Println(msg)
}

func (t *TerminalReporter) Progress(path, stage string, fraction float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bar == nil {
		t.bar = progressbar.NewOptions64(100,
			progressbar.OptionSetDescription(fmt.Sprintf("%s %s", stage, short(path))),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = t.bar.Set(int(fraction * 100))
}

func (t *TerminalReporter) FileComplete(path string, outcome FileOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishProgress()
	t.green.Print("  done  ")
	t.dim.Printf("[%s] ", short(path))
	fmt.Printf("%s: saved %s (%.1f%%) in %s\n",
		outcome.Stage, util.FormatBytes(outcome.Saved), outcome.Ratio, util.FormatDuration(outcome.Elapsed))
}

func (t *TerminalReporter) BatchSummary(s BatchSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishProgress()
	t.bold.Println("progress")
	t.printLabel("Total", fmt.Sprintf("%d", s.Total))
	t.printLabel("Completed", fmt.Sprintf("%d", s.Completed))
	t.printLabel("Skipped", fmt.Sprintf("%d", s.Skipped))
	t.printLabel("Errors", fmt.Sprintf("%d", s.Errors))
	t.printLabel("Saved", util.FormatBytes(s.BytesSaved))
	if s.ETA > 0 {
		t.printLabel("ETA", util.FormatDuration(s.ETA))
	}
}
