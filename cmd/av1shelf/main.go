// Package main provides the CLI entry point for av1shelf.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/control"
	"github.com/kpjobrien/av1shelf/internal/logging"
	"github.com/kpjobrien/av1shelf/internal/orchestrator"
	"github.com/kpjobrien/av1shelf/internal/prefetch"
	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/report"
	"github.com/kpjobrien/av1shelf/internal/reporter"
	"github.com/kpjobrien/av1shelf/internal/state"
)

const (
	appName    = "av1shelf"
	appVersion = "0.1.0"
)

// cliArgs holds the parsed command-line arguments.
type cliArgs struct {
	reportPath  string
	stagingDir  string
	stateFile   string
	configPath  string
	resume      bool
	dryRun      bool
	noReplace   bool
	audioMode   string
	maxStaging  int64
	maxFetch    int64
	tier        string
	verbose     bool
	noLog       bool
	metricsAddr string
}

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Printf)); err != nil {
		log.Printf("maxprocs: %v", err)
	}
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	var a cliArgs

	fs := flag.NewFlagSet(appName, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `%s - crash-safe resumable AV1 transcoding pipeline

Usage:
  %s --report PATH [options]

Required:
  --report PATH          Path to the media report JSON

Options:
  --staging PATH         Staging directory for fetched/encoded work (default: ./staging)
  --state-file PATH      Path to the durable state file (default: <staging>/pipeline_state.json)
  --config PATH          Optional TOML config file overlaying defaults
  --resume               Resume a previous run from --state-file
  --dry-run              Build and print the queue without processing
  --no-replace           Stop at VERIFIED; never replace the original on disk
  --audio {copy,smart}   Audio handling mode (default: smart)
  --max-staging-gb N     Cap total staging directory usage, in GB
  --max-fetch-gb N       Cap the prefetch buffer's usage, in GB
  --tier NAME            Process only work items assigned to this priority tier
  --metrics-addr ADDR    Serve Prometheus metrics on ADDR (e.g. :9090)
  -v, --verbose          Enable verbose logging
  --no-log               Disable file logging
`, appName, appName)
	}

	fs.StringVar(&a.reportPath, "report", "", "Path to the media report JSON")
	fs.StringVar(&a.stagingDir, "staging", "staging", "Staging directory")
	fs.StringVar(&a.stateFile, "state-file", "", "Path to the durable state file")
	fs.StringVar(&a.configPath, "config", "", "Optional TOML config overlay")
	fs.BoolVar(&a.resume, "resume", false, "Resume a previous run")
	fs.BoolVar(&a.dryRun, "dry-run", false, "Build and print the queue without processing")
	fs.BoolVar(&a.noReplace, "no-replace", false, "Never replace the original file")
	fs.StringVar(&a.audioMode, "audio", "smart", "Audio handling mode: copy or smart")
	fs.Int64Var(&a.maxStaging, "max-staging-gb", 0, "Cap total staging usage in GB")
	fs.Int64Var(&a.maxFetch, "max-fetch-gb", 0, "Cap fetch buffer usage in GB")
	fs.StringVar(&a.tier, "tier", "", "Process only this priority tier")
	fs.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&a.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&a.verbose, "v", false, "Enable verbose logging")
	fs.BoolVar(&a.noLog, "no-log", false, "Disable file logging")

	if err := fs.Parse(argv); err != nil {
		return err
	}

	if a.reportPath == "" {
		fs.Usage()
		return fmt.Errorf("--report is required")
	}
	if _, err := os.Stat(a.reportPath); err != nil {
		return fmt.Errorf("report not found: %s", a.reportPath)
	}

	logger, err := logging.Setup(logging.DefaultLogDir(), a.verbose, a.noLog, os.Args)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	if logger != nil {
		defer func() { _ = logger.Close() }()
	}

	cfg := config.New(a.stagingDir, a.reportPath)
	if a.stateFile != "" {
		cfg.StateFilePath = a.stateFile
	} else {
		cfg.StateFilePath = a.stagingDir + "/pipeline_state.json"
	}
	if a.configPath != "" {
		if err := cfg.LoadTOML(a.configPath); err != nil {
			return fmt.Errorf("failed to load config overlay: %w", err)
		}
	}
	if a.noReplace {
		cfg.ReplaceOriginal = false
	}
	if a.audioMode != "" {
		cfg.AudioMode = a.audioMode
	}
	if a.maxStaging > 0 {
		cfg.MaxStagingBytes = a.maxStaging * 1024 * 1024 * 1024
	}
	if a.maxFetch > 0 {
		cfg.MaxFetchBufferBytes = a.maxFetch * 1024 * 1024 * 1024
	}
	if a.metricsAddr != "" {
		cfg.MetricsAddr = a.metricsAddr
	}
	cfg.Verbose = a.verbose
	cfg.NoLog = a.noLog
	cfg.DryRun = a.dryRun
	cfg.Resume = a.resume

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if logger != nil {
		logger.Info("Report: %s", a.reportPath)
		logger.Info("Staging: %s", a.stagingDir)
		logger.Info("State file: %s", cfg.StateFilePath)
		logger.Info("Audio mode: %s", cfg.AudioMode)
		logger.Info("Replace original: %v", cfg.ReplaceOriginal)
	}

	rpt, err := report.Load(cfg.ReportPath)
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}

	store, err := state.New(cfg.StateFilePath)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}

	ctrl, err := control.New(cfg.StagingDir)
	if err != nil {
		return fmt.Errorf("failed to init control channel: %w", err)
	}

	items, err := queue.Build(rpt, cfg, store)
	if err != nil {
		return fmt.Errorf("failed to build queue: %w", err)
	}
	if a.tier != "" {
		items = filterByTier(items, a.tier)
	}
	if err := store.SetTotal(len(items)); err != nil {
		return fmt.Errorf("failed to persist queue size: %w", err)
	}
	items, err = ctrl.ApplyQueueOverrides(items, store)
	if err != nil {
		return fmt.Errorf("failed to apply control overrides: %w", err)
	}

	if a.dryRun {
		printQueue(items)
		return nil
	}

	reporters := []reporter.Reporter{reporter.NewTerminalReporter(a.verbose)}
	if logger != nil {
		reporters = append(reporters, reporter.NewLogReporter(logger.Writer()))
	}
	var metrics *reporter.MetricsReporter
	if cfg.MetricsAddr != "" {
		metrics = reporter.NewMetricsReporter(cfg.MetricsAddr)
		reporters = append(reporters, metrics)
	}
	rep := reporter.NewCompositeReporter(reporters...)

	run := queue.NewRun(items, rpt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(cancel)

	prefetchCtx, cancelPrefetch := context.WithCancel(ctx)
	defer cancelPrefetch()

	var alive atomicBool
	alive.Set(true)

	g, gctx := errgroup.WithContext(prefetchCtx)
	pw := prefetch.New(run, cfg, store, ctrl, rep)
	g.Go(func() error {
		defer alive.Set(false)
		pw.Run(gctx)
		return nil
	})

	orch := orchestrator.New(run, cfg, store, ctrl, rep, alive.Get)
	runErr := orch.Run(ctx)

	cancelPrefetch()
	_ = g.Wait()

	if metrics != nil {
		_ = metrics.Shutdown()
	}

	return runErr
}

// installSignalHandler requests graceful shutdown on the first interrupt
// and forces an immediate exit on the second.
func installSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutdown requested, finishing current stage...")
		cancel()
		<-sigCh
		fmt.Fprintln(os.Stderr, "Forcing exit.")
		os.Exit(1)
	}()
}

// atomicBool is a minimal flag safe for the single-writer/single-reader
// pattern between the prefetch goroutine and the orchestrator's liveness
// check.
type atomicBool struct {
	v int32
}

func (b *atomicBool) Set(val bool) {
	n := int32(0)
	if val {
		n = 1
	}
	atomic.StoreInt32(&b.v, n)
}

func (b *atomicBool) Get() bool {
	return atomic.LoadInt32(&b.v) == 1
}

func filterByTier(items []queue.WorkItem, tier string) []queue.WorkItem {
	out := make([]queue.WorkItem, 0, len(items))
	for _, it := range items {
		if it.TierName == tier {
			out = append(out, it)
		}
	}
	return out
}

func printQueue(items []queue.WorkItem) {
	fmt.Printf("Queue: %d items\n", len(items))
	for i, it := range items {
		fmt.Printf("%3d. [tier %d %-20s] %s (%.2f GB, %s)\n",
			i+1, it.TierIndex, it.TierName, it.SourcePath,
			float64(it.FileSizeBytes)/(1024*1024*1024), it.ResolutionClass)
	}
}
