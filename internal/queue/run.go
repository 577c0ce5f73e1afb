package queue

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/kpjobrien/av1shelf/internal/report"
	"github.com/kpjobrien/av1shelf/internal/state"
)

// overrideApplier is satisfied by *control.Control; declared locally to
// avoid an import cycle (control already depends on queue for WorkItem).
type overrideApplier interface {
	ApplyQueueOverrides(items []WorkItem, store *state.Store) ([]WorkItem, error)
}

// Run is the live, mutable run queue shared by the orchestrator and the
// prefetch worker. The ordered slice itself is the only state either side
// needs to agree on; everything else (per-file progress) lives in the
// Store.
type Run struct {
	mu    sync.Mutex
	items []WorkItem
	rpt   *report.Report
}

// NewRun wraps an already-built, ordered item slice.
func NewRun(items []WorkItem, rpt *report.Report) *Run {
	return &Run{items: items, rpt: rpt}
}

// Snapshot returns a copy of the current ordered queue, safe for the
// caller to range over without holding the lock.
func (r *Run) Snapshot() []WorkItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WorkItem, len(r.items))
	copy(out, r.items)
	return out
}

// Len reports the current queue length.
func (r *Run) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// InjectPriorityPaths prepends any priority-list path not already present
// in the queue (case/clean-normalized), looking each up in the original
// media report to build its WorkItem. Unknown paths (not in the report)
// are silently ignored — the operator may be naming a file no longer
// present.
func (r *Run) InjectPriorityPaths(paths []string, cfg interface {
	AssignTier(codec, resolution string, bitrateKbps int) (int, string)
}) {
	if len(paths) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[string]bool, len(r.items))
	for _, it := range r.items {
		present[normalizePath(it.SourcePath)] = true
	}

	var injected []WorkItem
	byPath := r.rpt.ByPath()
	for _, p := range paths {
		np := normalizePath(p)
		if present[np] {
			continue
		}
		e, ok := byPath[p]
		if !ok {
			continue
		}
		tierIdx, tierName := cfg.AssignTier(e.Video.CodecRaw, e.Video.ResolutionClass, e.OverallBitrateKbps)
		injected = append(injected, fromEntry(e, tierIdx, tierName))
		present[np] = true
	}
	if len(injected) > 0 {
		r.items = append(injected, r.items...)
	}
}

// ApplyOverrides re-applies the live skip/priority control lists to the
// queue in place: skip-listed items are removed (transitioning them to
// SKIPPED in the store) and priority-listed items are moved to the front.
func (r *Run) ApplyOverrides(ctrl overrideApplier, store *state.Store) error {
	r.mu.Lock()
	items := make([]WorkItem, len(r.items))
	copy(items, r.items)
	r.mu.Unlock()

	updated, err := ctrl.ApplyQueueOverrides(items, store)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.items = updated
	r.mu.Unlock()
	return nil
}

func normalizePath(p string) string {
	return strings.ToLower(filepath.Clean(p))
}
