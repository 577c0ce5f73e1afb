// Package control implements the filesystem-directory-based live control
// surface: pause (with friendly aliases), a skip list, a priority list,
// and per-file "gentle" quality overrides. Every document is read on
// demand and cached by mtime so the hot path (a check at every file
// boundary) is cheap.
package control

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kpjobrien/av1shelf/internal/queue"
	"github.com/kpjobrien/av1shelf/internal/state"
)

// PauseType is the scope of an active pause.
type PauseType string

const (
	PauseNone       PauseType = ""
	PauseAll        PauseType = "all"
	PauseFetchOnly  PauseType = "fetch_only"
	PauseEncodeOnly PauseType = "encode_only"
)

type aliasSpec struct {
	canonical string
	implied   map[string]interface{}
}

var aliases = map[string]aliasSpec{
	"pause_all.json":    {canonical: "pause.json", implied: map[string]interface{}{"type": "all"}},
	"pause_fetch.json":  {canonical: "pause.json", implied: map[string]interface{}{"type": "fetch_only"}},
	"pause_encode.json": {canonical: "pause.json", implied: map[string]interface{}{"type": "encode_only"}},
}

type skipDoc struct {
	Paths []string `json:"paths"`
}

type priorityDoc struct {
	Paths []string `json:"paths"`
}

type gentleOverride struct {
	CQOffset *int    `json:"cq_offset,omitempty"`
	CQ       *int    `json:"cq,omitempty"`
	Preset   string  `json:"preset,omitempty"`
}

type gentleDoc struct {
	Paths         map[string]gentleOverride `json:"paths"`
	Patterns      map[string]gentleOverride `json:"patterns"`
	DefaultOffset int                       `json:"default_offset"`
}

type cacheEntry struct {
	mtime time.Time
	data  interface{}
}

// Control is the live control-channel reader.
type Control struct {
	dir       string // <staging>/control
	parentDir string // <staging>/

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New constructs a Control rooted at <stagingDir>/control, seeding the
// three persistent documents (skip, priority, gentle) with empty defaults
// if they do not already exist.
func New(stagingDir string) (*Control, error) {
	dir := filepath.Join(stagingDir, "control")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	c := &Control{dir: dir, parentDir: stagingDir, cache: make(map[string]cacheEntry)}
	if err := c.seed("skip.json", skipDoc{Paths: []string{}}); err != nil {
		return nil, err
	}
	if err := c.seed("priority.json", priorityDoc{Paths: []string{}}); err != nil {
		return nil, err
	}
	if err := c.seed("gentle.json", gentleDoc{Paths: map[string]gentleOverride{}, Patterns: map[string]gentleOverride{}}); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Control) seed(name string, def interface{}) error {
	path := filepath.Join(c.dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readCached parses name into out, re-parsing only when the file's mtime
// has advanced since the last read. Missing files, empty files, and parse
// failures are all tolerated — the document is simply treated as absent;
// a parse failure is also logged.
func (c *Control) readCached(name string, out interface{}) (found bool) {
	path := filepath.Join(c.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	c.mu.Lock()
	entry, cached := c.cache[name]
	c.mu.Unlock()

	if cached && !info.ModTime().After(entry.mtime) {
		return copyInto(entry.data, out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Printf("control: ignoring unparseable %s: %v", name, err)
		return false
	}

	c.mu.Lock()
	c.cache[name] = cacheEntry{mtime: info.ModTime(), data: out}
	c.mu.Unlock()
	return true
}

// copyInto re-marshals cached into out; cheap enough for small control
// documents and avoids sharing mutable pointers across callers.
func copyInto(cached, out interface{}) bool {
	data, err := json.Marshal(cached)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// Pause reports whether any pause mechanism is currently active, and its
// scope. The bare sentinel file takes priority, then the canonical
// document (whose effective type is whatever alias implied it, if any —
// the canonical document's own "type" field never overrides an alias).
// A present canonical document that is empty or names no known type
// pauses everything.
func (c *Control) Pause() PauseType {
	if _, err := os.Stat(filepath.Join(c.parentDir, "PAUSE")); err == nil {
		return PauseAll
	}

	var implied map[string]interface{}
	for name, spec := range aliases {
		if _, err := os.Stat(filepath.Join(c.dir, name)); err == nil {
			implied = spec.implied
			break
		}
	}

	var doc map[string]interface{}
	found := c.readCached("pause.json", &doc)
	if !found {
		// An empty pause.json is still a pause, just without a payload.
		if data, err := os.ReadFile(filepath.Join(c.dir, "pause.json")); err == nil && len(strings.TrimSpace(string(data))) == 0 {
			found = true
		}
	}

	effective := implied
	if effective == nil {
		if !found {
			return PauseNone
		}
		effective = doc
	}
	t, _ := effective["type"].(string)
	switch t {
	case "fetch_only":
		return PauseFetchOnly
	case "encode_only":
		return PauseEncodeOnly
	default:
		return PauseAll
	}
}

// IsFetchPaused reports whether fetching should be held.
func (c *Control) IsFetchPaused() bool {
	p := c.Pause()
	return p == PauseAll || p == PauseFetchOnly
}

// IsEncodePaused reports whether encoding should be held.
func (c *Control) IsEncodePaused() bool {
	p := c.Pause()
	return p == PauseAll || p == PauseEncodeOnly
}

// ShouldSkip reports whether path is on the skip list (case-insensitive,
// normalized).
func (c *Control) ShouldSkip(path string) bool {
	var doc skipDoc
	if !c.readCached("skip.json", &doc) {
		return false
	}
	norm := normalize(path)
	for _, p := range doc.Paths {
		if normalize(p) == norm {
			return true
		}
	}
	return false
}

// PriorityPaths returns the current priority list, in document order.
func (c *Control) PriorityPaths() []string {
	var doc priorityDoc
	if !c.readCached("priority.json", &doc) {
		return nil
	}
	return doc.Paths
}

// GentleOverride resolves the effective override for path/filename: exact
// path match wins over pattern match wins over the document's
// default_offset. ok is false when no document or no applicable entry
// exists at all (not even a default offset of zero).
func (c *Control) GentleOverride(path, filename string) (override gentleOverride, ok bool) {
	var doc gentleDoc
	if !c.readCached("gentle.json", &doc) {
		return gentleOverride{}, false
	}
	norm := normalize(path)
	for p, o := range doc.Paths {
		if normalize(p) == norm {
			return o, true
		}
	}
	for pattern, o := range doc.Patterns {
		if matched, _ := filepath.Match(strings.ToLower(pattern), strings.ToLower(filename)); matched {
			return o, true
		}
		// A pattern with no wildcards also matches as a bare,
		// case-insensitive substring of the filename.
		if globContains(pattern, filename) {
			return o, true
		}
	}
	if doc.DefaultOffset != 0 {
		offset := doc.DefaultOffset
		return gentleOverride{CQOffset: &offset}, true
	}
	return gentleOverride{}, false
}

// ResolveCQ applies an override's cq/cq_offset precedence to a base CQ
// value: cq wins absolute; otherwise the offset is applied and floored
// at 1.
func ResolveCQ(baseCQ int, override gentleOverride) int {
	if override.CQ != nil {
		return *override.CQ
	}
	if override.CQOffset != nil {
		v := baseCQ + *override.CQOffset
		if v < 1 {
			v = 1
		}
		return v
	}
	return baseCQ
}

// PresetOr returns the override's preset, or fallback if unset.
func (o gentleOverride) PresetOr(fallback string) string {
	if o.Preset != "" {
		return o.Preset
	}
	return fallback
}

func normalize(p string) string {
	return strings.ToLower(filepath.Clean(p))
}

// globContains is a forgiving fallback for patterns authored as bare
// substrings (e.g. "interstellar" rather than "*interstellar*").
func globContains(pattern, filename string) bool {
	if !strings.Contains(pattern, "*") && !strings.Contains(pattern, "?") {
		return strings.Contains(strings.ToLower(filename), strings.ToLower(pattern))
	}
	return false
}

// ApplyQueueOverrides filters skipped items (transitioning them to SKIPPED
// in the store) and moves priority-list items to the front, preserving
// each group's relative order.
func (c *Control) ApplyQueueOverrides(items []queue.WorkItem, store *state.Store) ([]queue.WorkItem, error) {
	kept := items[:0:0]
	for _, it := range items {
		if c.ShouldSkip(it.SourcePath) {
			if err := store.Set(it.SourcePath, state.Skipped, state.WithReason("operator skip")); err != nil {
				return nil, err
			}
			continue
		}
		kept = append(kept, it)
	}

	priority := make(map[string]bool)
	for _, p := range c.PriorityPaths() {
		priority[normalize(p)] = true
	}

	var front, rest []queue.WorkItem
	for _, it := range kept {
		if priority[normalize(it.SourcePath)] {
			front = append(front, it)
		} else {
			rest = append(rest, it)
		}
	}
	return append(front, rest...), nil
}
