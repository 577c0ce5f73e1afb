// Package state is the durable, crash-safe record of every file's progress
// through the pipeline. It persists atomically to a single JSON file so
// that any crash leaves a consistent, resumable snapshot.
package state

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// Status is a FileRecord's position in the stage state machine.
type Status string

const (
	Pending   Status = "pending"
	Fetching  Status = "fetching"
	Fetched   Status = "fetched"
	Encoding  Status = "encoding"
	Encoded   Status = "encoded"
	Uploading Status = "uploading"
	Uploaded  Status = "uploaded"
	Verified  Status = "verified"
	Replacing Status = "replacing"
	Replaced  Status = "replaced"
	Skipped   Status = "skipped"
	Error     Status = "error"
)

// Terminal reports whether a status requires no further work.
func (s Status) Terminal() bool {
	switch s {
	case Replaced, Verified, Skipped, Error:
		return true
	default:
		return false
	}
}

// ReadyToAdvance reports whether a status means the item is mid-flight and
// should be picked up by the orchestrator ahead of untouched PENDING items.
func (s Status) ReadyToAdvance() bool {
	switch s {
	case Fetched, Encoding, Encoded, Uploading, Uploaded, Replacing:
		return true
	default:
		return false
	}
}

// FileRecord is the mutable, durable record for one source path.
type FileRecord struct {
	Status Status `json:"status"`

	Added       int64 `json:"added"`
	LastUpdated int64 `json:"last_updated"`

	LocalPath  string `json:"local_path,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	DestPath   string `json:"dest_path,omitempty"`
	FinalPath  string `json:"final_path,omitempty"`
	BackupPath string `json:"backup_path,omitempty"`

	InputSizeBytes    int64   `json:"input_size_bytes,omitempty"`
	OutputSizeBytes   int64   `json:"output_size_bytes,omitempty"`
	DestSizeBytes     int64   `json:"dest_size_bytes,omitempty"`
	BytesSaved        int64   `json:"bytes_saved,omitempty"`
	CompressionRatio  float64 `json:"compression_ratio,omitempty"`
	EncodeTimeSecs    float64 `json:"encode_time_secs,omitempty"`

	Error  string `json:"error,omitempty"`
	Stage  string `json:"stage,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// TierStats is the per-resolution-class slice of the global stats block.
type TierStats struct {
	Completed            int     `json:"completed"`
	BytesSaved            int64   `json:"bytes_saved"`
	TotalInputBytes        int64   `json:"total_input_bytes"`
	TotalOutputBytes       int64   `json:"total_output_bytes"`
	TotalEncodeTimeSecs    float64 `json:"total_encode_time_secs"`
}

// Stats is the denormalized global stats block.
type Stats struct {
	Total              int                   `json:"total"`
	Completed          int                   `json:"completed"`
	Skipped            int                   `json:"skipped"`
	Errors             int                   `json:"errors"`
	BytesSaved         int64                 `json:"bytes_saved"`
	TotalEncodeTimeSecs float64              `json:"total_encode_time_secs"`
	TierStats          map[string]*TierStats `json:"tier_stats,omitempty"`
}

// document is the on-disk shape of the state file.
type document struct {
	Created     int64                  `json:"created"`
	LastUpdated int64                  `json:"last_updated"`
	Config      map[string]interface{} `json:"config,omitempty"`
	Stats       Stats                  `json:"stats"`
	Files       map[string]*FileRecord `json:"files"`
}

// Store is the durable, thread-safe keeper of every FileRecord. Its mutex
// is a plain sync.Mutex and is not reentrant: Set acquires it internally,
// and callers that need to read a record and decide whether to claim it
// atomically use WithLock, whose callback must not call back into the
// Store.
type Store struct {
	path string

	mu  sync.Mutex
	doc document

	nowFunc func() int64
}

// New constructs a Store backed by path. If path exists it is loaded;
// otherwise a fresh document is created (and not yet persisted until the
// first Save/Set call).
func New(path string) (*Store, error) {
	s := &Store{
		path:    path,
		nowFunc: func() int64 { return time.Now().Unix() },
		doc: document{
			Files: make(map[string]*FileRecord),
			Stats: Stats{TierStats: make(map[string]*TierStats)},
		},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := readFileIfExists(s.path)
	if err != nil {
		return fmt.Errorf("state: read %s: %w", s.path, err)
	}
	if data == nil {
		s.doc.Created = s.nowFunc()
		return nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("state: parse %s: %w", s.path, err)
	}
	if doc.Files == nil {
		doc.Files = make(map[string]*FileRecord)
	}
	if doc.Stats.TierStats == nil {
		doc.Stats.TierStats = make(map[string]*TierStats)
	}
	s.doc = doc
	return nil
}

// Save persists the current document atomically via a temp-file-and-rename.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	s.doc.LastUpdated = s.nowFunc()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", s.path, err)
	}
	return nil
}

// SetConfig stashes a serializable snapshot of the effective config for
// reporting/debugging purposes and saves.
func (s *Store) SetConfig(cfg map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Config = cfg
	return s.saveLocked()
}

// Get returns a copy of the record for path, or nil if none exists.
func (s *Store) Get(path string) *FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.doc.Files[path]
	if !ok {
		return nil
	}
	cp := *fr
	return &cp
}

// Mutation is applied to a FileRecord inside Set's critical section,
// after the status transition itself.
type Mutation func(fr *FileRecord)

// Set transitions path to status, applying any mutations, creating the
// record (with an Added timestamp) if it does not yet exist, and persists.
func (s *Store) Set(path string, status Status, muts ...Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fr, ok := s.doc.Files[path]
	if !ok {
		fr = &FileRecord{Added: s.nowFunc()}
		s.doc.Files[path] = fr
	}
	prev := fr.Status
	fr.Status = status
	fr.LastUpdated = s.nowFunc()
	for _, m := range muts {
		m(fr)
	}
	s.bumpTerminalStats(prev, status)
	return s.saveLocked()
}

// bumpTerminalStats increments the global skipped/error counters when a
// transition lands a record on that terminal status for the first time.
// Must be called with s.mu held.
func (s *Store) bumpTerminalStats(prev, next Status) {
	if prev == next {
		return
	}
	switch next {
	case Skipped:
		s.doc.Stats.Skipped++
	case Error:
		s.doc.Stats.Errors++
	}
}

// WithLock runs fn holding the Store's lock, for call sites (the fetch
// stage's atomic FETCHING claim) that must read-then-conditionally-write
// as one critical section. fn receives the current record (nil if absent)
// and returns true if it performed a transition that needs saving.
func (s *Store) WithLock(path string, fn func(current *FileRecord) (status Status, muts []Mutation, shouldSet bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.doc.Files[path]
	var snapshot *FileRecord
	if existing != nil {
		cp := *existing
		snapshot = &cp
	}

	status, muts, shouldSet := fn(snapshot)
	if !shouldSet {
		return nil
	}

	fr, ok := s.doc.Files[path]
	if !ok {
		fr = &FileRecord{Added: s.nowFunc()}
		s.doc.Files[path] = fr
	}
	prev := fr.Status
	fr.Status = status
	fr.LastUpdated = s.nowFunc()
	for _, m := range muts {
		m(fr)
	}
	s.bumpTerminalStats(prev, status)
	return s.saveLocked()
}

// ByStatus returns a snapshot of all records currently in any of statuses.
func (s *Store) ByStatus(statuses ...Status) map[string]*FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := make(map[string]*FileRecord)
	for path, fr := range s.doc.Files {
		if want[fr.Status] {
			cp := *fr
			out[path] = &cp
		}
	}
	return out
}

// AddCompleted records a successful verify: increments the global and
// per-tier stats blocks.
func (s *Store) AddCompleted(resKey string, bytesSaved, inputBytes, outputBytes int64, encodeTimeSecs float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Stats.Completed++
	s.doc.Stats.BytesSaved += bytesSaved
	s.doc.Stats.TotalEncodeTimeSecs += encodeTimeSecs

	t, ok := s.doc.Stats.TierStats[resKey]
	if !ok {
		t = &TierStats{}
		s.doc.Stats.TierStats[resKey] = t
	}
	t.Completed++
	t.BytesSaved += bytesSaved
	t.TotalInputBytes += inputBytes
	t.TotalOutputBytes += outputBytes
	t.TotalEncodeTimeSecs += encodeTimeSecs

	return s.saveLocked()
}

// SetTotal records the total file count discovered by the queue builder.
func (s *Store) SetTotal(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Stats.Total = n
	return s.saveLocked()
}

// Snapshot returns a copy of the global stats block.
func (s *Store) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.doc.Stats
	return cp
}

// AverageEncodeSecs returns the average per-file encode time for resKey and
// whether at least two samples are available.
func (t *TierStats) AverageEncodeSecs() (float64, bool) {
	if t == nil || t.Completed == 0 {
		return 0, false
	}
	return t.TotalEncodeTimeSecs / float64(t.Completed), t.Completed >= 2
}

// TierStatsFor returns the per-tier stats for resKey, or nil.
func (s *Store) TierStatsFor(resKey string) *TierStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Stats.TierStats[resKey]
}

// Mutation helpers shared by every stage worker.

func WithLocalPath(p string) Mutation       { return func(fr *FileRecord) { fr.LocalPath = p } }
func WithOutputPath(p string) Mutation      { return func(fr *FileRecord) { fr.OutputPath = p } }
func WithDestPath(p string) Mutation        { return func(fr *FileRecord) { fr.DestPath = p } }
func WithFinalPath(p string) Mutation       { return func(fr *FileRecord) { fr.FinalPath = p } }
func WithBackupPath(p string) Mutation      { return func(fr *FileRecord) { fr.BackupPath = p } }
func WithReason(r string) Mutation          { return func(fr *FileRecord) { fr.Reason = r } }
func WithError(stage string, err error) Mutation {
	return func(fr *FileRecord) {
		fr.Stage = stage
		if err != nil {
			fr.Error = err.Error()
		}
	}
}
func WithEncodeResult(outputPath string, outputSize, inputSize, saved int64, ratio, secs float64) Mutation {
	return func(fr *FileRecord) {
		fr.OutputPath = outputPath
		fr.OutputSizeBytes = outputSize
		fr.InputSizeBytes = inputSize
		fr.BytesSaved = saved
		fr.CompressionRatio = ratio
		fr.EncodeTimeSecs = secs
	}
}
func WithVerifyResult(destSize, saved int64) Mutation {
	return func(fr *FileRecord) {
		fr.DestSizeBytes = destSize
		fr.BytesSaved = saved
	}
}
