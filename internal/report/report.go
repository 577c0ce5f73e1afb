// Package report parses the media-report JSON produced by the (external,
// out-of-scope) metadata probe: the pipeline's sole input describing what
// files exist and their current encoding.
package report

import (
	"encoding/json"
	"fmt"
	"os"
)

// AudioStream describes one audio track in an entry.
type AudioStream struct {
	Codec    string `json:"codec"`
	CodecRaw string `json:"codec_raw"`
	Lossless bool   `json:"lossless"`
	Channels int    `json:"channels"`
	Language string `json:"language"`
}

// Video is the nested video-stream object of an Entry.
type Video struct {
	Codec           string `json:"codec"`
	CodecRaw        string `json:"codec_raw"`
	ResolutionClass string `json:"resolution_class"`
	HDR             bool   `json:"hdr"`
	BitDepth        int    `json:"bit_depth"`
}

// Entry is one probed file in the report.
type Entry struct {
	FilePath          string        `json:"filepath"`
	Filename          string        `json:"filename"`
	FileSizeBytes     int64         `json:"file_size_bytes"`
	FileSizeGB        float64       `json:"file_size_gb"`
	DurationSeconds   float64       `json:"duration_seconds"`
	OverallBitrateKbps int          `json:"overall_bitrate_kbps"`
	Video             Video         `json:"video"`
	AudioStreams      []AudioStream `json:"audio_streams"`
	SubtitleCount     int           `json:"subtitle_count"`
	LibraryType       string        `json:"library_type"`
}

// Report is the top-level document: a flat list of entries.
type Report struct {
	Files []Entry `json:"files"`
}

// Load reads and parses the media report at path.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: read %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: parse %s: %w", path, err)
	}
	return &r, nil
}

// ByPath indexes the report's entries by source filepath for the
// orchestrator's priority-injection lookups.
func (r *Report) ByPath() map[string]Entry {
	m := make(map[string]Entry, len(r.Files))
	for _, e := range r.Files {
		m[e.FilePath] = e
	}
	return m
}
