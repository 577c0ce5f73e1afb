// Package queue builds and orders the run queue from a media report and
// the live state store.
package queue

import (
	"sort"
	"strings"

	"github.com/kpjobrien/av1shelf/internal/config"
	"github.com/kpjobrien/av1shelf/internal/report"
	"github.com/kpjobrien/av1shelf/internal/state"
)

// WorkItem is one immutable row in the run queue.
type WorkItem struct {
	SourcePath string
	Filename   string

	FileSizeBytes      int64
	DurationSeconds    float64
	VideoCodec         string
	VideoCodecRaw      string
	ResolutionClass    string
	HDR                bool
	BitDepth           int
	LibraryType        string
	AudioStreams       []report.AudioStream
	SubtitleCount      int
	OverallBitrateKbps int

	TierIndex int
	TierName  string
}

func fromEntry(e report.Entry, tierIdx int, tierName string) WorkItem {
	return WorkItem{
		SourcePath:         e.FilePath,
		Filename:           e.Filename,
		FileSizeBytes:      e.FileSizeBytes,
		DurationSeconds:    e.DurationSeconds,
		VideoCodec:         e.Video.Codec,
		VideoCodecRaw:      e.Video.CodecRaw,
		ResolutionClass:    e.Video.ResolutionClass,
		HDR:                e.Video.HDR,
		BitDepth:           e.Video.BitDepth,
		LibraryType:        e.LibraryType,
		AudioStreams:       e.AudioStreams,
		SubtitleCount:      e.SubtitleCount,
		OverallBitrateKbps: e.OverallBitrateKbps,
		TierIndex:          tierIdx,
		TierName:           tierName,
	}
}

// Build transforms the media report plus the live state store into an
// ordered, deduplicated run queue: entries already at the target codec or
// of unknown codec are filtered out and marked SKIPPED; entries already in
// a terminal status are excluded; the rest are tier-assigned and sorted by
// (tier ascending, file size descending).
func Build(rpt *report.Report, cfg *config.Config, store *state.Store) ([]WorkItem, error) {
	var items []WorkItem
	seen := make(map[string]bool, len(rpt.Files))

	for _, e := range rpt.Files {
		if seen[e.FilePath] {
			continue
		}
		seen[e.FilePath] = true
		existing := store.Get(e.FilePath)

		if strings.EqualFold(e.Video.CodecRaw, cfg.TargetCodec) {
			if existing == nil {
				if err := store.Set(e.FilePath, state.Skipped, state.WithReason("already target codec")); err != nil {
					return nil, err
				}
			}
			continue
		}
		if strings.EqualFold(e.Video.Codec, "unknown") || e.Video.Codec == "" {
			if existing == nil {
				if err := store.Set(e.FilePath, state.Skipped, state.WithReason("unknown codec")); err != nil {
					return nil, err
				}
			}
			continue
		}
		if existing != nil && existing.Status.Terminal() {
			continue
		}

		tierIdx, tierName := cfg.AssignTier(e.Video.CodecRaw, e.Video.ResolutionClass, e.OverallBitrateKbps)
		items = append(items, fromEntry(e, tierIdx, tierName))
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].TierIndex != items[j].TierIndex {
			return items[i].TierIndex < items[j].TierIndex
		}
		return items[i].FileSizeBytes > items[j].FileSizeBytes
	})

	return items, nil
}

// TierBreakdown counts queued items per tier, in the order each tier
// first appears in items.
func TierBreakdown(items []WorkItem) []struct {
	Name  string
	Count int
} {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, it := range items {
		if _, ok := counts[it.TierName]; !ok {
			order = append(order, it.TierName)
		}
		counts[it.TierName]++
	}
	out := make([]struct {
		Name  string
		Count int
	}, 0, len(order))
	for _, name := range order {
		out = append(out, struct {
			Name  string
			Count int
		}{Name: name, Count: counts[name]})
	}
	return out
}
