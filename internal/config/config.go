// Package config holds the pipeline's effective configuration: built-in
// defaults, an optional TOML override file, and CLI flag overrides layered
// on top, in that order.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Resolution classes, narrowest to widest, as they appear in the media report.
const (
	ResSD    = "SD"
	Res480p  = "480p"
	Res720p  = "720p"
	Res1080p = "1080p"
	Res4K    = "4K"
)

// seriesTypes maps library_type values onto content type "series"; anything
// else maps to "movie".
var seriesTypes = map[string]bool{
	"series": true,
	"show":   true,
	"tv":     true,
	"anime":  true,
}

// ContentType returns "series" or "movie" for a report library_type value.
func ContentType(libraryType string) string {
	if seriesTypes[strings.ToLower(libraryType)] {
		return "series"
	}
	return "movie"
}

// ResKey builds the two-level encode-parameter lookup key: resolution class
// plus an HDR suffix for 4K, the only class with a materially different
// HDR encode profile.
func ResKey(resolutionClass string, hdr bool) string {
	if resolutionClass == Res4K {
		if hdr {
			return "4K_HDR"
		}
		return "4K_SDR"
	}
	return resolutionClass
}

// Tier is one entry in the priority table: the first tier whose predicates
// all match a file wins; unmatched files fall into a synthetic "other" tier
// at the end of the table.
type Tier struct {
	Name           string
	Codec          string // raw codec, empty = any
	Resolution     string // resolution class, empty = any
	MinBitrateKbps int    // 0 = no lower bound
	MaxBitrateKbps int    // 0 = no upper bound
}

// Matches reports whether a file with the given codec, resolution class,
// and bitrate falls into this tier.
func (t Tier) Matches(codec, resolution string, bitrateKbps int) bool {
	if t.Codec != "" && !strings.EqualFold(t.Codec, codec) {
		return false
	}
	if t.Resolution != "" && t.Resolution != resolution {
		return false
	}
	if t.MinBitrateKbps > 0 && bitrateKbps < t.MinBitrateKbps {
		return false
	}
	if t.MaxBitrateKbps > 0 && bitrateKbps > t.MaxBitrateKbps {
		return false
	}
	return true
}

// DefaultTiers is the nine-tier priority table, biggest-savings-first,
// carried unchanged from the originating system.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "H.264 1080p", Codec: "h264", Resolution: Res1080p},
		{Name: "Bloated HEVC 1080p", Codec: "hevc", Resolution: Res1080p, MinBitrateKbps: 15000},
		{Name: "Bloated HEVC 4K", Codec: "hevc", Resolution: Res4K, MinBitrateKbps: 25000},
		{Name: "H.264 720p/other", Codec: "h264"},
		{Name: "HEVC 1080p", Codec: "hevc", Resolution: Res1080p, MaxBitrateKbps: 15000},
		{Name: "HEVC 4K >20Mbps", Codec: "hevc", Resolution: Res4K, MinBitrateKbps: 20001, MaxBitrateKbps: 25000},
		{Name: "HEVC 4K <=20Mbps", Codec: "hevc", Resolution: Res4K, MaxBitrateKbps: 20000},
		{Name: "HEVC 720p/SD + other", Codec: "hevc"},
		{Name: "Other codecs"},
	}
}

// EncodeParams is the resolved set of encoder knobs for one file.
type EncodeParams struct {
	CQ          int
	Preset      string
	Multipass   string // disabled|qres|fullres
	Lookahead   int
	MaxRate     string // empty = unset
	BufSize     string // empty = unset
	ContentType string
	ResKey      string
}

// paramTable is content_type -> res_key -> params.
type paramTable map[string]map[string]EncodeParams

// defaultParamTable mirrors the originating system's movie/series x res_key
// CQ/preset/multipass/lookahead grid.
func defaultParamTable() paramTable {
	return paramTable{
		"movie": {
			"4K_HDR": {CQ: 22, Preset: "p7", Multipass: "fullres", Lookahead: 32, MaxRate: "40M", BufSize: "80M"},
			"4K_SDR": {CQ: 27, Preset: "p5", Multipass: "qres", Lookahead: 24, MaxRate: "20M", BufSize: "40M"},
			"1080p":  {CQ: 28, Preset: "p5", Multipass: "qres", Lookahead: 24, MaxRate: "20M", BufSize: "40M"},
			"720p":   {CQ: 30, Preset: "p4", Multipass: "disabled", Lookahead: 16},
			"480p":   {CQ: 30, Preset: "p4", Multipass: "disabled", Lookahead: 16},
			"SD":     {CQ: 30, Preset: "p4", Multipass: "disabled", Lookahead: 16},
		},
		"series": {
			"4K_HDR": {CQ: 24, Preset: "p5", Multipass: "qres", Lookahead: 24, MaxRate: "20M", BufSize: "40M"},
			"4K_SDR": {CQ: 30, Preset: "p4", Multipass: "disabled", Lookahead: 16},
			"1080p":  {CQ: 30, Preset: "p4", Multipass: "disabled", Lookahead: 16},
			"720p":   {CQ: 32, Preset: "p4", Multipass: "disabled", Lookahead: 16},
			"480p":   {CQ: 32, Preset: "p4", Multipass: "disabled", Lookahead: 16},
			"SD":     {CQ: 32, Preset: "p4", Multipass: "disabled", Lookahead: 16},
		},
	}
}

// fallbackParams is used when the content_type row is missing or has no
// entry for the res_key.
var fallbackParams = EncodeParams{CQ: 30, Preset: "p4", Multipass: "disabled", Lookahead: 16}

// Config is the effective, fully-resolved pipeline configuration.
type Config struct {
	StagingDir    string
	ReportPath    string
	StateFilePath string

	MaxStagingBytes     int64
	MaxFetchBufferBytes int64
	MinFreeSpaceBytes   int64

	OverwriteExisting bool
	ReplaceOriginal   bool

	VerifyDurationToleranceSecs float64

	AudioMode                string // copy|smart
	AudioEAC3SurroundBitrate  string
	AudioEAC3StereoBitrate   string
	LosslessAudioCodecs      map[string]bool

	PixelFormatHDR string
	PixelFormatSDR string
	VideoCodec     string
	TargetCodec    string // raw codec considered "already done"

	PriorityTiers []Tier
	Params        paramTable

	MetricsAddr string
	MaxCopyMBps float64

	Verbose bool
	NoLog   bool
	DryRun  bool
	Resume  bool
}

// fileOverlay is the subset of Config fields an optional TOML file may set.
type fileOverlay struct {
	MaxStagingGB      int64   `toml:"max_staging_gb"`
	MaxFetchGB        int64   `toml:"max_fetch_gb"`
	MinFreeSpaceGB    int64   `toml:"min_free_space_gb"`
	AudioMode         string  `toml:"audio_mode"`
	OverwriteExisting *bool   `toml:"overwrite_existing"`
	ReplaceOriginal   *bool   `toml:"replace_original"`
	MaxCopyMBps       float64 `toml:"max_copy_mbps"`
	MetricsAddr       string  `toml:"metrics_addr"`
}

const (
	gb = 1024 * 1024 * 1024

	defaultMaxStagingGB   = 2500
	defaultMaxFetchGB     = 500
	defaultMinFreeSpaceGB = 50
)

// New returns a Config populated with the built-in defaults.
func New(stagingDir, reportPath string) *Config {
	return &Config{
		StagingDir: stagingDir,
		ReportPath: reportPath,

		MaxStagingBytes:     defaultMaxStagingGB * gb,
		MaxFetchBufferBytes: defaultMaxFetchGB * gb,
		MinFreeSpaceBytes:   defaultMinFreeSpaceGB * gb,

		OverwriteExisting: false,
		ReplaceOriginal:   true,

		VerifyDurationToleranceSecs: 2.0,

		AudioMode:               "smart",
		AudioEAC3SurroundBitrate: "640k",
		AudioEAC3StereoBitrate:   "256k",
		LosslessAudioCodecs: map[string]bool{
			"truehd": true, "dts-hd ma": true, "dts-hd.ma": true, "flac": true,
			"pcm_s16le": true, "pcm_s24le": true, "pcm_s32le": true, "pcm_f32le": true,
			"pcm_s16be": true, "pcm_s24be": true, "pcm_s32be": true, "pcm_f32be": true,
			"alac": true,
		},

		PixelFormatHDR: "p010le",
		PixelFormatSDR: "p010le",
		VideoCodec:     "av1_nvenc",
		TargetCodec:    "av1",

		PriorityTiers: DefaultTiers(),
		Params:        defaultParamTable(),
	}
}

// LoadTOML applies an optional override file on top of the defaults. A
// missing file is not an error — it simply means no overrides apply.
func (c *Config) LoadTOML(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	var overlay fileOverlay
	if _, err := toml.DecodeFile(path, &overlay); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if overlay.MaxStagingGB > 0 {
		c.MaxStagingBytes = overlay.MaxStagingGB * gb
	}
	if overlay.MaxFetchGB > 0 {
		c.MaxFetchBufferBytes = overlay.MaxFetchGB * gb
	}
	if overlay.MinFreeSpaceGB > 0 {
		c.MinFreeSpaceBytes = overlay.MinFreeSpaceGB * gb
	}
	if overlay.AudioMode != "" {
		c.AudioMode = overlay.AudioMode
	}
	if overlay.OverwriteExisting != nil {
		c.OverwriteExisting = *overlay.OverwriteExisting
	}
	if overlay.ReplaceOriginal != nil {
		c.ReplaceOriginal = *overlay.ReplaceOriginal
	}
	if overlay.MaxCopyMBps > 0 {
		c.MaxCopyMBps = overlay.MaxCopyMBps
	}
	if overlay.MetricsAddr != "" {
		c.MetricsAddr = overlay.MetricsAddr
	}
	return nil
}

// Validate rejects configurations that cannot produce a sane run.
func (c *Config) Validate() error {
	if c.StagingDir == "" {
		return fmt.Errorf("config: staging directory is required")
	}
	if c.MaxStagingBytes <= 0 {
		return fmt.Errorf("config: max staging bytes must be positive, got %d", c.MaxStagingBytes)
	}
	if c.MaxFetchBufferBytes <= 0 {
		return fmt.Errorf("config: max fetch buffer bytes must be positive, got %d", c.MaxFetchBufferBytes)
	}
	if c.MinFreeSpaceBytes < 0 {
		return fmt.Errorf("config: min free space bytes cannot be negative, got %d", c.MinFreeSpaceBytes)
	}
	if c.AudioMode != "copy" && c.AudioMode != "smart" {
		return fmt.Errorf("config: audio mode must be copy or smart, got %q", c.AudioMode)
	}
	if c.VerifyDurationToleranceSecs <= 0 {
		return fmt.Errorf("config: verify duration tolerance must be positive, got %g", c.VerifyDurationToleranceSecs)
	}
	return nil
}

// ResolveEncodeParams resolves the six encode knobs for a file, applying
// the content_type x res_key lookup with a final hard fallback.
func (c *Config) ResolveEncodeParams(libraryType, resolutionClass string, hdr bool) EncodeParams {
	contentType := ContentType(libraryType)
	resKey := ResKey(resolutionClass, hdr)

	p := fallbackParams
	if row, ok := c.Params[contentType]; ok {
		if params, ok := row[resKey]; ok {
			p = params
		}
	}
	p.ContentType = contentType
	p.ResKey = resKey
	return p
}

// AssignTier returns the index and name of the first tier matching the
// given codec/resolution/bitrate, or the synthetic "other" tier if none
// match.
func (c *Config) AssignTier(codec, resolution string, bitrateKbps int) (int, string) {
	for i, t := range c.PriorityTiers {
		if t.Matches(codec, resolution, bitrateKbps) {
			return i, t.Name
		}
	}
	return len(c.PriorityTiers), "Other"
}
