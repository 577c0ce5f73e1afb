package config

import "testing"

func TestAssignTierOrdering(t *testing.T) {
	c := New("/staging", "/report.json")

	idx, name := c.AssignTier("h264", Res1080p, 4000)
	if idx != 0 || name != "H.264 1080p" {
		t.Fatalf("h264/1080p: got tier %d %q, want 0 H.264 1080p", idx, name)
	}

	idx, name = c.AssignTier("hevc", Res4K, 30000)
	if idx != 2 || name != "Bloated HEVC 4K" {
		t.Fatalf("bloated hevc 4K: got tier %d %q, want 2 Bloated HEVC 4K", idx, name)
	}

	idx, name = c.AssignTier("av1", Res1080p, 3000)
	if idx != len(c.PriorityTiers)-1 || name != "Other codecs" {
		t.Fatalf("codec with no specific tier should fall into the catch-all Other codecs tier, got %d %q", idx, name)
	}
}

func TestResolveEncodeParamsFallback(t *testing.T) {
	c := New("/staging", "/report.json")

	p := c.ResolveEncodeParams("movie", Res1080p, false)
	if p.CQ != 28 || p.Preset != "p5" {
		t.Fatalf("movie/1080p: got %+v", p)
	}

	p = c.ResolveEncodeParams("movie", "2160p-weird", false)
	if p.CQ != fallbackParams.CQ || p.Preset != fallbackParams.Preset {
		t.Fatalf("unknown res_key should fall back to hard default, got %+v", p)
	}
}

func TestContentTypeMapping(t *testing.T) {
	cases := map[string]string{
		"movie": "movie",
		"Show":  "series",
		"TV":    "series",
		"anime": "series",
		"":      "movie",
	}
	for in, want := range cases {
		if got := ContentType(in); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResKey4KHDRSplit(t *testing.T) {
	if got := ResKey(Res4K, true); got != "4K_HDR" {
		t.Errorf("4K HDR res key = %q, want 4K_HDR", got)
	}
	if got := ResKey(Res4K, false); got != "4K_SDR" {
		t.Errorf("4K SDR res key = %q, want 4K_SDR", got)
	}
	if got := ResKey(Res1080p, true); got != Res1080p {
		t.Errorf("1080p res key should not split on HDR, got %q", got)
	}
}

func TestBloatedHevcTierThresholdsMatchOriginal(t *testing.T) {
	c := New("/staging", "/report.json")

	// Just under the bloated-1080p floor falls through to plain "HEVC 1080p".
	idx, name := c.AssignTier("hevc", Res1080p, 14999)
	if name != "HEVC 1080p" {
		t.Fatalf("hevc/1080p @14999kbps: got tier %d %q, want HEVC 1080p", idx, name)
	}
	idx, name = c.AssignTier("hevc", Res1080p, 15000)
	if name != "Bloated HEVC 1080p" {
		t.Fatalf("hevc/1080p @15000kbps: got tier %d %q, want Bloated HEVC 1080p", idx, name)
	}

	idx, name = c.AssignTier("hevc", Res4K, 24999)
	if name != "HEVC 4K >20Mbps" {
		t.Fatalf("hevc/4K @24999kbps: got tier %d %q, want HEVC 4K >20Mbps", idx, name)
	}
	idx, name = c.AssignTier("hevc", Res4K, 25000)
	if name != "Bloated HEVC 4K" {
		t.Fatalf("hevc/4K @25000kbps: got tier %d %q, want Bloated HEVC 4K", idx, name)
	}
}

func TestResolveEncodeParams4KMovieSetsRateCap(t *testing.T) {
	c := New("/staging", "/report.json")

	p := c.ResolveEncodeParams("movie", Res4K, true)
	if p.CQ != 22 || p.Preset != "p7" || p.MaxRate != "40M" || p.BufSize != "80M" {
		t.Fatalf("movie/4K_HDR: got %+v", p)
	}

	p = c.ResolveEncodeParams("movie", Res720p, false)
	if p.MaxRate != "" || p.BufSize != "" {
		t.Fatalf("movie/720p should have no rate cap, got %+v", p)
	}
}

func TestLosslessAudioCodecsIncludesPCMVariants(t *testing.T) {
	c := New("/staging", "/report.json")
	for _, codec := range []string{"pcm_s24le", "pcm_s16be", "flac", "truehd", "dts-hd ma", "alac"} {
		if !c.LosslessAudioCodecs[codec] {
			t.Errorf("expected %q to be treated as lossless", codec)
		}
	}
	if c.LosslessAudioCodecs["pcm"] {
		t.Error("bare \"pcm\" is not a real ffprobe codec string and should not be present")
	}
}

func TestValidateRejectsBadAudioMode(t *testing.T) {
	c := New("/staging", "/report.json")
	c.AudioMode = "lossless-please"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for invalid audio mode")
	}
}
