package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHashPrefixIsDeterministicAnd12Chars(t *testing.T) {
	a := HashPrefix("/nas/movies/Interstellar.mkv")
	b := HashPrefix("/nas/movies/Interstellar.mkv")
	if a != b {
		t.Fatalf("hash should be deterministic: %q != %q", a, b)
	}
	if len(a) != 12 {
		t.Fatalf("expected 12 hex chars, got %q (%d)", a, len(a))
	}
	if c := HashPrefix("/nas/movies/Other.mkv"); c == a {
		t.Fatalf("different sources should hash differently")
	}
}

func TestDirUsageSumsRegularFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.bin"), make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}

	usage, err := DirUsage(dir)
	if err != nil {
		t.Fatalf("DirUsage: %v", err)
	}
	if usage != 150 {
		t.Fatalf("usage = %d, want 150", usage)
	}
}

func TestDirUsageMissingDirIsZero(t *testing.T) {
	usage, err := DirUsage(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("DirUsage on missing dir should not error: %v", err)
	}
	if usage != 0 {
		t.Fatalf("usage = %d, want 0", usage)
	}
}

func TestFormatDurationBuckets(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{3*time.Minute + 40*time.Second, "3m 40s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.in); got != c.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
