package nanodc

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestParseHumanSize(t *testing.T) {
	testCases := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"100", 100, false},
		{"100B", 100, false},
		{"2k", 2048, false},
		{"2KB", 2048, false},
		{"1.5M", 1572864, false},
		{" 1G ", 1 << 30, false},
		{"1T", 1 << 40, false},
		{"", 0, true},
		{"M", 0, true},
		{"0", 0, true},
		{"12X", 0, true},
		{"1.2.3K", 0, true},
	}

	for _, tc := range testCases {
		got, err := ParseHumanSize(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseHumanSize(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseHumanSize(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestFormatHumanSize(t *testing.T) {
	testCases := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1_000_000, "976.6 KiB"},
		{5 << 30, "5.0 GiB"},
	}

	for _, tc := range testCases {
		if got := FormatHumanSize(tc.size); got != tc.want {
			t.Errorf("FormatHumanSize(%d) = %q, want %q", tc.size, got, tc.want)
		}
	}
}

func TestGenerateTempFileName(t *testing.T) {
	target := filepath.Join(t.TempDir(), HashCacheFile)

	name := generateTempFileName(target)
	if filepath.Dir(name) != filepath.Dir(target) {
		t.Errorf("Temp file %s should sit next to %s", name, target)
	}
	if !strings.HasPrefix(filepath.Base(name), HashCacheFile+"-") || !strings.HasSuffix(name, ".tmp") {
		t.Errorf("Temp file %s should match %s-{pid}-{time}.tmp", name, HashCacheFile)
	}
	if other := generateTempFileName(target); other == name {
		t.Errorf("Generated filenames should be unique: %s == %s", name, other)
	}
}
