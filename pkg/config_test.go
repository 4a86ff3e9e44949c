package nanodc

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	// Create a temporary directory for testing
	tempDir := t.TempDir()

	// Load config (should create default)
	config, err := LoadConfig(tempDir)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	all := config.GetAllConfig()
	if all.Hash.Algorithm != "tree" || all.Hash.Workers != 4 || all.Hash.Buffer != "2M" {
		t.Errorf("Unexpected hash defaults %+v", all.Hash)
	}
	if all.Share.RefreshInterval != time.Hour || all.Share.Symlinks != "contained" || all.Share.IncludeHidden {
		t.Errorf("Unexpected share defaults %+v", all.Share)
	}
	if all.Share.MaxDepth != DefaultMaxTreeDepth {
		t.Errorf("Expected max depth %d, got %d", DefaultMaxTreeDepth, all.Share.MaxDepth)
	}
	if all.Bloom.NGram != DefaultBloomNGram || all.Bloom.FalsePositiveRate != DefaultBloomFPRate {
		t.Errorf("Unexpected bloom defaults %+v", all.Bloom)
	}
	if all.List.Compression != "zstd" || all.List.Generator != DefaultGenerator {
		t.Errorf("Unexpected list defaults %+v", all.List)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}

	// Verify config file was created
	configPath := filepath.Join(tempDir, "config")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}
	if config.Path() != configPath {
		t.Errorf("Expected path %s, got %s", configPath, config.Path())
	}
}

func TestConfigOverrides(t *testing.T) {
	// Create a temporary directory for testing
	tempDir := t.TempDir()

	// Load config
	config, err := LoadConfig(tempDir)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Apply multiple overrides
	err = config.ApplyOverrides([]string{
		"algorithm:sampled",
		"workers: 8",
		"symlinks:all",
		"refresh_interval:5m",
		"compression:lz4",
		"level:2",
		"debug:scan,refresh",
	})
	if err != nil {
		t.Fatalf("Failed to apply overrides: %v", err)
	}

	// Check that all overrides were applied
	allConfig := config.GetAllConfig()

	if allConfig.Hash.Algorithm != "sampled" {
		t.Errorf("Expected hash algorithm 'sampled' after override, got '%s'", allConfig.Hash.Algorithm)
	}
	if allConfig.Hash.Workers != 8 {
		t.Errorf("Expected 8 workers after override, got %d", allConfig.Hash.Workers)
	}
	if allConfig.Share.Symlinks != "all" {
		t.Errorf("Expected symlinks 'all' after override, got '%s'", allConfig.Share.Symlinks)
	}
	if allConfig.Share.RefreshInterval != 5*time.Minute {
		t.Errorf("Expected 5m refresh interval after override, got %v", allConfig.Share.RefreshInterval)
	}
	if allConfig.List.Compression != "lz4" {
		t.Errorf("Expected lz4 compression after override, got '%s'", allConfig.List.Compression)
	}
	if allConfig.Verbose.Level != 2 {
		t.Errorf("Expected verbose level 2 after override, got %d", allConfig.Verbose.Level)
	}
	if allConfig.Verbose.Debug != "scan,refresh" {
		t.Errorf("Expected debug flags 'scan,refresh' after override, got '%s'", allConfig.Verbose.Debug)
	}

	// Overrides are not saved
	reloaded, err := LoadConfig(tempDir)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if reloaded.GetHashConfig().Algorithm != "tree" {
		t.Error("Overrides should not be written to disk")
	}
}

func TestConfigOverrideErrors(t *testing.T) {
	testCases := []string{
		"noseparator",
		"unknown_key:1",
		"algorithm:md5",
		"workers:0",
		"workers:100",
		"symlinks:sometimes",
		"buffer:huge",
		"fp_rate:0.9",
		"ngram:1",
		"compression:gzip",
		"level:7",
	}

	for _, override := range testCases {
		config, err := LoadConfig(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to load config: %v", err)
		}
		if err := config.ApplyOverrides([]string{override}); err == nil {
			t.Errorf("Expected override %q to be rejected", override)
		}
	}
}

func TestConfigSetters(t *testing.T) {
	tempDir := t.TempDir()
	config, err := LoadConfig(tempDir)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if err := config.SetHashAlgorithm("sampled"); err != nil {
		t.Fatalf("SetHashAlgorithm failed: %v", err)
	}
	if err := config.SetHashWorkers(2); err != nil {
		t.Fatalf("SetHashWorkers failed: %v", err)
	}
	if err := config.SetSymlinkMode("none"); err != nil {
		t.Fatalf("SetSymlinkMode failed: %v", err)
	}
	if err := config.SetIncludeHidden(true); err != nil {
		t.Fatalf("SetIncludeHidden failed: %v", err)
	}
	if err := config.SetRefreshInterval(10 * time.Minute); err != nil {
		t.Fatalf("SetRefreshInterval failed: %v", err)
	}
	if err := config.SetCompression("lz4"); err != nil {
		t.Fatalf("SetCompression failed: %v", err)
	}
	if err := config.SetVerboseLevel(1); err != nil {
		t.Fatalf("SetVerboseLevel failed: %v", err)
	}
	if err := config.SetDebugFlags("hash"); err != nil {
		t.Fatalf("SetDebugFlags failed: %v", err)
	}

	if err := config.SetHashAlgorithm("crc32"); err == nil {
		t.Error("Expected an invalid algorithm to be rejected")
	}
	if err := config.SetHashWorkers(-1); err == nil {
		t.Error("Expected an invalid worker count to be rejected")
	}
	if err := config.SetSymlinkMode("maybe"); err == nil {
		t.Error("Expected an invalid symlink mode to be rejected")
	}
	if err := config.SetCompression("bzip2"); err == nil {
		t.Error("Expected an invalid codec to be rejected")
	}

	reloaded, err := LoadConfig(tempDir)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	all := reloaded.GetAllConfig()
	if all.Hash.Algorithm != "sampled" || all.Hash.Workers != 2 {
		t.Errorf("Hash settings not saved: %+v", all.Hash)
	}
	if all.Share.Symlinks != "none" || !all.Share.IncludeHidden || all.Share.RefreshInterval != 10*time.Minute {
		t.Errorf("Share settings not saved: %+v", all.Share)
	}
	if all.List.Compression != "lz4" {
		t.Errorf("List settings not saved: %+v", all.List)
	}
	if all.Verbose.Level != 1 || all.Verbose.Debug != "hash" {
		t.Errorf("Verbose settings not saved: %+v", all.Verbose)
	}
}

func TestConfigToleratesBadValues(t *testing.T) {
	tempDir := t.TempDir()
	content := `[share]
refresh_interval = soon
max_depth = -3

[hash]
workers = many
`
	if err := os.WriteFile(filepath.Join(tempDir, ConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := LoadConfig(tempDir)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	share := config.GetShareConfig()
	if share.RefreshInterval != time.Hour || share.MaxDepth != DefaultMaxTreeDepth {
		t.Errorf("Unparseable values should fall back to defaults, got %+v", share)
	}
	if config.GetHashConfig().Workers != 4 {
		t.Errorf("Expected default workers, got %d", config.GetHashConfig().Workers)
	}
	if len(config.GetShares()) != 0 {
		t.Error("A config without a shares section has no shares")
	}
}

func TestValidators(t *testing.T) {
	if err := ValidateHashAlgorithm("Tree"); err != nil {
		t.Errorf("Algorithm names are case-insensitive: %v", err)
	}
	if err := ValidateVerboseLevel(3); err != nil {
		t.Errorf("Level 3 should be valid: %v", err)
	}
	if err := ValidateVerboseLevel(-1); err == nil {
		t.Error("Negative level should be invalid")
	}
	if err := ValidateFalsePositiveRate(0); err == nil {
		t.Error("Zero false positive rate should be invalid")
	}
	if err := ValidateNGram(17); err == nil {
		t.Error("N-gram 17 should be invalid")
	}
	if err := ValidateCompression("ZSTD"); err != nil {
		t.Errorf("Codec names are case-insensitive: %v", err)
	}
}
