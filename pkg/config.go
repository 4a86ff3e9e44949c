package nanodc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

// Config represents the share configuration stored in <state dir>/config
type Config struct {
	configPath string
	ini        *ini.File
}

// ShareConfig represents scanning and refresh configuration
type ShareConfig struct {
	RefreshInterval time.Duration // Periodic refresh interval, 0 disables
	Symlinks        string        // Symlink mode: all, contained, none
	IncludeHidden   bool          // Share dot files and dot directories
	MaxDepth        int           // Maximum virtual tree depth
}

// HashConfig represents hash algorithm configuration
type HashConfig struct {
	Algorithm string // tree or sampled
	Workers   int    // Number of concurrent hash workers (default: 4)
	Buffer    string // Read buffer size (default: "2M")
}

// BloomConfig represents search pre-filter tuning
type BloomConfig struct {
	FalsePositiveRate float64 // Target false positive rate (default: 0.01)
	NGram             int     // Indexed substring length (default: 5)
	ExpectedTerms     int     // Minimum number of n-grams to size for
}

// ListConfig represents file list configuration
type ListConfig struct {
	Compression string // zstd or lz4
	Generator   string // Generator attribute of the file list
}

// VerboseConfig represents verbosity configuration
type VerboseConfig struct {
	Level int    // Default verbose level (0=quiet, 1=basic, 2=detailed, 3=trace)
	Debug string // Default debug flags (comma-separated)
}

// AllConfig represents all configuration options
type AllConfig struct {
	Share   *ShareConfig
	Hash    *HashConfig
	Bloom   *BloomConfig
	List    *ListConfig
	Verbose *VerboseConfig
}

// defaultSettings lists every section and key written to a fresh config.
var defaultSettings = []struct {
	section string
	keys    [][2]string
}{
	{"share", [][2]string{{"refresh_interval", "1h"}, {"symlinks", "contained"}, {"include_hidden", "false"}, {"max_depth", strconv.Itoa(DefaultMaxTreeDepth)}}},
	{"hash", [][2]string{{"algorithm", "tree"}, {"workers", "4"}, {"buffer", "2M"}}},
	{"bloom", [][2]string{{"fp_rate", "0.01"}, {"ngram", strconv.Itoa(DefaultBloomNGram)}, {"expected_terms", strconv.Itoa(DefaultBloomExpectedTerms)}}},
	{"list", [][2]string{{"compression", DefaultCompressor}, {"generator", DefaultGenerator}}},
	{"verbose", [][2]string{{"level", "0"}, {"debug", ""}}},
}

// LoadConfig loads configuration from <stateDir>/config, creating it with
// defaults when missing.
func LoadConfig(stateDir string) (*Config, error) {
	configPath := filepath.Join(stateDir, ConfigFile)

	cfg := &Config{
		configPath: configPath,
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(); err != nil {
			return nil, fmt.Errorf("failed to set default config: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	} else {
		iniFile, err := ini.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg.ini = iniFile
	}

	return cfg, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() error {
	for _, def := range defaultSettings {
		section, err := c.ini.NewSection(def.section)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", def.section, err)
		}
		for _, kv := range def.keys {
			if _, err := section.NewKey(kv[0], kv[1]); err != nil {
				return fmt.Errorf("failed to set default %s.%s: %w", def.section, kv[0], err)
			}
		}
	}
	if _, err := c.ini.NewSection("shares"); err != nil {
		return fmt.Errorf("failed to create shares section: %w", err)
	}
	return nil
}

// Path returns the config file location
func (c *Config) Path() string {
	return c.configPath
}

// lookup returns the raw value of section.key, or "" and false.
func (c *Config) lookup(section, key string) (*ini.Key, bool) {
	if !c.ini.HasSection(section) {
		return nil, false
	}
	s := c.ini.Section(section)
	if !s.HasKey(key) {
		return nil, false
	}
	return s.Key(key), true
}

// GetShareConfig returns the share configuration
func (c *Config) GetShareConfig() *ShareConfig {
	shareConfig := &ShareConfig{
		RefreshInterval: time.Hour,
		Symlinks:        "contained",
		IncludeHidden:   false,
		MaxDepth:        DefaultMaxTreeDepth,
	}

	if key, ok := c.lookup("share", "refresh_interval"); ok {
		if d, err := time.ParseDuration(key.String()); err == nil {
			shareConfig.RefreshInterval = d
		}
	}
	if key, ok := c.lookup("share", "symlinks"); ok {
		shareConfig.Symlinks = strings.ToLower(key.String())
	}
	if key, ok := c.lookup("share", "include_hidden"); ok {
		if b, err := key.Bool(); err == nil {
			shareConfig.IncludeHidden = b
		}
	}
	if key, ok := c.lookup("share", "max_depth"); ok {
		if depth, err := key.Int(); err == nil && depth > 0 {
			shareConfig.MaxDepth = depth
		}
	}

	return shareConfig
}

// GetHashConfig returns the hash configuration
func (c *Config) GetHashConfig() *HashConfig {
	hashConfig := &HashConfig{
		Algorithm: "tree",
		Workers:   4,
		Buffer:    "2M",
	}

	if key, ok := c.lookup("hash", "algorithm"); ok {
		hashConfig.Algorithm = key.String()
	}
	if key, ok := c.lookup("hash", "workers"); ok {
		if workers, err := key.Int(); err == nil {
			hashConfig.Workers = workers
		}
	}
	if key, ok := c.lookup("hash", "buffer"); ok && key.String() != "" {
		hashConfig.Buffer = key.String()
	}

	return hashConfig
}

// GetBloomConfig returns the Bloom filter configuration
func (c *Config) GetBloomConfig() *BloomConfig {
	bloomConfig := &BloomConfig{
		FalsePositiveRate: DefaultBloomFPRate,
		NGram:             DefaultBloomNGram,
		ExpectedTerms:     DefaultBloomExpectedTerms,
	}

	if key, ok := c.lookup("bloom", "fp_rate"); ok {
		if rate, err := key.Float64(); err == nil {
			bloomConfig.FalsePositiveRate = rate
		}
	}
	if key, ok := c.lookup("bloom", "ngram"); ok {
		if n, err := key.Int(); err == nil {
			bloomConfig.NGram = n
		}
	}
	if key, ok := c.lookup("bloom", "expected_terms"); ok {
		if n, err := key.Int(); err == nil {
			bloomConfig.ExpectedTerms = n
		}
	}

	return bloomConfig
}

// GetListConfig returns the file list configuration
func (c *Config) GetListConfig() *ListConfig {
	listConfig := &ListConfig{
		Compression: DefaultCompressor,
		Generator:   DefaultGenerator,
	}

	if key, ok := c.lookup("list", "compression"); ok {
		listConfig.Compression = strings.ToLower(key.String())
	}
	if key, ok := c.lookup("list", "generator"); ok && key.String() != "" {
		listConfig.Generator = key.String()
	}

	return listConfig
}

// GetVerboseConfig returns the verbose configuration
func (c *Config) GetVerboseConfig() *VerboseConfig {
	verboseConfig := &VerboseConfig{}

	if key, ok := c.lookup("verbose", "level"); ok {
		if level, err := key.Int(); err == nil {
			verboseConfig.Level = level
		}
	}
	if key, ok := c.lookup("verbose", "debug"); ok {
		verboseConfig.Debug = key.String()
	}

	return verboseConfig
}

// GetAllConfig returns all configuration options
func (c *Config) GetAllConfig() *AllConfig {
	return &AllConfig{
		Share:   c.GetShareConfig(),
		Hash:    c.GetHashConfig(),
		Bloom:   c.GetBloomConfig(),
		List:    c.GetListConfig(),
		Verbose: c.GetVerboseConfig(),
	}
}

// GetShares returns the persisted namespace map in file order. Each mapping
// is stored as shareN = "virtual" "real" with Go quoting, so any name
// survives the ini syntax. A plain "virtual = real" line is also accepted.
func (c *Config) GetShares() []ShareMapping {
	if !c.ini.HasSection("shares") {
		return nil
	}
	var shares []ShareMapping
	for _, key := range c.ini.Section("shares").Keys() {
		if m, ok := parseShareValue(key.Value()); ok {
			shares = append(shares, m)
			continue
		}
		shares = append(shares, ShareMapping{Virtual: key.Name(), Real: key.Value()})
	}
	return shares
}

// parseShareValue splits `"virtual" "real"`.
func parseShareValue(value string) (ShareMapping, bool) {
	first, err := strconv.QuotedPrefix(value)
	if err != nil {
		return ShareMapping{}, false
	}
	rest := strings.TrimSpace(value[len(first):])
	second, err := strconv.QuotedPrefix(rest)
	if err != nil || len(second) != len(rest) {
		return ShareMapping{}, false
	}
	virtual, err := strconv.Unquote(first)
	if err != nil {
		return ShareMapping{}, false
	}
	realPath, err := strconv.Unquote(second)
	if err != nil {
		return ShareMapping{}, false
	}
	return ShareMapping{Virtual: virtual, Real: realPath}, true
}

// SetShares replaces the persisted namespace map and saves
func (c *Config) SetShares(shares []ShareMapping) error {
	c.ini.DeleteSection("shares")
	section, err := c.ini.NewSection("shares")
	if err != nil {
		return fmt.Errorf("failed to create shares section: %w", err)
	}
	for i, m := range shares {
		value := strconv.Quote(m.Virtual) + " " + strconv.Quote(m.Real)
		if _, err := section.NewKey(fmt.Sprintf("share%d", i+1), value); err != nil {
			return fmt.Errorf("failed to store share %s: %w", m.Virtual, err)
		}
	}
	return c.Save()
}

// set writes section.key without saving.
func (c *Config) set(section, key, value string) {
	c.ini.Section(section).Key(key).SetValue(value)
}

// SetRefreshInterval sets the periodic refresh interval
func (c *Config) SetRefreshInterval(d time.Duration) error {
	c.set("share", "refresh_interval", d.String())
	return c.Save()
}

// SetSymlinkMode sets the symlink mode
func (c *Config) SetSymlinkMode(mode string) error {
	if err := ValidateSymlinkMode(mode); err != nil {
		return err
	}
	c.set("share", "symlinks", mode)
	return c.Save()
}

// SetIncludeHidden sets whether hidden files are shared
func (c *Config) SetIncludeHidden(include bool) error {
	c.set("share", "include_hidden", strconv.FormatBool(include))
	return c.Save()
}

// SetHashAlgorithm sets the hash algorithm
func (c *Config) SetHashAlgorithm(algorithm string) error {
	if err := ValidateHashAlgorithm(algorithm); err != nil {
		return err
	}
	c.set("hash", "algorithm", algorithm)
	return c.Save()
}

// SetHashWorkers sets the number of hash workers
func (c *Config) SetHashWorkers(workers int) error {
	if err := ValidateHashWorkers(workers); err != nil {
		return err
	}
	c.set("hash", "workers", strconv.Itoa(workers))
	return c.Save()
}

// SetCompression sets the file list codec
func (c *Config) SetCompression(codec string) error {
	if err := ValidateCompression(codec); err != nil {
		return err
	}
	c.set("list", "compression", codec)
	return c.Save()
}

// SetVerboseLevel sets the default verbose level
func (c *Config) SetVerboseLevel(level int) error {
	c.set("verbose", "level", strconv.Itoa(level))
	return c.Save()
}

// SetDebugFlags sets the default debug flags
func (c *Config) SetDebugFlags(debug string) error {
	c.set("verbose", "debug", debug)
	return c.Save()
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	return c.ini.SaveTo(c.configPath)
}

// overrideKeys maps an override key to its section.
var overrideKeys = map[string]string{
	"refresh_interval": "share",
	"symlinks":         "share",
	"include_hidden":   "share",
	"max_depth":        "share",
	"algorithm":        "hash",
	"workers":          "hash",
	"buffer":           "hash",
	"fp_rate":          "bloom",
	"ngram":            "bloom",
	"expected_terms":   "bloom",
	"compression":      "list",
	"generator":        "list",
	"level":            "verbose",
	"debug":            "verbose",
}

// ApplyOverrides applies command-line overrides to the configuration without
// saving them. Accepts strings like "symlinks:none", "workers:8", "debug:scan".
func (c *Config) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		parts := strings.SplitN(override, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid override format '%s', expected 'key:value'", override)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		section, ok := overrideKeys[key]
		if !ok {
			return fmt.Errorf("unsupported override key '%s'", key)
		}
		c.set(section, key, value)
	}

	return c.Validate()
}

// Validate checks every setting that has a restricted range
func (c *Config) Validate() error {
	all := c.GetAllConfig()
	if err := ValidateSymlinkMode(all.Share.Symlinks); err != nil {
		return err
	}
	if err := ValidateHashAlgorithm(all.Hash.Algorithm); err != nil {
		return err
	}
	if err := ValidateHashWorkers(all.Hash.Workers); err != nil {
		return err
	}
	if _, err := ParseHumanSize(all.Hash.Buffer); err != nil {
		return fmt.Errorf("invalid hash buffer: %w", err)
	}
	if err := ValidateFalsePositiveRate(all.Bloom.FalsePositiveRate); err != nil {
		return err
	}
	if err := ValidateNGram(all.Bloom.NGram); err != nil {
		return err
	}
	if err := ValidateCompression(all.List.Compression); err != nil {
		return err
	}
	return ValidateVerboseLevel(all.Verbose.Level)
}

// ValidateHashAlgorithm validates that a hash algorithm is supported
func ValidateHashAlgorithm(algorithm string) error {
	if _, ok := HashTypeFromName(algorithm); !ok {
		return fmt.Errorf("unsupported hash algorithm: %s (supported: tree, sampled)", algorithm)
	}
	return nil
}

// ValidateVerboseLevel validates that a verbose level is valid
func ValidateVerboseLevel(level int) error {
	if level < 0 || level > 3 {
		return fmt.Errorf("invalid verbose level: %d (supported: 0-3)", level)
	}
	return nil
}

// ValidateSymlinkMode validates that a symlink mode is supported
func ValidateSymlinkMode(mode string) error {
	switch strings.ToLower(mode) {
	case "all", "contained", "none":
		return nil
	default:
		return fmt.Errorf("unsupported symlink mode: %s (supported: all, contained, none)", mode)
	}
}

// ValidateHashWorkers validates that the hash worker count is reasonable
func ValidateHashWorkers(workers int) error {
	if workers < 1 {
		return fmt.Errorf("hash workers must be at least 1, got: %d", workers)
	}
	if workers > 64 {
		return fmt.Errorf("hash workers should not exceed 64, got: %d", workers)
	}
	return nil
}

// ValidateFalsePositiveRate checks the Bloom filter target rate
func ValidateFalsePositiveRate(rate float64) error {
	if rate <= 0 || rate >= 0.5 {
		return fmt.Errorf("bloom false positive rate must be in (0, 0.5), got: %g", rate)
	}
	return nil
}

// ValidateNGram checks the Bloom filter substring length
func ValidateNGram(n int) error {
	if n < 2 || n > 16 {
		return fmt.Errorf("bloom ngram must be between 2 and 16, got: %d", n)
	}
	return nil
}

// ValidateCompression validates that a file list codec is supported
func ValidateCompression(codec string) error {
	switch strings.ToLower(codec) {
	case "zstd", "lz4":
		return nil
	default:
		return fmt.Errorf("unsupported compression: %s (supported: zstd, lz4)", codec)
	}
}
