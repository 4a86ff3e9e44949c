package nanodc

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// IgnoreManager handles the regex patterns of virtual paths that are never shared
type IgnoreManager struct {
	ignorePath string
	mu         sync.RWMutex
	patterns   []*regexp.Regexp // from the ignore file
	session    []*regexp.Regexp // added with AddPattern, kept across reloads
	loaded     bool
}

// NewIgnoreManager creates an ignore manager for <stateDir>/ignore
func NewIgnoreManager(stateDir string) *IgnoreManager {
	return &IgnoreManager{
		ignorePath: filepath.Join(stateDir, IgnoreFile),
	}
}

// LoadIgnorePatterns loads ignore patterns from the ignore file
func (im *IgnoreManager) LoadIgnorePatterns() error {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.loaded {
		return nil
	}

	patterns, err := im.readIgnoreFile()
	if err != nil {
		return err
	}
	im.patterns = patterns
	im.loaded = true
	return nil
}

// readIgnoreFile parses the ignore file, creating it when missing.
func (im *IgnoreManager) readIgnoreFile() ([]*regexp.Regexp, error) {
	if _, err := os.Stat(im.ignorePath); os.IsNotExist(err) {
		if err := im.createEmptyIgnoreFile(); err != nil {
			return nil, fmt.Errorf("failed to create ignore file: %w", err)
		}
		return nil, nil
	}

	file, err := os.Open(im.ignorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer file.Close()

	var patterns []*regexp.Regexp
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		pattern, err := regexp.Compile(line)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern at line %d: %s - %w", lineNum, line, err)
		}

		patterns = append(patterns, pattern)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ignore file: %w", err)
	}

	return patterns, nil
}

// ShouldIgnore checks a slash separated virtual path against the patterns
func (im *IgnoreManager) ShouldIgnore(virtualPath string) bool {
	im.mu.RLock()
	defer im.mu.RUnlock()

	for _, pattern := range im.patterns {
		if pattern.MatchString(virtualPath) {
			return true
		}
	}
	for _, pattern := range im.session {
		if pattern.MatchString(virtualPath) {
			return true
		}
	}

	return false
}

func (im *IgnoreManager) createEmptyIgnoreFile() error {
	if err := os.MkdirAll(filepath.Dir(im.ignorePath), 0755); err != nil {
		return err
	}

	return os.WriteFile(im.ignorePath, []byte(`# nanodc ignore patterns
#
# Regular expressions matched against virtual paths (e.g. "Music/live/track.mp3").
# Matching files and directories are left out of the share.
# Lines starting with # are comments. Empty lines are ignored.
#
# Examples:
# (^|/)\.DS_Store$      # macOS folder metadata
# (^|/)Thumbs\.db$      # Windows thumbnail cache
# \.part$               # unfinished downloads
`), 0644)
}

// AddPattern adds an ignore pattern for the lifetime of this manager. It is
// not written to the ignore file.
func (im *IgnoreManager) AddPattern(patternStr string) error {
	pattern, err := regexp.Compile(patternStr)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %s - %w", patternStr, err)
	}

	im.mu.Lock()
	im.session = append(im.session, pattern)
	im.mu.Unlock()
	return nil
}

// Patterns returns the loaded patterns as strings
func (im *IgnoreManager) Patterns() []string {
	im.mu.RLock()
	defer im.mu.RUnlock()

	out := make([]string, 0, len(im.patterns)+len(im.session))
	for _, p := range im.patterns {
		out = append(out, p.String())
	}
	for _, p := range im.session {
		out = append(out, p.String())
	}
	return out
}

// Reload re-reads the ignore file. On error the previous file patterns stay
// in effect. Session patterns are kept.
func (im *IgnoreManager) Reload() error {
	patterns, err := im.readIgnoreFile()
	if err != nil {
		return err
	}
	im.mu.Lock()
	im.patterns = patterns
	im.loaded = true
	im.mu.Unlock()
	return nil
}
