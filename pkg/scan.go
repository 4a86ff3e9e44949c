package nanodc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// scannedFile is a regular file found during a scan, waiting for its hash.
type scannedFile struct {
	RealPath string
	Dir      *Directory
	Name     string
	Size     int64
	ModTime  time.Time

	Hash   HashRef
	Failed bool
}

// errSkipSymlink marks a symlink left out by the symlink policy; not a warning.
var errSkipSymlink = errors.New("symlink skipped by policy")

// scanner walks share roots into a fresh tree. It never touches the live
// share; everything it finds is collected for the hashing and indexing phases.
type scanner struct {
	symlinkMode   string
	includeHidden bool
	ignore        *IgnoreManager
	cancelled     func() bool

	files       []*scannedFile
	directories int
	warnings    []error

	// owners records the physical directory each virtual directory came from
	owners map[*Directory]string
}

func newScanner(sc *ShareConfig, ignore *IgnoreManager, cancelled func() bool) *scanner {
	return &scanner{
		symlinkMode:   strings.ToLower(sc.Symlinks),
		includeHidden: sc.IncludeHidden,
		ignore:        ignore,
		cancelled:     cancelled,
		owners:        make(map[*Directory]string),
	}
}

func (s *scanner) warn(path, op string, err error) {
	w := &IOWarning{Path: path, Op: op, Err: err}
	s.warnings = append(s.warnings, w)
	debugLog("scan", "%v", w)
}

// pendingDir is a physical directory waiting to be read.
type pendingDir struct {
	realPath string
	dir      *Directory
}

// scanShare walks one mapping into root under its virtual name. Directories
// are read depth first in name order. A physical directory reached twice
// within one share (a symlink cycle or a link back into the share) is read
// only the first time. Overlapping shares are scanned independently.
func (s *scanner) scanShare(root *Directory, mapping ShareMapping) error {
	defer VerboseEnter()()

	top, err := root.GetOrCreateSubdirectory(mapping.Virtual)
	if err != nil {
		s.warn(mapping.Real, "depth", err)
		return nil
	}

	shareRoot, err := filepath.EvalSymlinks(mapping.Real)
	if err != nil {
		s.warn(mapping.Real, "stat", err)
		return nil
	}

	visited := make(map[string]string)
	claimed := make(map[*Directory]bool)
	stack := []pendingDir{{realPath: mapping.Real, dir: top}}
	for len(stack) > 0 {
		if s.cancelled() {
			return ErrRefreshCancelled
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		canonical, err := filepath.EvalSymlinks(current.realPath)
		if err != nil {
			s.warn(current.realPath, "stat", err)
			continue
		}
		if first, seen := visited[canonical]; seen {
			s.warn(current.realPath, "revisit", fmt.Errorf("already shared as %s", first))
			if !claimed[current.dir] {
				current.dir.parent.RemoveSubdirectory(current.dir.name)
			}
			continue
		}
		visited[canonical] = current.dir.VirtualPath()
		claimed[current.dir] = true
		s.directories++

		subdirs := s.readDir(current, shareRoot)
		// push in reverse so siblings pop in name order
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	VerboseLog(2, "Scanned share %s (%s): %d files so far", mapping.Virtual, mapping.Real, len(s.files))
	return nil
}

// readDir records the files of one directory and returns its subdirectories.
func (s *scanner) readDir(current pendingDir, shareRoot string) []pendingDir {
	entries, err := os.ReadDir(current.realPath)
	if err != nil {
		s.warn(current.realPath, "readdir", err)
		return nil
	}

	var subdirs []pendingDir
	for _, entry := range entries {
		name := entry.Name()
		if !s.includeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		realPath := filepath.Join(current.realPath, name)
		virtualPath := joinVirtual(current.dir.VirtualPath(), name)
		if s.ignore != nil && s.ignore.ShouldIgnore(virtualPath) {
			debugLog("scan", "ignoring %s", virtualPath)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.warn(realPath, "stat", err)
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			info, err = s.followSymlink(realPath, shareRoot)
			if errors.Is(err, errSkipSymlink) {
				debugLog("scan", "skipping symlink %s", realPath)
				continue
			}
			if err != nil {
				s.warn(realPath, "symlink", err)
				continue
			}
		}

		switch {
		case info.IsDir():
			sub, err := current.dir.GetOrCreateSubdirectory(name)
			if err != nil {
				s.warn(realPath, "depth", err)
				continue
			}
			// names differing only by case share one virtual directory
			if owner, ok := s.owners[sub]; ok && owner != realPath {
				s.warn(realPath, "insert", fmt.Errorf("%w: %s", ErrDuplicateName, virtualPath))
				continue
			}
			s.owners[sub] = realPath
			subdirs = append(subdirs, pendingDir{realPath: realPath, dir: sub})
		case info.Mode().IsRegular():
			s.files = append(s.files, &scannedFile{
				RealPath: realPath,
				Dir:      current.dir,
				Name:     name,
				Size:     info.Size(),
				ModTime:  info.ModTime(),
			})
		}
	}
	return subdirs
}

// followSymlink applies the symlink policy and returns the target's info.
func (s *scanner) followSymlink(realPath, shareRoot string) (os.FileInfo, error) {
	if s.symlinkMode == "none" {
		return nil, errSkipSymlink
	}

	info, err := os.Stat(realPath)
	if err != nil {
		return nil, err
	}

	if s.symlinkMode == "contained" {
		target, err := filepath.EvalSymlinks(realPath)
		if err != nil {
			return nil, err
		}
		if !isPathContained(target, shareRoot) {
			return nil, errSkipSymlink
		}
	}
	return info, nil
}
