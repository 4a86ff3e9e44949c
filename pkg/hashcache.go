package nanodc

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/vectorio"
	zcsl "github.com/mattkeenan/zerocopyskiplist"
	"golang.org/x/sys/unix"
)

// hashCacheEntry is the last known hash of a file at a given size and mtime.
type hashCacheEntry struct {
	Path    string
	Size    int64
	ModTime int64 // unix nanoseconds
	Hash    HashRef
}

// HashCache remembers file hashes across refreshes and restarts. Entries are
// kept in path order. Each refresh starts by marking every entry with
// CacheContext; entries the refresh confirms or adds move to ScanContext and
// only those are written back, so files that disappeared are pruned.
//
// On disk the cache is a text file: one header line
//
//	NDCHC <version> <entry count> <sha1 of the body>
//
// followed by one tab separated record per file:
//
//	<base32 hash> <size> <mtime ns> <quoted path>
type HashCache struct {
	path     string
	mu       sync.Mutex
	skiplist *zcsl.ZeroCopySkiplist[hashCacheEntry, string, string]
}

// NewHashCache creates an empty cache persisted at path.
func NewHashCache(path string) *HashCache {
	return &HashCache{
		path:     path,
		skiplist: newHashCacheSkiplist(),
	}
}

func newHashCacheSkiplist() *zcsl.ZeroCopySkiplist[hashCacheEntry, string, string] {
	return zcsl.MakeZeroCopySkiplist[hashCacheEntry, string, string](
		skiplistMaxLevels,
		func(e *hashCacheEntry) string { return e.Path },
		func(e *hashCacheEntry) int { return len(e.Path) + 64 },
		strings.Compare,
	)
}

// Len returns the number of cached entries.
func (hc *HashCache) Len() int {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.skiplist.Length()
}

// Lookup returns the cached hash for path when size and mtime still match,
// and marks the entry as seen by the current refresh.
func (hc *HashCache) Lookup(path string, size int64, modTime time.Time) (HashRef, bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	node, _ := hc.skiplist.Find(path)
	if node == nil {
		return HashRef{}, false
	}
	entry := node.Item()
	if entry.Size != size || entry.ModTime != modTime.UnixNano() {
		return HashRef{}, false
	}
	hc.skiplist.UpdateContext(path, ScanContext)
	return entry.Hash, true
}

// Store records a freshly computed hash.
func (hc *HashCache) Store(path string, size int64, modTime time.Time, hash HashRef) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.skiplist.Delete(path)
	hc.skiplist.Insert(&hashCacheEntry{
		Path:    path,
		Size:    size,
		ModTime: modTime.UnixNano(),
		Hash:    hash,
	}, ScanContext)
}

// Forget drops the entry for path.
func (hc *HashCache) Forget(path string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.skiplist.Delete(path)
}

// BeginRun marks every entry as unconfirmed.
func (hc *HashCache) BeginRun() {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	var paths []string
	for current := hc.skiplist.First(); current != nil; current = current.Next() {
		if current.Context() != CacheContext {
			paths = append(paths, current.Item().Path)
		}
	}
	for _, p := range paths {
		hc.skiplist.UpdateContext(p, CacheContext)
	}
}

// Prune removes entries that the current refresh did not confirm and
// returns how many were dropped.
func (hc *HashCache) Prune() int {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	var stale []string
	for current := hc.skiplist.First(); current != nil; current = current.Next() {
		if current.Context() == CacheContext {
			stale = append(stale, current.Item().Path)
		}
	}
	for _, p := range stale {
		hc.skiplist.Delete(p)
	}
	return len(stale)
}

// Load replaces the in-memory cache with the file contents. A missing file
// leaves the cache empty.
func (hc *HashCache) Load() error {
	file, err := os.Open(hc.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open hash cache %s: %w", hc.path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat hash cache: %w", err)
	}
	if stat.Size() == 0 {
		return nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("failed to mmap hash cache: %w", err)
	}
	defer unix.Munmap(data)

	entries, err := parseHashCache(data)
	if err != nil {
		return fmt.Errorf("hash cache %s: %w", hc.path, err)
	}

	skiplist := newHashCacheSkiplist()
	for i := range entries {
		skiplist.Insert(&entries[i], CacheContext)
	}

	hc.mu.Lock()
	hc.skiplist = skiplist
	hc.mu.Unlock()

	VerboseLog(2, "Loaded %d hash cache entries from %s", len(entries), hc.path)
	return nil
}

// parseHashCache decodes the file image. Strings are copied out of data so the
// mapping can be released.
func parseHashCache(data []byte) ([]hashCacheEntry, error) {
	headerEnd := bytes.IndexByte(data, '\n')
	if headerEnd < 0 {
		return nil, fmt.Errorf("missing header")
	}
	fields := strings.Fields(string(data[:headerEnd]))
	if len(fields) != 4 || fields[0] != HashCacheSignature {
		return nil, fmt.Errorf("invalid header")
	}
	if version, err := strconv.Atoi(fields[1]); err != nil || version != CurrentHashCacheVersion {
		return nil, fmt.Errorf("unsupported version %s", fields[1])
	}
	count, err := strconv.Atoi(fields[2])
	if err != nil || count < 0 {
		return nil, fmt.Errorf("invalid entry count %s", fields[2])
	}

	body := data[headerEnd+1:]
	sum := sha1.Sum(body)
	if hex.EncodeToString(sum[:]) != fields[3] {
		return nil, fmt.Errorf("checksum mismatch")
	}

	entries := make([]hashCacheEntry, 0, count)
	lineNum := 1
	for len(body) > 0 {
		lineNum++
		end := bytes.IndexByte(body, '\n')
		if end < 0 {
			return nil, fmt.Errorf("line %d: missing newline", lineNum)
		}
		line := string(body[:end])
		body = body[end+1:]

		parts := strings.SplitN(line, "\t", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("line %d: expected 4 fields, got %d", lineNum, len(parts))
		}
		hash, err := ParseHashRef(parts[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid size: %w", lineNum, err)
		}
		modTime, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid mtime: %w", lineNum, err)
		}
		path, err := strconv.Unquote(parts[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid path: %w", lineNum, err)
		}
		entries = append(entries, hashCacheEntry{Path: path, Size: size, ModTime: modTime, Hash: hash})
	}

	if len(entries) != count {
		return nil, fmt.Errorf("expected %d entries, found %d", count, len(entries))
	}
	return entries, nil
}

// Save writes every entry to a temp file with writev and renames it over the
// cache file.
func (hc *HashCache) Save() error {
	hc.mu.Lock()
	var lines [][]byte
	for current := hc.skiplist.First(); current != nil; current = current.Next() {
		e := current.Item()
		line := make([]byte, 0, len(e.Path)+80)
		line = append(line, e.Hash.String()...)
		line = append(line, '\t')
		line = strconv.AppendInt(line, e.Size, 10)
		line = append(line, '\t')
		line = strconv.AppendInt(line, e.ModTime, 10)
		line = append(line, '\t')
		line = strconv.AppendQuote(line, e.Path)
		line = append(line, '\n')
		lines = append(lines, line)
	}
	hc.mu.Unlock()

	checksum := sha1.New()
	for _, line := range lines {
		checksum.Write(line)
	}
	header := []byte(fmt.Sprintf("%s %d %d %s\n", HashCacheSignature, CurrentHashCacheVersion,
		len(lines), hex.EncodeToString(checksum.Sum(nil))))

	tempPath := generateTempFileName(hc.path)
	if err := writeLinesWithVectorIO(tempPath, header, lines); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, hc.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace hash cache: %w", err)
	}

	VerboseLog(2, "Saved %d hash cache entries to %s", len(lines), hc.path)
	return nil
}

// writeLinesWithVectorIO writes header and lines with writev in IOV_MAX sized chunks
func writeLinesWithVectorIO(outputPath string, header []byte, lines [][]byte) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer file.Close()

	iovecs := make([]syscall.Iovec, 0, len(lines)+1)
	total := 0
	for _, b := range append([][]byte{header}, lines...) {
		iovecs = append(iovecs, syscall.Iovec{Base: &b[0], Len: uint64(len(b))})
		total += len(b)
	}

	written := 0
	for offset := 0; offset < len(iovecs); offset += maxIovecs {
		end := offset + maxIovecs
		if end > len(iovecs) {
			end = len(iovecs)
		}
		nw, err := vectorio.WritevRaw(uintptr(file.Fd()), iovecs[offset:end])
		if err != nil {
			return fmt.Errorf("failed to write chunk with vectorio: %w", err)
		}
		expected := 0
		for _, iov := range iovecs[offset:end] {
			expected += int(iov.Len)
		}
		if nw != expected {
			return fmt.Errorf("short write: wrote %d bytes, expected %d", nw, expected)
		}
		written += nw
	}

	if written != total {
		return fmt.Errorf("write incomplete: wrote %d bytes, expected %d", written, total)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", outputPath, err)
	}
	return nil
}

// maxIovecs is UIO_MAXIOV on Linux, the most iovecs one writev accepts.
const maxIovecs = 1024
