package nanodc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// ShareManager owns the share: the namespace map, the live tree and its
// indexes, the hash cache and the refresh worker. All methods are safe for
// concurrent use. Queries take a read lock and never wait on disk; refreshes
// build a new tree off to the side and swap it in under a short write lock.
type ShareManager struct {
	stateDir string

	// configMu serialises config reads and writes. Lock order: configMu, mu.
	configMu sync.Mutex
	config   *Config

	mu    sync.RWMutex
	ns    *NamespaceMap
	nsGen uint64
	live  *shareSnapshot

	// listGen changes whenever the live tree does; guarded by mu.
	listGen   uint64
	listMu    sync.Mutex
	listCache *cachedList

	hasher Hasher
	cache  *HashCache
	ignore *IgnoreManager

	state           atomic.Int32
	cancelRequested atomic.Bool
	refreshInbox    chan *refreshRequest

	ctx       context.Context
	stop      context.CancelFunc
	closing   chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// ManagerOptions tune NewShareManager. The zero value is valid.
type ManagerOptions struct {
	// Hasher replaces the hasher chosen by the hash config.
	Hasher Hasher
	// Overrides are "key:value" config overrides applied for this session.
	Overrides []string
	// RefreshOnStart queues a refresh as soon as the manager starts.
	RefreshOnStart bool
	// RefreshInterval overrides share.refresh_interval when non-zero; negative disables.
	RefreshInterval time.Duration
	// IgnorePatterns are regexps added to the ignore file's for this session.
	IgnorePatterns []string
}

// NewShareManager loads the state in stateDir (config, shares, hash cache and
// ignore patterns) and starts the refresh worker. The share is empty until
// the first refresh completes.
func NewShareManager(stateDir string, opts *ManagerOptions) (*ShareManager, error) {
	defer VerboseEnter()()

	if opts == nil {
		opts = &ManagerOptions{}
	}

	absStateDir, err := filepath.Abs(stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}

	config, err := LoadConfig(absStateDir)
	if err != nil {
		return nil, err
	}
	if len(opts.Overrides) > 0 {
		if err := config.ApplyOverrides(opts.Overrides); err != nil {
			return nil, fmt.Errorf("invalid config override: %w", err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", config.Path(), err)
	}

	verboseConfig := config.GetVerboseConfig()
	if verboseConfig.Level > GetVerboseLevel() {
		SetVerboseLevel(verboseConfig.Level)
	}
	if verboseConfig.Debug != "" {
		SetDebugFlags(verboseConfig.Debug)
	}

	hasher := opts.Hasher
	if hasher == nil {
		hasher, err = newConfiguredHasher(config.GetHashConfig())
		if err != nil {
			return nil, err
		}
	}

	ns := NewNamespaceMap()
	for _, mapping := range config.GetShares() {
		if err := ns.Add(mapping.Real, mapping.Virtual); err != nil {
			Warnf("Skipping share %s (%s): %v", mapping.Virtual, mapping.Real, err)
		}
	}

	cache := NewHashCache(filepath.Join(absStateDir, HashCacheFile))
	if err := cache.Load(); err != nil {
		Warnf("Discarding hash cache: %v", err)
		cache = NewHashCache(filepath.Join(absStateDir, HashCacheFile))
	}

	ignore := NewIgnoreManager(absStateDir)
	if err := ignore.LoadIgnorePatterns(); err != nil {
		return nil, fmt.Errorf("failed to load ignore patterns: %w", err)
	}
	for _, pattern := range opts.IgnorePatterns {
		if err := ignore.AddPattern(pattern); err != nil {
			return nil, err
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	m := &ShareManager{
		stateDir:     absStateDir,
		config:       config,
		ns:           ns,
		live:         emptySnapshot(config.GetShareConfig().MaxDepth, config.GetBloomConfig()),
		hasher:       hasher,
		cache:        cache,
		ignore:       ignore,
		refreshInbox: make(chan *refreshRequest, 64),
		ctx:          ctx,
		stop:         stop,
		closing:      make(chan struct{}),
		loopDone:     make(chan struct{}),
	}

	interval := config.GetShareConfig().RefreshInterval
	if opts.RefreshInterval != 0 {
		interval = opts.RefreshInterval
	}
	go m.refreshLoop(interval)

	if opts.RefreshOnStart {
		m.refreshInbox <- &refreshRequest{}
	}

	VerboseLog(1, "Share manager started in %s with %d shares", absStateDir, ns.Len())
	return m, nil
}

// Ignore returns the ignore patterns applied by refreshes. The ignore file
// is re-read at the start of every refresh.
func (m *ShareManager) Ignore() *IgnoreManager {
	return m.ignore
}

// StateDir returns the directory holding config, hash cache and ignore file.
func (m *ShareManager) StateDir() string {
	return m.stateDir
}

// Config returns the loaded configuration.
func (m *ShareManager) Config() *AllConfig {
	m.configMu.Lock()
	defer m.configMu.Unlock()
	return m.config.GetAllConfig()
}

// Close stops the refresh worker, interrupting any hashing in progress, and
// saves the hash cache. Further refresh requests fail with ErrClosed.
func (m *ShareManager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		defer VerboseEnter()()
		close(m.closing)
		m.stop()
		<-m.loopDone
		if saveErr := m.cache.Save(); saveErr != nil {
			err = fmt.Errorf("failed to save hash cache: %w", saveErr)
		}
	})
	return err
}

// persistShares writes the namespace map to the config. Caller holds configMu.
func (m *ShareManager) persistShares() error {
	m.mu.RLock()
	mappings := m.ns.Mappings()
	m.mu.RUnlock()
	return m.config.SetShares(mappings)
}

// AddShare maps the directory realPath under the top-level name virtual. The
// files appear after the next refresh.
func (m *ShareManager) AddShare(realPath, virtual string) (ShareMapping, error) {
	defer VerboseEnter()()

	realPath, err := normaliseReal(realPath)
	if err != nil {
		return ShareMapping{}, err
	}
	info, err := os.Stat(realPath)
	if err != nil {
		return ShareMapping{}, fmt.Errorf("cannot share %s: %w", realPath, err)
	}
	if !info.IsDir() {
		return ShareMapping{}, fmt.Errorf("cannot share %s: not a directory", realPath)
	}

	m.configMu.Lock()
	defer m.configMu.Unlock()

	m.mu.Lock()
	err = m.ns.Add(realPath, virtual)
	var mapping ShareMapping
	if err == nil {
		m.nsGen++
		mappings := m.ns.Mappings()
		mapping = mappings[len(mappings)-1]
	}
	m.mu.Unlock()
	if err != nil {
		return ShareMapping{}, err
	}

	if err := m.persistShares(); err != nil {
		return mapping, fmt.Errorf("failed to save shares: %w", err)
	}
	VerboseLog(1, "Added share %s -> %s", mapping.Virtual, mapping.Real)
	return mapping, nil
}

// RemoveShare unmaps a share and drops its files from the live tree.
func (m *ShareManager) RemoveShare(virtual string) error {
	defer VerboseEnter()()

	m.configMu.Lock()
	defer m.configMu.Unlock()

	m.mu.Lock()
	mapping, err := m.ns.Remove(virtual)
	if err == nil {
		m.nsGen++
		if removeErr := m.live.removeShareDir(mapping.Virtual); removeErr == nil {
			m.listGen++
			recordShareTotals(m.live.root.Size(), m.live.root.FileCount())
		}
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := m.persistShares(); err != nil {
		return fmt.Errorf("failed to save shares: %w", err)
	}
	VerboseLog(1, "Removed share %s (%s)", mapping.Virtual, mapping.Real)
	return nil
}

// RenameShare changes a share's virtual name without rescanning it.
func (m *ShareManager) RenameShare(oldVirtual, newVirtual string) error {
	defer VerboseEnter()()

	m.configMu.Lock()
	defer m.configMu.Unlock()

	m.mu.Lock()
	mapping, ok := m.ns.Lookup(oldVirtual)
	newName, err := m.ns.Rename(oldVirtual, newVirtual)
	if err == nil {
		m.nsGen++
		if ok && m.live.root.Subdirectory(mapping.Virtual) != nil {
			if renameErr := m.live.renameShareDir(mapping.Virtual, newName); renameErr != nil {
				Warnf("Failed to rename share directory %s: %v", mapping.Virtual, renameErr)
			}
			m.listGen++
		}
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := m.persistShares(); err != nil {
		return fmt.Errorf("failed to save shares: %w", err)
	}
	VerboseLog(1, "Renamed share %s to %s", mapping.Virtual, newName)
	return nil
}

// Shares returns the namespace map in insertion order.
func (m *ShareManager) Shares() []ShareMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ns.Mappings()
}

// ResolveVirtual maps a virtual path to the physical path it is served from.
func (m *ShareManager) ResolveVirtual(virtualPath string) (string, error) {
	parts := splitVirtual(virtualPath)
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNotShared, virtualPath)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	mapping, ok := m.ns.Lookup(parts[0])
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotShared, parts[0])
	}

	dir, fe := m.live.root.Lookup(virtualPath)
	var node interface{ VirtualPath() string }
	switch {
	case fe != nil:
		node = fe
	case dir != nil:
		node = dir
	default:
		return "", fmt.Errorf("%w: %s no longer exists", ErrNotShared, virtualPath)
	}

	// Rebuild from the stored names so the case matches the disk.
	stored := splitVirtual(node.VirtualPath())
	return filepath.Join(append([]string{mapping.Real}, stored[1:]...)...), nil
}

// ResolveReal maps a physical path to its virtual path. When several shares
// contain the path the first one in namespace order wins.
func (m *ShareManager) ResolveReal(realPath string) (string, error) {
	realPath, err := normaliseReal(realPath)
	if err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	mappings, rels := m.ns.ContainingMappings(realPath)
	if len(mappings) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotShared, realPath)
	}
	for i, mapping := range mappings {
		dir, fe := m.live.root.Lookup(joinVirtual(mapping.Virtual, rels[i]))
		if fe != nil {
			return fe.VirtualPath(), nil
		}
		if dir != nil {
			return dir.VirtualPath(), nil
		}
	}
	return "", fmt.Errorf("%w: %s is not in the share", ErrNotShared, realPath)
}

// filesByRealLocked finds the live entries for a physical file, one per share
// containing it. Caller holds mu.
func (m *ShareManager) filesByRealLocked(realPath string) ([]*FileEntry, error) {
	realPath, err := normaliseReal(realPath)
	if err != nil {
		return nil, err
	}
	mappings, rels := m.ns.ContainingMappings(realPath)
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotShared, realPath)
	}
	var entries []*FileEntry
	for i, mapping := range mappings {
		if fe := m.live.lookupFile(joinVirtual(mapping.Virtual, rels[i])); fe != nil {
			entries = append(entries, fe)
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, realPath)
	}
	return entries, nil
}

// ContentHashOf returns the hash of the shared file at virtualPath. A file
// that is shared but not hashed yet reports ErrNotFound.
func (m *ShareManager) ContentHashOf(virtualPath string) (HashRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fe := m.live.lookupFile(virtualPath)
	if fe == nil {
		return HashRef{}, fmt.Errorf("%w: %s", ErrNotShared, virtualPath)
	}
	if fe.hash.IsZero() {
		return HashRef{}, fmt.Errorf("%w: %s is not hashed yet", ErrNotFound, virtualPath)
	}
	return fe.hash, nil
}

// IsContentShared reports whether any shared file has hash h.
func (m *ShareManager) IsContentShared(h HashRef) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live.hashes.Contains(h)
}

// FilesWithHash returns the virtual paths of every file with hash h.
func (m *ShareManager) FilesWithHash(h HashRef) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.live.hashes.Lookup(h)
	paths := make([]string, 0, len(entries))
	for _, fe := range entries {
		paths = append(paths, fe.VirtualPath())
	}
	return paths
}

// TotalShareSize returns the size of every file in the share.
func (m *ShareManager) TotalShareSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live.root.Size()
}

// DirectoryShareSize returns the size of the files below a virtual directory.
func (m *ShareManager) DirectoryShareSize(virtualPath string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dir := m.live.lookupDir(virtualPath)
	if dir == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, virtualPath)
	}
	return dir.Size(), nil
}

// SharedFileCount returns the number of files in the share, hashed or not.
func (m *ShareManager) SharedFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live.root.FileCount()
}

// RefreshState reports what the refresh worker is doing.
func (m *ShareManager) RefreshState() RefreshState {
	return RefreshState(m.state.Load())
}

func (m *ShareManager) setState(s RefreshState) {
	m.state.Store(int32(s))
	debugLog("refresh", "refresh state %s", s)
}

// CancelRefresh asks a running refresh to stop. The live share is left as it was.
func (m *ShareManager) CancelRefresh() {
	m.cancelRequested.Store(true)
	VerboseLog(1, "Refresh cancellation requested")
}

func (m *ShareManager) refreshCancelled() bool {
	return m.cancelRequested.Load() || m.ctx.Err() != nil
}

// HashEvent is the outcome of hashing one file outside a refresh, e.g. by a
// download verifier or the background hashing of a directories-only refresh.
type HashEvent struct {
	RealPath string
	Size     int64
	ModTime  time.Time
	Hash     HashRef
	Err      error
}

// HashDone applies a hash result to the live share. A failed hash removes the
// file from the share; a successful one makes it searchable.
func (m *ShareManager) HashDone(ev HashEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.filesByRealLocked(ev.RealPath)
	if err != nil {
		return err
	}

	if ev.Err != nil {
		Warnf("%v", &HashFailure{Path: ev.RealPath, Err: ev.Err})
		for _, fe := range entries {
			if err := m.live.removeFile(fe); err != nil {
				return err
			}
		}
		m.cache.Forget(ev.RealPath)
	} else {
		for _, fe := range entries {
			if ev.Size != fe.size {
				return fmt.Errorf("stale hash for %s: size %d, shared size %d", ev.RealPath, ev.Size, fe.size)
			}
		}
		for _, fe := range entries {
			m.live.setHash(fe, ev.Hash)
		}
		if !ev.ModTime.IsZero() {
			m.cache.Store(ev.RealPath, ev.Size, ev.ModTime, ev.Hash)
		}
	}

	m.listGen++
	recordShareTotals(m.live.root.Size(), m.live.root.FileCount())
	return nil
}

// AddSharedFile adds one already hashed file to the live share under every
// share containing it, creating missing directories.
func (m *ShareManager) AddSharedFile(realPath string, hash HashRef) error {
	defer VerboseEnter()()

	realPath, err := normaliseReal(realPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(realPath)
	if err != nil {
		return fmt.Errorf("cannot share %s: %w", realPath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("cannot share %s: not a regular file", realPath)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mappings, rels := m.ns.ContainingMappings(realPath)
	var firstErr error
	added := 0
	for i, mapping := range mappings {
		if rels[i] == "" {
			continue
		}
		if err := m.addUnder(joinVirtual(mapping.Virtual, rels[i]), info.Size(), hash); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		added++
	}
	if added == 0 {
		if firstErr != nil {
			return firstErr
		}
		return fmt.Errorf("%w: %s", ErrNotShared, realPath)
	}
	if firstErr != nil {
		Warnf("%v", &IOWarning{Path: realPath, Op: "insert", Err: firstErr})
	}
	m.cache.Store(realPath, info.Size(), info.ModTime(), hash)

	m.listGen++
	recordShareTotals(m.live.root.Size(), m.live.root.FileCount())
	return nil
}

// addUnder places a file at virtualPath in the live tree. Caller holds mu.
func (m *ShareManager) addUnder(virtualPath string, size int64, hash HashRef) error {
	parts := splitVirtual(virtualPath)
	dir := m.live.root
	for _, part := range parts[:len(parts)-1] {
		var err error
		if dir, err = dir.GetOrCreateSubdirectory(part); err != nil {
			return err
		}
		m.live.bloom.Add(part)
	}
	_, err := m.live.addFile(dir, parts[len(parts)-1], size, hash)
	return err
}

// RemoveSharedFile removes one file from the live share by virtual path.
func (m *ShareManager) RemoveSharedFile(virtualPath string) error {
	defer VerboseEnter()()

	m.mu.Lock()
	defer m.mu.Unlock()

	fe := m.live.lookupFile(virtualPath)
	if fe == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, virtualPath)
	}
	if err := m.live.removeFile(fe); err != nil {
		return err
	}

	m.listGen++
	recordShareTotals(m.live.root.Size(), m.live.root.FileCount())
	return nil
}

// ShareStats summarises the live share.
type ShareStats struct {
	Shares           int
	Directories      int
	Files            int
	PendingFiles     int
	TotalSize        int64
	UniqueHashes     int
	BloomBits        uint64
	BloomHashes      int
	HashCacheEntries int
	State            RefreshState
}

// Stats returns a summary of the live share.
func (m *ShareManager) Stats() ShareStats {
	m.mu.RLock()
	stats := ShareStats{
		Shares:       m.ns.Len(),
		Directories:  m.live.directoryCount(),
		Files:        m.live.root.FileCount(),
		PendingFiles: m.live.root.FileCount() - m.live.hashes.FileCount(),
		TotalSize:    m.live.root.Size(),
		UniqueHashes: m.live.hashes.Len(),
		BloomBits:    m.live.bloom.Bits(),
		BloomHashes:  m.live.bloom.HashCount(),
	}
	m.mu.RUnlock()

	stats.HashCacheEntries = m.cache.Len()
	stats.State = m.RefreshState()
	return stats
}
