package nanodc

import (
	"context"
	"errors"
	"time"
)

// RefreshState is the phase of the refresh worker.
type RefreshState int32

const (
	RefreshIdle RefreshState = iota
	RefreshScanning
	RefreshHashing
	RefreshIndexing
)

func (s RefreshState) String() string {
	switch s {
	case RefreshIdle:
		return "idle"
	case RefreshScanning:
		return "scanning"
	case RefreshHashing:
		return "hashing"
	case RefreshIndexing:
		return "indexing"
	default:
		return "unknown"
	}
}

// RefreshOptions control TriggerRefresh.
type RefreshOptions struct {
	// DirsOnly publishes the new tree before hashing unknown files. Those
	// files are hashed afterwards and become searchable one by one.
	DirsOnly bool
	// Blocking waits for the refresh covering this request to finish.
	Blocking bool
}

// RefreshResult summarises one refresh run.
type RefreshResult struct {
	Started  time.Time
	Finished time.Time

	Directories  int
	Files        int
	HashedFiles  int // hashed during the run
	CachedFiles  int // taken from the hash cache
	PendingFiles int // left for background hashing (DirsOnly)

	// Warnings lists skipped entries: *IOWarning and *HashFailure values.
	Warnings []error
	// Err is ErrRefreshCancelled when the run was abandoned.
	Err error
}

// refreshRequest is one caller's ask for a refresh. done is nil for
// non-blocking requests.
type refreshRequest struct {
	dirsOnly bool
	done     chan *RefreshResult
}

// TriggerRefresh asks the refresh worker to rebuild the share from disk.
// Requests arriving while a refresh runs are coalesced into a single
// follow-up run. A blocking request returns the result of the run that
// covered it; cancelling ctx abandons the wait but not the refresh.
func (m *ShareManager) TriggerRefresh(ctx context.Context, opts RefreshOptions) (*RefreshResult, error) {
	req := &refreshRequest{dirsOnly: opts.DirsOnly}
	if opts.Blocking {
		req.done = make(chan *RefreshResult, 1)
	}

	select {
	case <-m.closing:
		return nil, ErrClosed
	default:
	}

	select {
	case m.refreshInbox <- req:
	case <-m.closing:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if !opts.Blocking {
		return nil, nil
	}

	select {
	case result := <-req.done:
		return result, result.Err
	case <-m.closing:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refreshLoop is the single refresh worker.
func (m *ShareManager) refreshLoop(interval time.Duration) {
	defer close(m.loopDone)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-m.closing:
			m.failPending()
			return
		case req := <-m.refreshInbox:
			m.runRefreshes([]*refreshRequest{req})
		case <-tick:
			debugLog("refresh", "periodic refresh")
			m.runRefreshes([]*refreshRequest{{}})
		}
	}
}

// runRefreshes runs one refresh for batch, then keeps going while requests
// piled up in the meantime.
func (m *ShareManager) runRefreshes(batch []*refreshRequest) {
	for len(batch) > 0 {
		dirsOnly := true
		for _, req := range batch {
			dirsOnly = dirsOnly && req.dirsOnly
		}

		result, pending := m.refresh(dirsOnly)
		if len(pending) == 0 {
			m.setState(RefreshIdle)
		}
		for _, req := range batch {
			if req.done != nil {
				req.done <- result
			}
		}

		if len(pending) > 0 {
			m.hashPending(pending)
			m.setState(RefreshIdle)
		}

		if m.ctx.Err() != nil {
			return
		}
		batch = m.drainInbox()
		if len(batch) > 1 {
			debugLog("refresh", "coalesced %d refresh requests", len(batch))
		}
	}
}

func (m *ShareManager) drainInbox() []*refreshRequest {
	var batch []*refreshRequest
	for {
		select {
		case req := <-m.refreshInbox:
			batch = append(batch, req)
		default:
			return batch
		}
	}
}

// failPending answers requests still queued at shutdown.
func (m *ShareManager) failPending() {
	for _, req := range m.drainInbox() {
		if req.done != nil {
			req.done <- &RefreshResult{Started: time.Now(), Finished: time.Now(), Err: ErrClosed}
		}
	}
}

// refresh rebuilds the share in four phases: scan every mapping into a new
// tree, hash what the cache does not know, index, then swap the result in.
// The live share is untouched until the swap; a cancelled run is discarded.
// With dirsOnly the files missing from the cache are returned for hashing
// after the swap instead of being hashed first.
func (m *ShareManager) refresh(dirsOnly bool) (*RefreshResult, []*scannedFile) {
	defer VerboseEnter()()

	m.cancelRequested.Store(false)
	result := &RefreshResult{Started: time.Now()}
	defer func() {
		result.Finished = time.Now()
		recordRefresh(result)
		if result.Err != nil {
			VerboseLog(1, "Refresh abandoned after %v: %v", result.Finished.Sub(result.Started), result.Err)
		} else {
			VerboseLog(1, "Refresh finished in %v: %d files in %d directories, %d hashed, %d cached, %d pending, %d warnings",
				result.Finished.Sub(result.Started), result.Files, result.Directories,
				result.HashedFiles, result.CachedFiles, result.PendingFiles, len(result.Warnings))
		}
	}()

	m.configMu.Lock()
	settings := m.config.GetAllConfig()
	m.configMu.Unlock()

	m.mu.RLock()
	mappings := m.ns.Mappings()
	nsGen := m.nsGen
	m.mu.RUnlock()

	// Phase 1: scan
	m.setState(RefreshScanning)
	if err := m.ignore.Reload(); err != nil {
		Warnf("Keeping previous ignore patterns: %v", err)
	}
	root := NewRoot(settings.Share.MaxDepth)
	sc := newScanner(settings.Share, m.ignore, m.refreshCancelled)
	for _, mapping := range mappings {
		if err := sc.scanShare(root, mapping); err != nil {
			result.Err = err
			return result, nil
		}
	}
	result.Directories = sc.directories
	result.Warnings = sc.warnings

	// Phase 2: hash
	m.setState(RefreshHashing)
	m.cache.BeginRun()
	var toHash []*scannedFile
	for _, f := range sc.files {
		if hash, ok := m.cache.Lookup(f.RealPath, f.Size, f.ModTime); ok {
			f.Hash = hash
			result.CachedFiles++
			continue
		}
		toHash = append(toHash, f)
	}

	// DirsOnly leaves toHash with a zero hash for hashPending
	if !dirsOnly {
		err := m.hashFiles(toHash, settings.Hash.Workers, func(f *scannedFile, hash HashRef, err error) {
			if err != nil {
				f.Failed = true
				result.Warnings = append(result.Warnings, &HashFailure{Path: f.RealPath, Err: err})
				return
			}
			f.Hash = hash
			m.cache.Store(f.RealPath, f.Size, f.ModTime, hash)
			result.HashedFiles++
		})
		if err != nil {
			result.Err = err
			return result, nil
		}
	}

	// Phase 3: index
	m.setState(RefreshIndexing)
	var pendingAdded []*scannedFile
	for _, f := range sc.files {
		if f.Failed {
			continue
		}
		if _, err := f.Dir.AddFile(f.Name, f.Size, f.Hash); err != nil {
			result.Warnings = append(result.Warnings, &IOWarning{Path: f.RealPath, Op: "insert", Err: err})
			continue
		}
		if f.Hash.IsZero() {
			pendingAdded = append(pendingAdded, f)
		}
	}
	if m.refreshCancelled() {
		result.Err = ErrRefreshCancelled
		return result, nil
	}
	snap := newSnapshot(root, settings.Bloom)

	// Phase 4: swap
	m.swap(snap, nsGen)
	result.Files = snap.root.FileCount()
	result.PendingFiles = len(pendingAdded)

	if pruned := m.cache.Prune(); pruned > 0 {
		VerboseLog(2, "Pruned %d stale hash cache entries", pruned)
	}
	if err := m.cache.Save(); err != nil {
		Warnf("Failed to save hash cache: %v", err)
	}

	if len(pendingAdded) > 0 {
		m.setState(RefreshHashing)
	}
	return result, pendingAdded
}

// swap publishes snap. Shares removed or renamed while the refresh ran are
// dropped from it, and another refresh is queued to pick up the new names.
func (m *ShareManager) swap(snap *shareSnapshot, nsGen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []string
	snap.root.Subdirectories(func(d *Directory) bool {
		if mapping, ok := m.ns.Lookup(d.Name()); !ok || mapping.Virtual != d.Name() {
			stale = append(stale, d.Name())
		}
		return true
	})
	for _, name := range stale {
		snap.removeShareDir(name)
	}

	m.live = snap
	m.listGen++
	recordShareTotals(snap.root.Size(), snap.root.FileCount())

	if m.nsGen != nsGen {
		debugLog("refresh", "shares changed during refresh, queueing another")
		select {
		case m.refreshInbox <- &refreshRequest{}:
		default:
		}
	}
}

// hashPending hashes the files a directories-only refresh published without
// a hash and applies each result to the live share.
func (m *ShareManager) hashPending(pending []*scannedFile) {
	defer VerboseEnter()()
	m.setState(RefreshHashing)

	m.configMu.Lock()
	workers := m.config.GetHashConfig().Workers
	m.configMu.Unlock()

	err := m.hashFiles(pending, workers, func(f *scannedFile, hash HashRef, err error) {
		ev := HashEvent{RealPath: f.RealPath, Size: f.Size, ModTime: f.ModTime, Hash: hash, Err: err}
		if applyErr := m.HashDone(ev); applyErr != nil && !errors.Is(applyErr, ErrNotFound) && !errors.Is(applyErr, ErrNotShared) {
			Warnf("Failed to apply hash of %s: %v", f.RealPath, applyErr)
		}
	})
	if err != nil {
		VerboseLog(1, "Background hashing stopped: %v", err)
	}

	if err := m.cache.Save(); err != nil {
		Warnf("Failed to save hash cache: %v", err)
	}
}
