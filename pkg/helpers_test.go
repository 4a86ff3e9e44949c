package nanodc

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingHasher hashes file contents with sha256 and counts the calls.
type countingHasher struct {
	calls atomic.Int64

	mu    sync.Mutex
	fail  map[string]error
	block chan struct{} // when set, every call waits for it to close
}

func (h *countingHasher) HashFile(ctx context.Context, realPath string) (HashRef, error) {
	h.calls.Add(1)

	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return HashRef{}, ctx.Err()
		}
	}

	h.mu.Lock()
	err := h.fail[filepath.Base(realPath)]
	h.mu.Unlock()
	if err != nil {
		return HashRef{}, err
	}

	data, err := os.ReadFile(realPath)
	if err != nil {
		return HashRef{}, err
	}
	return contentHash(data), nil
}

func (h *countingHasher) failOn(name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail == nil {
		h.fail = make(map[string]error)
	}
	h.fail[name] = err
}

// contentHash is what countingHasher returns for data.
func contentHash(data []byte) HashRef {
	sum := sha256.Sum256(data)
	return HashRefFromBytes(sum[:])
}

// writeTestFile creates path with its parent directories.
func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// writeSizedFile creates a sparse file of the given size.
func writeSizedFile(t *testing.T, path string, size int64) {
	t.Helper()
	writeTestFile(t, path, nil)
	if err := os.Truncate(path, size); err != nil {
		t.Fatalf("Failed to size %s: %v", path, err)
	}
}

// newTestManager opens a manager on a fresh state directory with periodic
// refresh disabled.
func newTestManager(t *testing.T, hasher Hasher, overrides ...string) *ShareManager {
	t.Helper()
	return openTestManager(t, filepath.Join(t.TempDir(), "state"), hasher, overrides...)
}

func openTestManager(t *testing.T, stateDir string, hasher Hasher, overrides ...string) *ShareManager {
	t.Helper()
	sm, err := NewShareManager(stateDir, &ManagerOptions{
		Hasher:          hasher,
		Overrides:       overrides,
		RefreshInterval: -1,
	})
	if err != nil {
		t.Fatalf("Failed to create share manager: %v", err)
	}
	t.Cleanup(func() { sm.Close() })
	return sm
}

// refreshNow runs a blocking refresh and fails the test on error.
func refreshNow(t *testing.T, sm *ShareManager) *RefreshResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := sm.TriggerRefresh(ctx, RefreshOptions{Blocking: true})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	return result
}

// waitIdle waits for background hashing to finish.
func waitIdle(t *testing.T, sm *ShareManager) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for sm.RefreshState() != RefreshIdle {
		if time.Now().After(deadline) {
			t.Fatalf("Refresh worker still %s", sm.RefreshState())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// searchPaths returns the virtual paths of the results.
func searchPaths(results []SearchResult) []string {
	paths := make([]string, 0, len(results))
	for _, r := range results {
		paths = append(paths, r.VirtualPath)
	}
	return paths
}
