package nanodc

import "sort"

// ContentHashIndex maps a content hash to every file carrying it. Entries are
// references into the tree; the tree owns the files.
//
// Different content that happens to produce the same hash lands in the same
// bucket. With 192-bit hashes that is an accepted risk.
type ContentHashIndex struct {
	entries map[HashRef]map[*FileEntry]struct{}
	files   int
}

// NewContentHashIndex creates an empty index.
func NewContentHashIndex() *ContentHashIndex {
	return &ContentHashIndex{entries: make(map[HashRef]map[*FileEntry]struct{})}
}

// Index adds fe under its current hash. Files without a hash are ignored.
func (ci *ContentHashIndex) Index(fe *FileEntry) {
	if fe.hash.IsZero() {
		return
	}
	bucket, ok := ci.entries[fe.hash]
	if !ok {
		bucket = make(map[*FileEntry]struct{}, 1)
		ci.entries[fe.hash] = bucket
	}
	if _, exists := bucket[fe]; !exists {
		bucket[fe] = struct{}{}
		ci.files++
	}
}

// Unindex removes fe and leaves any other file with the same hash in place.
func (ci *ContentHashIndex) Unindex(fe *FileEntry) bool {
	bucket, ok := ci.entries[fe.hash]
	if !ok {
		return false
	}
	if _, exists := bucket[fe]; !exists {
		return false
	}
	delete(bucket, fe)
	ci.files--
	if len(bucket) == 0 {
		delete(ci.entries, fe.hash)
	}
	return true
}

// Lookup returns the files with hash h ordered by virtual path. The result is
// empty, never nil-with-error, when nothing matches.
func (ci *ContentHashIndex) Lookup(h HashRef) []*FileEntry {
	bucket := ci.entries[h]
	result := make([]*FileEntry, 0, len(bucket))
	for fe := range bucket {
		result = append(result, fe)
	}
	if len(result) > 1 {
		sort.Slice(result, func(i, j int) bool {
			return result[i].VirtualPath() < result[j].VirtualPath()
		})
	}
	return result
}

// Contains reports whether any file has hash h.
func (ci *ContentHashIndex) Contains(h HashRef) bool {
	return len(ci.entries[h]) > 0
}

// Len returns the number of distinct hashes.
func (ci *ContentHashIndex) Len() int {
	return len(ci.entries)
}

// FileCount returns the number of indexed files.
func (ci *ContentHashIndex) FileCount() int {
	return ci.files
}

// ForEach visits every hash with its files, in no particular order.
func (ci *ContentHashIndex) ForEach(fn func(HashRef, []*FileEntry) bool) {
	for h := range ci.entries {
		if !fn(h, ci.Lookup(h)) {
			return
		}
	}
}
