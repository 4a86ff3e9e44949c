package nanodc

import "fmt"

// shareSnapshot is one consistent generation of the share: the tree plus the
// indexes derived from it. A refresh builds a new snapshot and swaps it in;
// incremental updates mutate the live one under the manager's write lock.
type shareSnapshot struct {
	root   *Directory
	hashes *ContentHashIndex
	bloom  *BloomFilter
}

// newSnapshot indexes every file of root and sizes the Bloom filter for the
// names actually present.
func newSnapshot(root *Directory, bc *BloomConfig) *shareSnapshot {
	terms := 0
	var names []string
	root.walkDirs(func(d *Directory) {
		if !d.IsRoot() {
			names = append(names, d.name)
			terms += countNGrams(d.name, bc.NGram)
		}
		d.Files(func(fe *FileEntry) bool {
			names = append(names, fe.name)
			terms += countNGrams(fe.name, bc.NGram)
			return true
		})
	})
	if terms < bc.ExpectedTerms {
		terms = bc.ExpectedTerms
	}

	snap := &shareSnapshot{
		root:   root,
		hashes: NewContentHashIndex(),
		bloom:  NewBloomFilter(terms, bc.FalsePositiveRate, bc.NGram),
	}
	snap.bloom.Build(names)
	root.walkFiles(snap.hashes.Index)
	return snap
}

// emptySnapshot is the state before the first refresh.
func emptySnapshot(maxDepth int, bc *BloomConfig) *shareSnapshot {
	return newSnapshot(NewRoot(maxDepth), bc)
}

// lookupFile returns the file at virtualPath or nil.
func (s *shareSnapshot) lookupFile(virtualPath string) *FileEntry {
	_, fe := s.root.Lookup(virtualPath)
	return fe
}

// lookupDir returns the directory at virtualPath or nil. "" and "/" are the root.
func (s *shareSnapshot) lookupDir(virtualPath string) *Directory {
	dir, _ := s.root.Lookup(virtualPath)
	return dir
}

// addFile inserts a file below dir and indexes it.
func (s *shareSnapshot) addFile(dir *Directory, name string, size int64, hash HashRef) (*FileEntry, error) {
	fe, err := dir.AddFile(name, size, hash)
	if err != nil {
		return nil, err
	}
	s.hashes.Index(fe)
	s.bloom.Add(name)
	return fe, nil
}

// removeFile detaches fe from its directory and the hash index.
func (s *shareSnapshot) removeFile(fe *FileEntry) error {
	if fe.parent == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, fe.name)
	}
	s.hashes.Unindex(fe)
	_, err := fe.parent.RemoveFile(fe.name)
	return err
}

// setHash records the hash of a file, moving it between index buckets.
func (s *shareSnapshot) setHash(fe *FileEntry, hash HashRef) {
	s.hashes.Unindex(fe)
	fe.hash = hash
	s.hashes.Index(fe)
}

// removeShareDir drops a top-level share directory with its subtree.
func (s *shareSnapshot) removeShareDir(virtual string) error {
	dir := s.root.Subdirectory(virtual)
	if dir == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, virtual)
	}
	dir.walkFiles(func(fe *FileEntry) {
		s.hashes.Unindex(fe)
	})
	_, err := s.root.RemoveSubdirectory(virtual)
	return err
}

// renameShareDir renames a top-level share directory.
func (s *shareSnapshot) renameShareDir(oldName, newName string) error {
	if err := s.root.renameSubdirectory(oldName, newName); err != nil {
		return err
	}
	s.bloom.Add(newName)
	return nil
}

// directoryCount returns the number of directories below the root.
func (s *shareSnapshot) directoryCount() int {
	count := -1
	s.root.walkDirs(func(*Directory) { count++ })
	return count
}
