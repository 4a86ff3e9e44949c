package nanodc

import "testing"

func TestContentHashIndex(t *testing.T) {
	root := NewRoot(0)
	a, _ := root.GetOrCreateSubdirectory("A")
	b, _ := root.GetOrCreateSubdirectory("B")

	shared := contentHash([]byte("shared"))
	unique := contentHash([]byte("unique"))

	fb, _ := b.AddFile("copy.bin", 6, shared)
	fa, _ := a.AddFile("orig.bin", 6, shared)
	fu, _ := a.AddFile("unique.bin", 6, unique)
	pending, _ := a.AddFile("pending.bin", 6, HashRef{})

	ci := NewContentHashIndex()
	for _, fe := range []*FileEntry{fb, fa, fu, pending} {
		ci.Index(fe)
	}
	ci.Index(fa)

	if ci.Len() != 2 || ci.FileCount() != 3 {
		t.Errorf("Expected 2 hashes over 3 files, got %d over %d", ci.Len(), ci.FileCount())
	}

	entries := ci.Lookup(shared)
	if len(entries) != 2 || entries[0] != fa || entries[1] != fb {
		t.Errorf("Expected [A/orig.bin B/copy.bin], got %v", entries)
	}
	if !ci.Contains(unique) || ci.Contains(HashRef{}) {
		t.Error("Contains gave the wrong answer")
	}
	if got := ci.Lookup(contentHash([]byte("none"))); got == nil || len(got) != 0 {
		t.Errorf("Expected an empty, non-nil result, got %#v", got)
	}

	if !ci.Unindex(fa) {
		t.Error("Unindex should report removing a present entry")
	}
	if ci.Unindex(fa) {
		t.Error("Unindex should report false for an absent entry")
	}
	if !ci.Contains(shared) {
		t.Error("Removing one copy must leave the other")
	}
	ci.Unindex(fb)
	if ci.Contains(shared) || ci.Len() != 1 {
		t.Error("Removing the last copy should drop the hash")
	}

	visited := 0
	ci.ForEach(func(h HashRef, files []*FileEntry) bool {
		visited++
		if h != unique || len(files) != 1 {
			t.Errorf("Unexpected bucket %s with %d files", h, len(files))
		}
		return true
	})
	if visited != 1 {
		t.Errorf("Expected one bucket, visited %d", visited)
	}
}

func TestShareSnapshot_Mutations(t *testing.T) {
	root := NewRoot(0)
	music, _ := root.GetOrCreateSubdirectory("Music")
	music.AddFile("song.mp3", 4, contentHash([]byte("song")))
	music.AddFile("pending.mp3", 7, HashRef{})

	snap := newSnapshot(root, testBloomConfig())
	if snap.hashes.FileCount() != 1 {
		t.Errorf("Only hashed files should be indexed, got %d", snap.hashes.FileCount())
	}
	if snap.directoryCount() != 1 {
		t.Errorf("Expected 1 directory, got %d", snap.directoryCount())
	}

	pending := snap.lookupFile("Music/pending.mp3")
	if pending == nil {
		t.Fatal("pending.mp3 should be in the tree")
	}
	h := contentHash([]byte("pending"))
	snap.setHash(pending, h)
	if got := snap.hashes.Lookup(h); len(got) != 1 || got[0] != pending {
		t.Error("setHash should index the file under its new hash")
	}

	added, err := snap.addFile(music, "fresh.flac", 3, contentHash([]byte("fresh")))
	if err != nil {
		t.Fatalf("addFile failed: %v", err)
	}
	if !snap.bloom.MightContain("fresh") {
		t.Error("addFile should add the name to the Bloom filter")
	}
	if err := snap.removeFile(added); err != nil {
		t.Fatalf("removeFile failed: %v", err)
	}
	if snap.hashes.Contains(contentHash([]byte("fresh"))) || snap.lookupFile("Music/fresh.flac") != nil {
		t.Error("removeFile should drop the file from tree and index")
	}

	if err := snap.renameShareDir("Music", "Tunes"); err != nil {
		t.Fatalf("renameShareDir failed: %v", err)
	}
	if snap.lookupDir("Tunes") == nil || !snap.bloom.MightContain("tunes") {
		t.Error("Renamed share should be reachable and searchable")
	}

	if err := snap.removeShareDir("tunes"); err != nil {
		t.Fatalf("removeShareDir failed: %v", err)
	}
	if snap.hashes.Len() != 0 || root.FileCount() != 0 {
		t.Errorf("Removing the share should empty the index, %d hashes and %d files left", snap.hashes.Len(), root.FileCount())
	}
	if err := snap.removeShareDir("tunes"); err == nil {
		t.Error("Removing a missing share should fail")
	}
}
