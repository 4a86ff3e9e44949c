package nanodc

import (
	"path/filepath"
	"testing"
)

func TestFindDuplicates(t *testing.T) {
	base := t.TempDir()
	music := filepath.Join(base, "music")
	backup := filepath.Join(base, "backup")

	album := []byte("ten bytes!")
	single := []byte("fifteen bytes!!")
	writeTestFile(t, filepath.Join(music, "album.flac"), album)
	writeTestFile(t, filepath.Join(backup, "album.flac"), album)
	writeTestFile(t, filepath.Join(backup, "old", "album copy.flac"), album)
	writeTestFile(t, filepath.Join(music, "single.mp3"), single)
	writeTestFile(t, filepath.Join(backup, "single.mp3"), single)
	writeTestFile(t, filepath.Join(music, "unique.mp3"), []byte("only one"))

	sm := newTestManager(t, &countingHasher{})
	if _, err := sm.AddShare(music, "Music"); err != nil {
		t.Fatalf("AddShare failed: %v", err)
	}
	if _, err := sm.AddShare(backup, "Backup"); err != nil {
		t.Fatalf("AddShare failed: %v", err)
	}
	refreshNow(t, sm)

	groups := sm.FindDuplicates()
	if len(groups) != 2 {
		t.Fatalf("Expected 2 duplicate groups, got %d: %+v", len(groups), groups)
	}

	// 10 bytes times 2 extra copies outranks 15 bytes times 1
	first := groups[0]
	if first.Hash != contentHash(album).String() || first.Size != 10 || first.Count != 3 {
		t.Errorf("Unexpected first group %+v", first)
	}
	wantFiles := []string{"Backup/album.flac", "Backup/old/album copy.flac", "Music/album.flac"}
	for i, want := range wantFiles {
		if i >= len(first.Files) || first.Files[i] != want {
			t.Errorf("Expected files %v, got %v", wantFiles, first.Files)
			break
		}
	}

	second := groups[1]
	if second.Hash != contentHash(single).String() || second.Count != 2 {
		t.Errorf("Unexpected second group %+v", second)
	}

	if err := sm.RemoveSharedFile("Backup/single.mp3"); err != nil {
		t.Fatalf("RemoveSharedFile failed: %v", err)
	}
	if groups := sm.FindDuplicates(); len(groups) != 1 {
		t.Errorf("Expected 1 group after removing a copy, got %+v", groups)
	}
}

func TestFindDuplicates_Empty(t *testing.T) {
	sm := newTestManager(t, &countingHasher{})
	if groups := sm.FindDuplicates(); len(groups) != 0 {
		t.Errorf("Expected no groups for an empty share, got %+v", groups)
	}
}
