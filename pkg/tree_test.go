package nanodc

import (
	"errors"
	"fmt"
	"testing"
)

func buildTestTree(t *testing.T) *Directory {
	t.Helper()
	root := NewRoot(0)

	music, err := root.GetOrCreateSubdirectory("Music")
	if err != nil {
		t.Fatalf("Failed to create Music: %v", err)
	}
	live, err := music.GetOrCreateSubdirectory("Live")
	if err != nil {
		t.Fatalf("Failed to create Live: %v", err)
	}

	files := []struct {
		dir  *Directory
		name string
		size int64
	}{
		{music, "song.mp3", 100},
		{music, "cover.jpg", 20},
		{live, "concert.avi", 3000},
		{live, "notes.txt", 5},
	}
	for i, f := range files {
		if _, err := f.dir.AddFile(f.name, f.size, HashRefFromBytes([]byte{byte(i + 1)})); err != nil {
			t.Fatalf("Failed to add %s: %v", f.name, err)
		}
	}
	return root
}

func TestDirectory_Aggregates(t *testing.T) {
	root := buildTestTree(t)
	music := root.Subdirectory("music")
	live := music.Subdirectory("LIVE")

	if root.Size() != 3125 || root.FileCount() != 4 {
		t.Errorf("Expected root 3125 bytes in 4 files, got %d in %d", root.Size(), root.FileCount())
	}
	if music.Size() != 3125 {
		t.Errorf("Expected Music size 3125, got %d", music.Size())
	}
	if live.Size() != 3005 || live.FileCount() != 2 {
		t.Errorf("Expected Live 3005 bytes in 2 files, got %d in %d", live.Size(), live.FileCount())
	}

	testCases := []struct {
		dir  *Directory
		kind SearchType
		want bool
	}{
		{music, TypeAudio, true},
		{music, TypeVideo, true},
		{music, TypePicture, true},
		{live, TypeAudio, false},
		{live, TypeVideo, true},
		{live, TypeDocument, true},
		{live, TypeExecutable, false},
		{live, TypeDirectory, true},
		{live, TypeAny, true},
	}
	for _, tc := range testCases {
		if got := tc.dir.HasType(tc.kind); got != tc.want {
			t.Errorf("%s.HasType(%s) = %v, want %v", tc.dir.Name(), tc.kind, got, tc.want)
		}
	}

	mask := live.TypeMask()
	if mask&(1<<TypeVideo) == 0 || mask&(1<<TypeAudio) != 0 {
		t.Errorf("Unexpected Live type mask %b", mask)
	}

	if _, err := live.RemoveFile("CONCERT.AVI"); err != nil {
		t.Fatalf("Failed to remove concert.avi: %v", err)
	}
	if live.HasType(TypeVideo) || music.HasType(TypeVideo) {
		t.Error("Video type should be gone after removing the only video")
	}
	if root.Size() != 125 {
		t.Errorf("Expected root size 125 after removal, got %d", root.Size())
	}

	if _, err := music.RemoveSubdirectory("Live"); err != nil {
		t.Fatalf("Failed to remove Live: %v", err)
	}
	if root.Size() != 120 || root.FileCount() != 2 {
		t.Errorf("Expected root 120 bytes in 2 files, got %d in %d", root.Size(), root.FileCount())
	}
	if music.HasType(TypeDocument) {
		t.Error("Document type should be gone with Live")
	}
}

func TestDirectory_CaseInsensitiveNames(t *testing.T) {
	root := buildTestTree(t)
	music := root.Subdirectory("Music")

	if _, err := music.AddFile("SONG.MP3", 1, HashRef{}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName, got %v", err)
	}
	if fe := music.File("Song.Mp3"); fe == nil || fe.Name() != "song.mp3" {
		t.Errorf("Expected case-insensitive lookup to find song.mp3, got %v", fe)
	}

	again, err := root.GetOrCreateSubdirectory("MUSIC")
	if err != nil {
		t.Fatalf("GetOrCreateSubdirectory failed: %v", err)
	}
	if again != music || root.SubdirectoryCount() != 1 {
		t.Error("Expected MUSIC to resolve to the existing Music directory")
	}
}

func TestDirectory_TreeOrderAndPaths(t *testing.T) {
	root := NewRoot(0)
	dir, _ := root.GetOrCreateSubdirectory("Share")
	for _, name := range []string{"b.txt", "A.txt", "c.txt"} {
		if _, err := dir.AddFile(name, 1, HashRef{}); err != nil {
			t.Fatalf("Failed to add %s: %v", name, err)
		}
	}
	for _, name := range []string{"zeta", "Alpha"} {
		if _, err := dir.GetOrCreateSubdirectory(name); err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
	}

	var files []string
	dir.Files(func(fe *FileEntry) bool {
		files = append(files, fe.Name())
		return true
	})
	if fmt.Sprint(files) != "[A.txt b.txt c.txt]" {
		t.Errorf("Unexpected file order %v", files)
	}

	var dirs []string
	dir.Subdirectories(func(d *Directory) bool {
		dirs = append(dirs, d.VirtualPath())
		return true
	})
	if fmt.Sprint(dirs) != "[Share/Alpha Share/zeta]" {
		t.Errorf("Unexpected directory order %v", dirs)
	}

	if got := dir.File("b.txt").VirtualPath(); got != "Share/b.txt" {
		t.Errorf("Expected Share/b.txt, got %s", got)
	}
	if root.VirtualPath() != "" || !root.IsRoot() {
		t.Error("Root should have an empty virtual path")
	}
}

func TestDirectory_Lookup(t *testing.T) {
	root := buildTestTree(t)

	testCases := []struct {
		path     string
		wantDir  string
		wantFile string
	}{
		{"Music/Live", "Music/Live", ""},
		{"/music/live/", "Music/Live", ""},
		{"Music/Live/concert.avi", "", "Music/Live/concert.avi"},
		{"Music\\song.mp3", "", "Music/song.mp3"},
		{"", "", ""},
		{"Music/missing", "", ""},
		{"Music/song.mp3/extra", "", ""},
	}

	for _, tc := range testCases {
		dir, fe := root.Lookup(tc.path)
		gotDir, gotFile := "", ""
		if dir != nil {
			gotDir = dir.VirtualPath()
		}
		if fe != nil {
			gotFile = fe.VirtualPath()
		}
		if gotDir != tc.wantDir || gotFile != tc.wantFile {
			t.Errorf("Lookup(%q) = (%q, %q), want (%q, %q)", tc.path, gotDir, gotFile, tc.wantDir, tc.wantFile)
		}
	}

	// "" names the root itself
	if dir, _ := root.Lookup(""); dir != root {
		t.Error("Lookup(\"\") should return the root")
	}
}

func TestDirectory_MaxDepth(t *testing.T) {
	root := NewRoot(2)
	first, err := root.GetOrCreateSubdirectory("one")
	if err != nil {
		t.Fatalf("Depth 1 should be allowed: %v", err)
	}
	second, err := first.GetOrCreateSubdirectory("two")
	if err != nil {
		t.Fatalf("Depth 2 should be allowed: %v", err)
	}
	if _, err := second.GetOrCreateSubdirectory("three"); !errors.Is(err, ErrPathTooDeep) {
		t.Errorf("Expected ErrPathTooDeep at depth 3, got %v", err)
	}
	if second.Depth() != 2 {
		t.Errorf("Expected depth 2, got %d", second.Depth())
	}
}

func TestDirectory_RenameSubdirectory(t *testing.T) {
	root := buildTestTree(t)
	root.GetOrCreateSubdirectory("Backup")

	if err := root.renameSubdirectory("Music", "Tunes"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if root.Subdirectory("Music") != nil {
		t.Error("Old name should be gone")
	}
	if fe := root.Subdirectory("Tunes").File("song.mp3"); fe == nil || fe.VirtualPath() != "Tunes/song.mp3" {
		t.Error("Files should move with the renamed directory")
	}
	if err := root.renameSubdirectory("Tunes", "backup"); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName, got %v", err)
	}
	if err := root.renameSubdirectory("Tunes", "TUNES"); err != nil {
		t.Errorf("Changing only the case should succeed: %v", err)
	}
	if root.Subdirectory("tunes").Name() != "TUNES" {
		t.Error("Expected the new spelling to be kept")
	}
	if err := root.renameSubdirectory("Missing", "Other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
