package nanodc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateVirtual(t *testing.T) {
	testCases := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"Music", "Music", false},
		{"  Music  ", "Music", false},
		{"Mu/sic", "Music", false},
		{"Mu\\sic", "Music", false},
		{"", "", true},
		{"   ", "", true},
		{"/", "", true},
		{".", "", true},
		{"..", "", true},
		{"...", "...", false},
	}

	for _, tc := range testCases {
		got, err := ValidateVirtual(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateVirtual(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ValidateVirtual(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNamespaceMap_AddRemoveRename(t *testing.T) {
	base := t.TempDir()
	music := filepath.Join(base, "music")
	video := filepath.Join(base, "video")

	nm := NewNamespaceMap()
	if err := nm.Add(music, "Music"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := nm.Add(video+"/", "Video"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := nm.Add(music+"/./", "Other"); !errors.Is(err, ErrAlreadyShared) {
		t.Errorf("Expected ErrAlreadyShared for the same path, got %v", err)
	}
	if err := nm.Add(filepath.Join(base, "x"), "music"); !errors.Is(err, ErrNameConflict) {
		t.Errorf("Expected ErrNameConflict for a case variant, got %v", err)
	}

	mappings := nm.Mappings()
	if len(mappings) != 2 || mappings[0].Virtual != "Music" || mappings[1].Real != video {
		t.Errorf("Unexpected mappings %+v", mappings)
	}

	if m, ok := nm.Lookup("VIDEO"); !ok || m.Real != video {
		t.Errorf("Lookup should be case-insensitive, got %+v %v", m, ok)
	}

	newName, err := nm.Rename("music", "Tunes/")
	if err != nil || newName != "Tunes" {
		t.Fatalf("Rename = %q, %v", newName, err)
	}
	if _, err := nm.Rename("Tunes", "video"); !errors.Is(err, ErrNameConflict) {
		t.Errorf("Expected ErrNameConflict, got %v", err)
	}
	if _, err := nm.Rename("Tunes", "TUNES"); err != nil {
		t.Errorf("Renaming to a case variant of itself should work: %v", err)
	}
	if _, err := nm.Rename("Missing", "X"); !errors.Is(err, ErrNotShared) {
		t.Errorf("Expected ErrNotShared, got %v", err)
	}

	removed, err := nm.Remove("tunes")
	if err != nil || removed.Real != music {
		t.Fatalf("Remove = %+v, %v", removed, err)
	}
	if _, err := nm.Remove("tunes"); !errors.Is(err, ErrNotShared) {
		t.Errorf("Expected ErrNotShared, got %v", err)
	}
	if nm.Len() != 1 {
		t.Errorf("Expected 1 mapping left, got %d", nm.Len())
	}

	// the mappings slice is a copy
	mappings = nm.Mappings()
	mappings[0].Virtual = "Changed"
	if _, ok := nm.Lookup("Video"); !ok {
		t.Error("Modifying the returned slice changed the map")
	}
}

func TestNamespaceMap_ContainingMappings(t *testing.T) {
	base := t.TempDir()
	music := filepath.Join(base, "music")
	sub := filepath.Join(music, "sub")

	nm := NewNamespaceMap()
	nm.Add(music, "Music")
	nm.Add(sub, "Sub")
	nm.Add(filepath.Join(base, "musical"), "Musical")

	found, rels := nm.ContainingMappings(filepath.Join(sub, "a", "b.mp3"))
	if len(found) != 2 {
		t.Fatalf("Expected 2 containing mappings, got %+v", found)
	}
	if found[0].Virtual != "Music" || rels[0] != "sub/a/b.mp3" {
		t.Errorf("Unexpected first match %s %q", found[0].Virtual, rels[0])
	}
	if found[1].Virtual != "Sub" || rels[1] != "a/b.mp3" {
		t.Errorf("Unexpected second match %s %q", found[1].Virtual, rels[1])
	}

	found, rels = nm.ContainingMappings(music)
	if len(found) != 1 || rels[0] != "" {
		t.Errorf("A share root should match itself with an empty relative path, got %+v %q", found, rels)
	}

	// a shared prefix of the name is not containment
	if found, _ := nm.ContainingMappings(filepath.Join(base, "music2", "x")); len(found) != 0 {
		t.Errorf("Expected no match for a sibling directory, got %+v", found)
	}
}

func TestConfig_SharesPersist(t *testing.T) {
	stateDir := t.TempDir()
	cfg, err := LoadConfig(stateDir)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	shares := []ShareMapping{
		{Virtual: "Music", Real: "/srv/music"},
		{Virtual: "Films & TV", Real: "/srv/video files"},
		{Virtual: "#Music", Real: "/srv/hash"},
		{Virtual: ";Docs", Real: "/srv/docs;old"},
		{Virtual: "a=b", Real: "/srv/a=b"},
		{Virtual: "x:y", Real: "/srv/x#y"},
		{Virtual: "`tick`", Real: "/srv/`tick`"},
		{Virtual: `"quoted"`, Real: "/srv/tab\there"},
		{Virtual: "unicode ♫", Real: "/srv/line\nbreak"},
	}
	if err := cfg.SetShares(shares); err != nil {
		t.Fatalf("SetShares failed: %v", err)
	}

	reloaded, err := LoadConfig(stateDir)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	got := reloaded.GetShares()
	if len(got) != len(shares) {
		t.Fatalf("Expected %d shares, got %d: %+v", len(shares), len(got), got)
	}
	for i := range shares {
		if got[i] != shares[i] {
			t.Errorf("Share %d did not round trip: got %+v, want %+v", i, got[i], shares[i])
		}
	}

	if err := reloaded.SetShares(nil); err != nil {
		t.Fatalf("SetShares failed: %v", err)
	}
	if got := reloaded.GetShares(); len(got) != 0 {
		t.Errorf("Expected no shares, got %+v", got)
	}
}

func TestConfig_ReadsPlainShareLines(t *testing.T) {
	stateDir := t.TempDir()
	content := "[shares]\nMusic = /srv/music\nVideo = /srv/video\n"
	if err := os.WriteFile(filepath.Join(stateDir, ConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(stateDir)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	got := cfg.GetShares()
	want := []ShareMapping{{Virtual: "Music", Real: "/srv/music"}, {Virtual: "Video", Real: "/srv/video"}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestShareManager_SpecialShareNamesSurviveRestart(t *testing.T) {
	base := t.TempDir()
	stateDir := filepath.Join(base, "state")
	names := []string{"#Music", ";Docs", "a=b", "x:y", "`tick`"}

	sm := openTestManager(t, stateDir, &countingHasher{})
	for i, name := range names {
		dir := filepath.Join(base, fmt.Sprintf("share%d", i))
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
		if _, err := sm.AddShare(dir, name); err != nil {
			t.Fatalf("AddShare(%q) failed: %v", name, err)
		}
	}
	if err := sm.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := openTestManager(t, stateDir, &countingHasher{})
	got := reopened.Shares()
	if len(got) != len(names) {
		t.Fatalf("Expected %d shares after restart, got %+v", len(names), got)
	}
	for i, name := range names {
		if got[i].Virtual != name || got[i].Real != filepath.Join(base, fmt.Sprintf("share%d", i)) {
			t.Errorf("Share %d: got %+v, want %q", i, got[i], name)
		}
	}
}
