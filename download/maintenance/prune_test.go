package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type fakeCache struct {
	forgotten []string
	pruned    bool
	dryRun    bool
}

func (f *fakeCache) Forget(path string) error {
	f.forgotten = append(f.forgotten, path)
	return nil
}

func (f *fakeCache) Prune(dryRun bool) ([]string, error) {
	f.pruned = true
	f.dryRun = dryRun
	return []string{"gone.mp3"}, nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// buildTree lays out a library with one tagged album by Ann, a folder named
// after Rush, album art to rename, a song to keep and an empty folder.
func buildTree(t *testing.T) (string, *Pruner, *fakeCache) {
	t.Helper()
	root := t.TempDir()
	tagged := filepath.Join(root, "Blue", "01 - One.mp3")
	writeFile(t, tagged)
	writeFile(t, filepath.Join(root, "Blue", "cover.jpg"))
	writeFile(t, filepath.Join(root, "Blue", ".raga-album"))
	writeFile(t, filepath.Join(root, "Rush", "Tom Sawyer.mp3"))
	writeFile(t, filepath.Join(root, "Other", "album_art.png"))
	writeFile(t, filepath.Join(root, "Keep", "Bob - Solo.m4a"))
	if err := os.MkdirAll(filepath.Join(root, "Empty", "Nested"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cache := &fakeCache{}
	p := New(root, cache)
	p.readArtists = func(path string) ([]string, error) {
		if path == tagged {
			return []string{"Ann"}, nil
		}
		return nil, nil
	}
	return root, p, cache
}

func TestPruner_Run(t *testing.T) {
	root, p, cache := buildTree(t)

	report, err := p.Run(context.Background(), Options{Artists: []string{"Ann", "Rush"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.RemovedFiles) != 2 {
		t.Errorf("RemovedFiles = %v, want 2 files", report.RemovedFiles)
	}
	if report.PerArtist["Ann"] != 1 || report.PerArtist["Rush"] != 1 {
		t.Errorf("PerArtist = %v, want one file each", report.PerArtist)
	}
	if report.RenamedArt != 1 {
		t.Errorf("RenamedArt = %d, want 1", report.RenamedArt)
	}
	// Blue, Rush, Empty/Nested and Empty.
	if report.RemovedFolders != 4 {
		t.Errorf("RemovedFolders = %d, want 4", report.RemovedFolders)
	}
	if report.PrunedEntries != 1 || !cache.pruned || cache.dryRun {
		t.Errorf("cache prune = %v dryRun=%v entries=%d", cache.pruned, cache.dryRun, report.PrunedEntries)
	}
	if len(cache.forgotten) != 2 {
		t.Errorf("forgotten = %v, want both removed files", cache.forgotten)
	}

	for _, gone := range []string{"Blue", "Rush", "Empty"} {
		if exists(filepath.Join(root, gone)) {
			t.Errorf("%s still exists", gone)
		}
	}
	for _, kept := range []string{
		filepath.Join(root, "Keep", "Bob - Solo.m4a"),
		filepath.Join(root, "Other", "cover.png"),
	} {
		if !exists(kept) {
			t.Errorf("%s missing", kept)
		}
	}
	if exists(filepath.Join(root, "Other", "album_art.png")) {
		t.Error("album_art.png was not renamed")
	}
	if !exists(root) {
		t.Error("root was removed")
	}
}

func TestPruner_DryRunChangesNothing(t *testing.T) {
	root, p, cache := buildTree(t)

	report, err := p.Run(context.Background(), Options{Artists: []string{"Ann", "Rush"}, DryRun: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.RemovedFiles) != 2 || report.RenamedArt != 1 || report.RemovedFolders != 4 {
		t.Errorf("dry run report = %+v", report)
	}
	if !cache.dryRun || len(cache.forgotten) != 0 {
		t.Errorf("dry run touched the cache: dryRun=%v forgotten=%v", cache.dryRun, cache.forgotten)
	}
	for _, still := range []string{
		filepath.Join(root, "Blue", "01 - One.mp3"),
		filepath.Join(root, "Rush", "Tom Sawyer.mp3"),
		filepath.Join(root, "Other", "album_art.png"),
		filepath.Join(root, "Empty", "Nested"),
	} {
		if !exists(still) {
			t.Errorf("dry run removed %s", still)
		}
	}
}

func TestPruner_KeepsExistingCover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "album_art.jpg"))
	writeFile(t, filepath.Join(root, "A", "cover.jpg"))
	writeFile(t, filepath.Join(root, "A", "01 - Song.mp3"))

	report, err := New(root, nil).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.RenamedArt != 0 || report.SkippedArt != 1 {
		t.Errorf("RenamedArt = %d SkippedArt = %d, want 0 and 1", report.RenamedArt, report.SkippedArt)
	}
	if !exists(filepath.Join(root, "A", "album_art.jpg")) {
		t.Error("album_art.jpg removed although cover exists")
	}
}

func TestPruner_MissingRoot(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope"), nil).Run(context.Background(), Options{}); err == nil {
		t.Error("Run() error = nil for missing root")
	}
}

func TestArtistMatching(t *testing.T) {
	index := buildIndex([]string{"AC/DC", "Daft Punk", "  "})
	if len(index) != 2 {
		t.Fatalf("buildIndex() kept %d entries, want 2", len(index))
	}
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"ACDC - Back in Black", "AC/DC", true},
		{"ac dc", "AC/DC", true},
		{"Daft-Punk", "Daft Punk", true},
		{"07 - Around the World (daft punk)", "Daft Punk", true},
		{"Punk Daft", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := findArtist([]string{tt.text}, index)
		if got != tt.want || ok != tt.ok {
			t.Errorf("findArtist(%q) = %q, %v, want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}
