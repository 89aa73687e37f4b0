package library

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AJMSD/raga/download/catalog"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func noSleepFetcher(client *http.Client) *CoverFetcher {
	f := NewCoverFetcher(client)
	f.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AC/DC", "AC_DC"},
		{`What? "Why" <Not>|*:\`, "What_ _Why_ _Not_____"},
		{"  padded  ", "padded"},
		{"Trailing...", "Trailing"},
		{"tab\there", "tab_here"},
		{"", "_"},
		{"...", "_"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTrackBaseName(t *testing.T) {
	track := &catalog.Track{
		Name:        "Halo",
		TrackNumber: 3,
		Artists:     []catalog.ArtistRef{{Name: "Beyoncé"}, {Name: "AC/DC"}},
	}
	tests := []struct {
		mode     Mode
		position int
		want     string
	}{
		{ModeAlbums, 7, "03 - Halo"},
		{ModePlaylists, 7, "007 - Beyoncé, AC_DC - Halo"},
		{ModeSongs, 1, "Beyoncé, AC_DC - Halo"},
	}
	for _, tt := range tests {
		if got := TrackBaseName(tt.mode, track, tt.position); got != tt.want {
			t.Errorf("TrackBaseName(%s) = %q, want %q", tt.mode, got, tt.want)
		}
	}

	untracked := &catalog.Track{Name: "Intro"}
	if got := TrackBaseName(ModeAlbums, untracked, 1); got != "Intro" {
		t.Errorf("TrackBaseName(no number) = %q, want %q", got, "Intro")
	}
}

func TestEntityDir(t *testing.T) {
	album := &catalog.Album{Name: "I Am... Sasha Fierce"}
	if got := EntityDir(ModeAlbums, album); got != "I Am... Sasha Fierce" {
		t.Errorf("EntityDir(album) = %q", got)
	}
	playlist := &catalog.Playlist{Name: "Road/Trip"}
	if got := EntityDir(ModePlaylists, playlist); got != filepath.Join("Playlists", "Road_Trip") {
		t.Errorf("EntityDir(playlist) = %q", got)
	}
	if got := EntityDir(ModeSongs, &catalog.Track{}); got != "" {
		t.Errorf("EntityDir(songs) = %q, want root", got)
	}
}

func TestUniqueBase_AcrossExtensions(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "Song")
	writeFile(t, base+".m4a", []byte("a"))
	writeFile(t, base+" (2).opus", []byte("b"))

	if got := UniqueBase(base); got != base+" (3)" {
		t.Errorf("UniqueBase() = %q, want %q", got, base+" (3)")
	}
	if got := UniqueBase(filepath.Join(dir, "Other")); got != filepath.Join(dir, "Other") {
		t.Errorf("UniqueBase(free) = %q", got)
	}
}

func TestPrepare_ReusesOwnFolderAndSuffixesForeign(t *testing.T) {
	root := t.TempDir()
	o := NewOrganizer(root, Options{})

	first := &catalog.Album{AlbumID: "a1", Name: "Greatest Hits"}
	other := &catalog.Album{AlbumID: "a2", Name: "Greatest Hits"}

	t1, err := o.Prepare(ModeAlbums, first)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	again, err := o.Prepare(ModeAlbums, first)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if again.Dir != t1.Dir {
		t.Errorf("Prepare(same album) = %q, want reuse of %q", again.Dir, t1.Dir)
	}

	t2, err := o.Prepare(ModeAlbums, other)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if want := filepath.Join(root, "Greatest Hits (2)"); t2.Dir != want {
		t.Errorf("Prepare(other album) = %q, want %q", t2.Dir, want)
	}
	marker, _ := os.ReadFile(filepath.Join(t2.Dir, AlbumMarkerFile))
	if strings.TrimSpace(string(marker)) != "a2" {
		t.Errorf("marker = %q, want a2", marker)
	}
}

func TestPrepare_AdoptsUnmarkedFolder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Playlists", "Chill", "001 - A - B.mp3"), []byte("x"))
	o := NewOrganizer(root, Options{})

	target, err := o.Prepare(ModePlaylists, &catalog.Playlist{PlaylistID: "p1", Name: "Chill"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if target.Dir != filepath.Join(root, "Playlists", "Chill") {
		t.Errorf("Prepare() = %q, want existing folder", target.Dir)
	}
	if !fileExists(filepath.Join(target.Dir, PlaylistMarkerFile)) {
		t.Error("playlist marker not written")
	}
}

func TestPlace_NeverOverwrites(t *testing.T) {
	root := t.TempDir()
	o := NewOrganizer(root, Options{})
	album := &catalog.Album{AlbumID: "a1", Name: "Album"}
	target, err := o.Prepare(ModeAlbums, album)
	if err != nil {
		t.Fatal(err)
	}
	track := &catalog.Track{TrackID: "t1", Name: "Song", TrackNumber: 1}
	writeFile(t, filepath.Join(target.Dir, "01 - Song.m4a"), []byte("existing"))

	staged := filepath.Join(t.TempDir(), "stage.MP3")
	writeFile(t, staged, []byte("new"))

	dest, err := o.Place(target, staged, track, 1)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if want := filepath.Join(target.Dir, "01 - Song (2).mp3"); dest != want {
		t.Errorf("Place() = %q, want %q", dest, want)
	}
	if fileExists(staged) {
		t.Error("staged file still present after Place()")
	}
	existing, _ := os.ReadFile(filepath.Join(target.Dir, "01 - Song.m4a"))
	if string(existing) != "existing" {
		t.Error("existing file was modified")
	}
}

func TestPlace_MissingStagedFile(t *testing.T) {
	o := NewOrganizer(t.TempDir(), Options{})
	target, _ := o.Prepare(ModeSongs, &catalog.Track{TrackID: "t"})
	_, err := o.Place(target, filepath.Join(t.TempDir(), "gone.mp3"), &catalog.Track{Name: "x"}, 1)
	var placeErr *PlacementError
	if !errors.As(err, &placeErr) {
		t.Errorf("Place() error = %v, want *PlacementError", err)
	}
}

func TestPrepareCover(t *testing.T) {
	small := pngImage(t, 300, 300)
	out, err := PrepareCover(small)
	if err != nil {
		t.Fatalf("PrepareCover(small) error = %v", err)
	}
	if !bytes.Equal(out, small) {
		t.Error("PrepareCover(small) changed the image")
	}

	out, err = PrepareCover(pngImage(t, 1280, 640))
	if err != nil {
		t.Fatalf("PrepareCover(large) error = %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("resized cover is not JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 150 {
		t.Errorf("resized cover = %dx%d, want 300x150", b.Dx(), b.Dy())
	}

	if _, err := PrepareCover([]byte("not an image")); err == nil {
		t.Error("PrepareCover(garbage) error = nil, want error")
	}
}

func TestWriteCover_RetriesAndKeepsExisting(t *testing.T) {
	data := pngImage(t, 300, 300)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	root := t.TempDir()
	o := NewOrganizer(root, Options{Cover: noSleepFetcher(srv.Client())})
	album := &catalog.Album{
		AlbumID: "a1",
		Name:    "Album",
		Artwork: []catalog.Image{
			{URL: srv.URL + "/640", Width: 640},
			{URL: srv.URL + "/300", Width: 300},
			{URL: srv.URL + "/64", Width: 64},
		},
	}
	target, _ := o.Prepare(ModeAlbums, album)

	path, err := o.WriteCover(context.Background(), target)
	if err != nil {
		t.Fatalf("WriteCover() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("requests = %d, want 3", hits.Load())
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, data) {
		t.Error("cover.jpg content differs from served image")
	}

	if _, err := o.WriteCover(context.Background(), target); err != nil {
		t.Fatalf("second WriteCover() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("requests = %d after second call, want 3 (existing cover kept)", hits.Load())
	}
}

func TestWriteCover_GivesUpAfterThreeAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	o := NewOrganizer(t.TempDir(), Options{Cover: noSleepFetcher(srv.Client())})
	album := &catalog.Album{AlbumID: "a1", Name: "Album", Artwork: []catalog.Image{{URL: srv.URL}}}
	target, _ := o.Prepare(ModeAlbums, album)

	if _, err := o.WriteCover(context.Background(), target); err == nil {
		t.Fatal("WriteCover() error = nil, want error")
	}
	if hits.Load() != 3 {
		t.Errorf("requests = %d, want 3", hits.Load())
	}
	if fileExists(filepath.Join(target.Dir, CoverFileName)) {
		t.Error("cover.jpg written despite failure")
	}
}

func TestRenderPlaylist(t *testing.T) {
	dir := filepath.Join("/music", "Playlists", "Mix")
	entries := []PlaylistEntry{
		{Track: &catalog.Track{Name: "Halo", Artists: []catalog.ArtistRef{{Name: "Beyoncé"}}}, Path: filepath.Join(dir, "001 - Beyoncé - Halo.mp3")},
		{Track: &catalog.Track{Name: "YYZ", Artists: []catalog.ArtistRef{{Name: "Rush"}}}, Path: filepath.Join("/music", "Moving Pictures", "02 - YYZ.mp3")},
	}
	want := "#EXTM3U\n" +
		"#EXTINF:-1,Beyoncé - Halo\n001 - Beyoncé - Halo.mp3\n" +
		"#EXTINF:-1,Rush - YYZ\n../../Moving Pictures/02 - YYZ.mp3\n"
	if got := RenderPlaylist(dir, entries); got != want {
		t.Errorf("RenderPlaylist() = %q, want %q", got, want)
	}
}

type recordingMover struct {
	moves map[string]string
}

func (m *recordingMover) Moved(oldPath, newPath string) error {
	m.moves[oldPath] = newPath
	return nil
}

func TestGroupSongs(t *testing.T) {
	root := t.TempDir()
	placeholder := filepath.Join(t.TempDir(), "placeholder.jpg")
	writeFile(t, placeholder, []byte("jpg"))

	o := NewOrganizer(root, Options{GroupThreshold: 2, PlaceholderImage: placeholder})
	a := filepath.Join(root, "Rush - YYZ.mp3")
	b := filepath.Join(root, "Rush - Limelight.mp3")
	c := filepath.Join(root, "Beyoncé - Halo.mp3")
	for _, p := range []string{a, b, c} {
		writeFile(t, p, []byte(p))
	}
	// A song from an earlier run already in the artist folder forces a unique name.
	writeFile(t, filepath.Join(root, "Rush", "Rush - YYZ.mp3"), []byte("old"))

	mover := &recordingMover{moves: map[string]string{}}
	moves := o.GroupSongs([]PlacedSong{
		{Artist: "Rush", Path: a},
		{Artist: "Rush", Path: b},
		{Artist: "Beyoncé", Path: c},
	}, mover)

	if len(moves) != 2 || len(mover.moves) != 2 {
		t.Fatalf("moves = %v, want 2", moves)
	}
	if want := filepath.Join(root, "Rush", "Rush - YYZ (2).mp3"); moves[a] != want {
		t.Errorf("moves[YYZ] = %q, want %q", moves[a], want)
	}
	if !fileExists(filepath.Join(root, "Rush", "Rush - Limelight.mp3")) {
		t.Error("Limelight not moved into artist folder")
	}
	if !fileExists(c) {
		t.Error("single Beyoncé song moved, want left at root")
	}
	if !fileExists(filepath.Join(root, "Rush", PlaceholderFileName)) {
		t.Error("placeholder.jpg not copied")
	}
}

func TestGroupSongs_Disabled(t *testing.T) {
	o := NewOrganizer(t.TempDir(), Options{})
	if moves := o.GroupSongs([]PlacedSong{{Artist: "A", Path: "x"}, {Artist: "A", Path: "y"}}, nil); len(moves) != 0 {
		t.Errorf("GroupSongs() = %v, want no moves", moves)
	}
}
