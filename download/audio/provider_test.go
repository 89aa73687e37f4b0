package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
	onRun  func(args []string)
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.onRun != nil {
		f.onRun(args)
	}
	return f.output, f.err
}

func testProvider(r *fakeRunner) *Provider {
	return newProvider(&Config{
		Format:           "mp3",
		Bitrate:          "192K",
		SearchCandidates: 3,
		CacheMaxSize:     10,
		CacheTTL:         time.Hour,
	}, r.run)
}

const searchOutput = `{"id":"abc","title":"Halo (Official Video)","url":"https://www.youtube.com/watch?v=abc","uploader":"Beyonce","duration":261.0}
{"id":"def","title":"Halo (Karaoke Version)","channel":"Sing King","duration":270}
`

func TestParseSearchOutput(t *testing.T) {
	candidates, err := parseSearchOutput([]byte(searchOutput))
	if err != nil {
		t.Fatalf("parseSearchOutput() error = %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("len(candidates) = %d, want 2", len(candidates))
	}
	if candidates[0].URL != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("candidates[0].URL = %q, want watch URL", candidates[0].URL)
	}
	if candidates[0].Duration != 261 {
		t.Errorf("candidates[0].Duration = %d, want 261", candidates[0].Duration)
	}
	if candidates[1].URL != "https://www.youtube.com/watch?v=def" {
		t.Errorf("candidates[1].URL = %q, want URL built from id", candidates[1].URL)
	}
	if candidates[1].Uploader != "Sing King" {
		t.Errorf("candidates[1].Uploader = %q, want channel fallback", candidates[1].Uploader)
	}
}

func TestParseSearchOutput_Invalid(t *testing.T) {
	_, err := parseSearchOutput([]byte("not json"))
	var searchErr *SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("parseSearchOutput() error = %v, want *SearchError", err)
	}
}

func TestParseSearchOutput_Empty(t *testing.T) {
	candidates, err := parseSearchOutput([]byte("\n"))
	if err != nil || len(candidates) != 0 {
		t.Errorf("parseSearchOutput(empty) = %v, %v; want no candidates", candidates, err)
	}
}

func TestSearch_UsesCandidateCountAndCaches(t *testing.T) {
	r := &fakeRunner{output: []byte(searchOutput)}
	p := testProvider(r)

	for i := 0; i < 2; i++ {
		candidates, err := p.Search(context.Background(), "Beyonce - Halo")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(candidates) != 2 {
			t.Fatalf("len(candidates) = %d, want 2", len(candidates))
		}
	}
	if len(r.calls) != 1 {
		t.Fatalf("yt-dlp invoked %d times, want 1 (second search cached)", len(r.calls))
	}
	if last := r.calls[0][len(r.calls[0])-1]; last != "ytsearch3:Beyonce - Halo" {
		t.Errorf("search target = %q, want %q", last, "ytsearch3:Beyonce - Halo")
	}

	// Queries differing only in case and spacing share the cache entry.
	if _, err := p.Search(context.Background(), "beyonce  -  HALO"); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(r.calls) != 1 {
		t.Errorf("yt-dlp invoked %d times, want 1 after normalized query", len(r.calls))
	}
}

func TestSearch_NoResults(t *testing.T) {
	r := &fakeRunner{output: nil}
	p := testProvider(r)

	_, err := p.Search(context.Background(), "nothing here")
	var searchErr *SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("Search() error = %v, want *SearchError", err)
	}
	if !errors.Is(err, ErrNoCandidates) || searchErr.Query != "nothing here" {
		t.Errorf("Search() error = %v, want ErrNoCandidates for the query", err)
	}
	_, err = p.Search(context.Background(), "nothing here")
	if !errors.As(err, &searchErr) || !strings.Contains(searchErr.Message, "cached") {
		t.Errorf("second Search() error = %v, want cached SearchError", err)
	}
	if len(r.calls) != 1 {
		t.Errorf("yt-dlp invoked %d times, want 1", len(r.calls))
	}
}

func TestSearch_RateLimited(t *testing.T) {
	r := &fakeRunner{err: errors.New("exit status 1: HTTP Error 429: Too Many Requests")}
	p := testProvider(r)

	_, err := p.Search(context.Background(), "q")
	var searchErr *SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("Search() error = %v, want *SearchError", err)
	}
	if !searchErr.RateLimited {
		t.Error("SearchError.RateLimited = false, want true")
	}
}

func TestDownloadArgs(t *testing.T) {
	p := testProvider(&fakeRunner{})
	args := p.downloadArgs("https://www.youtube.com/watch?v=abc", "/stage/track")

	want := [][2]string{
		{"--format", "bestaudio/best"},
		{"--audio-format", "mp3"},
		{"--audio-quality", "192K"},
		{"--output", "/stage/track.%(ext)s"},
		{"--retries", "5"},
		{"--socket-timeout", "30"},
	}
	for _, pair := range want {
		i := slices.Index(args, pair[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != pair[1] {
			t.Errorf("downloadArgs() missing %s %s in %v", pair[0], pair[1], args)
		}
	}
	if !slices.Contains(args, "--no-playlist") {
		t.Error("downloadArgs() missing --no-playlist")
	}
	if args[len(args)-1] != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("last arg = %q, want the URL", args[len(args)-1])
	}

	p.config.Bitrate = "disable"
	if slices.Contains(p.downloadArgs("u", "/b"), "--audio-quality") {
		t.Error("downloadArgs() with bitrate disable still sets --audio-quality")
	}
}

func TestDownload_FindsProducedFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "nested", "track")
	r := &fakeRunner{onRun: func(args []string) {
		if err := os.WriteFile(base+".mp3", []byte("audio"), 0644); err != nil {
			t.Fatal(err)
		}
	}}
	p := testProvider(r)

	path, err := p.Download(context.Background(), "https://www.youtube.com/watch?v=abc", base)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if path != base+".mp3" {
		t.Errorf("Download() = %q, want %q", path, base+".mp3")
	}
}

func TestDownload_MissingOutput(t *testing.T) {
	p := testProvider(&fakeRunner{})
	_, err := p.Download(context.Background(), "u", filepath.Join(t.TempDir(), "track"))
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("Download() error = %v, want *DownloadError", err)
	}
}

func TestDownload_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &fakeRunner{err: errors.New("signal: killed")}
	p := testProvider(r)

	_, err := p.Download(ctx, "u", filepath.Join(t.TempDir(), "track"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Download() error = %v, want context.Canceled", err)
	}
}

func TestFindDownloadedFile_PrefersFormat(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "track")
	for _, ext := range []string{".webm", ".opus"} {
		if err := os.WriteFile(base+ext, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if got := findDownloadedFile(base, "opus"); got != base+".opus" {
		t.Errorf("findDownloadedFile() = %q, want %q", got, base+".opus")
	}
	if got := findDownloadedFile(base, "m4a"); got != base+".webm" {
		t.Errorf("findDownloadedFile() = %q, want %q", got, base+".webm")
	}
	if got := findDownloadedFile(filepath.Join(dir, "none"), "mp3"); got != "" {
		t.Errorf("findDownloadedFile() = %q, want empty", got)
	}
}
