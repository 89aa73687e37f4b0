package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extensions yt-dlp may leave behind, in lookup order.
var downloadExtensions = []string{".mp3", ".m4a", ".webm", ".opus"}

type ytDlpEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	Uploader   string  `json:"uploader"`
	Channel    string  `json:"channel"`
	Duration   float64 `json:"duration"`
}

// parseSearchOutput reads the one-JSON-object-per-line output of a flat search.
func parseSearchOutput(output []byte) ([]Candidate, error) {
	var candidates []Candidate
	for _, raw := range bytes.Split(bytes.TrimSpace(output), []byte("\n")) {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var entry ytDlpEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, &SearchError{Message: "unreadable yt-dlp output", Original: err}
		}
		url := entry.WebpageURL
		if url == "" || !strings.HasPrefix(url, "http") {
			url = entry.URL
		}
		if url == "" && entry.ID != "" {
			url = "https://www.youtube.com/watch?v=" + entry.ID
		}
		if url == "" {
			continue
		}
		uploader := entry.Uploader
		if uploader == "" {
			uploader = entry.Channel
		}
		candidates = append(candidates, Candidate{
			ID:       entry.ID,
			Title:    entry.Title,
			URL:      url,
			Uploader: uploader,
			Duration: int(entry.Duration),
		})
	}
	return candidates, nil
}

// downloadArgs builds the yt-dlp invocation for one URL into outBase.<ext>.
func (p *Provider) downloadArgs(url, outBase string) []string {
	args := []string{
		"--format", "bestaudio/best",
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		"--encoding", "UTF-8",
		"--retries", "5",
		"--fragment-retries", "5",
		"--file-access-retries", "3",
		"--socket-timeout", seconds(p.config.SocketTimeout, 30),
		"--retry-sleep", seconds(p.config.RetrySleep, 3),
		"--output", outBase + ".%(ext)s",
		"--extract-audio",
		"--audio-format", p.config.Format,
	}
	if p.config.Bitrate != "" && p.config.Bitrate != "disable" {
		args = append(args, "--audio-quality", p.config.Bitrate)
	}
	return append(args, url)
}

// Download fetches url into outBase plus the extension yt-dlp produces and
// returns the file path. outBase has no extension.
func (p *Provider) Download(ctx context.Context, url, outBase string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outBase), 0755); err != nil {
		return "", &DownloadError{URL: url, Message: "cannot create output directory", Original: err}
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	if _, err := p.run(ctx, p.config.Binary, p.downloadArgs(url, outBase)...); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &DownloadError{URL: url, Message: "yt-dlp download failed", RateLimited: isRateLimited(err), Original: err}
	}

	path := findDownloadedFile(outBase, p.config.Format)
	if path == "" {
		return "", &DownloadError{URL: url, Message: fmt.Sprintf("no output file at %s", outBase)}
	}
	return path, nil
}

// findDownloadedFile locates outBase.<ext>, preferring the configured format.
func findDownloadedFile(outBase, format string) string {
	exts := append([]string{"." + format}, downloadExtensions...)
	for _, ext := range exts {
		candidate := outBase + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
