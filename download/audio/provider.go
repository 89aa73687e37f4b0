// Package audio finds and fetches audio for a track through yt-dlp.
package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/AJMSD/raga/download/spotify"
)

// Config holds configuration for the audio provider.
type Config struct {
	Binary string // yt-dlp executable, "yt-dlp" when empty

	Format  string // mp3, m4a or opus
	Bitrate string // e.g. 192K, or "disable" to keep the source quality

	SearchCandidates int
	SocketTimeout    time.Duration
	RetrySleep       time.Duration

	CacheMaxSize int
	CacheTTL     time.Duration

	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Candidate is one search result from the audio source.
type Candidate struct {
	ID       string
	Title    string
	URL      string
	Uploader string
	Duration int // seconds
}

// runFunc executes the binary and returns its stdout, or an error carrying stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Provider searches and downloads audio with yt-dlp.
type Provider struct {
	config      *Config
	searchCache *spotify.TTLCache
	limiter     *spotify.RateLimiter
	run         runFunc
}

// NewProvider creates a provider. It fails when the yt-dlp binary is missing.
func NewProvider(config *Config) (*Provider, error) {
	if config.Binary == "" {
		config.Binary = "yt-dlp"
	}
	if _, err := exec.LookPath(config.Binary); err != nil {
		return nil, fmt.Errorf("yt-dlp not found on PATH: %w", err)
	}
	return newProvider(config, runCommand), nil
}

func newProvider(config *Config, run runFunc) *Provider {
	if config.Binary == "" {
		config.Binary = "yt-dlp"
	}
	if config.SearchCandidates <= 0 {
		config.SearchCandidates = 5
	}
	if config.Format == "" {
		config.Format = "mp3"
	}
	return &Provider{
		config:      config,
		searchCache: spotify.NewTTLCache(config.CacheMaxSize, config.CacheTTL),
		limiter:     spotify.NewRateLimiter(config.RateLimitEnabled, config.RateLimitRequests, config.RateLimitWindow),
		run:         run,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Format returns the target audio extension without the dot.
func (p *Provider) Format() string { return p.config.Format }

// Search returns up to the configured number of candidates for query in
// source ranking order. Results are cached, including empty ones.
func (p *Provider) Search(ctx context.Context, query string) ([]Candidate, error) {
	key := normalizeQuery(query)
	if cached, ok := p.searchCache.Get(key); ok {
		if candidates, ok := cached.([]Candidate); ok {
			if len(candidates) == 0 {
				return nil, noCandidates(query, "no candidates (cached)")
			}
			return candidates, nil
		}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	args := []string{
		"--quiet",
		"--no-warnings",
		"--flat-playlist",
		"--dump-json",
		"--socket-timeout", seconds(p.config.SocketTimeout, 30),
		fmt.Sprintf("ytsearch%d:%s", p.config.SearchCandidates, query),
	}
	output, err := p.run(ctx, p.config.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SearchError{Query: query, Message: "yt-dlp search failed", RateLimited: isRateLimited(err), Original: err}
	}

	candidates, err := parseSearchOutput(output)
	if err != nil {
		return nil, err
	}
	p.searchCache.Set(key, candidates)
	if len(candidates) == 0 {
		return nil, noCandidates(query, "no candidates")
	}
	return candidates, nil
}

// CacheStats returns search cache statistics.
func (p *Provider) CacheStats() spotify.CacheStats {
	return p.searchCache.Stats()
}

func normalizeQuery(query string) string {
	return "audio_search:" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func seconds(d time.Duration, fallback int) string {
	if d <= 0 {
		return fmt.Sprint(fallback)
	}
	return fmt.Sprint(int(d.Seconds()))
}
