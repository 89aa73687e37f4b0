package download

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/AJMSD/raga/download/audio"
	"github.com/AJMSD/raga/download/catalog"
	"github.com/AJMSD/raga/download/filter"
	"github.com/AJMSD/raga/download/hashcache"
)

// AudioSource finds and fetches audio. *audio.Provider implements it.
type AudioSource interface {
	Search(ctx context.Context, query string) ([]audio.Candidate, error)
	Download(ctx context.Context, url, outBase string) (string, error)
}

// AcquisitionError reports a track whose audio could not be obtained.
type AcquisitionError struct {
	TrackID  string
	Query    string
	Attempts int
	Original error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("failed to acquire %q after %d attempts: %v", e.Query, e.Attempts, e.Original)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Original
}

// Downloader acquires audio for one track into a staging directory and
// hashes it. The staged file belongs to the caller.
type Downloader struct {
	source     AudioSource
	stagingDir string
	maxRetries int
	retryDelay time.Duration
	seq        atomic.Int64
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewDownloader creates a downloader writing into stagingDir.
func NewDownloader(source AudioSource, stagingDir string, maxRetries int, retryDelay time.Duration) *Downloader {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Downloader{
		source:     source,
		stagingDir: stagingDir,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SearchQuery is the audio search text for a track.
func SearchQuery(track *catalog.Track) string {
	if artists := track.ArtistNames(); artists != "" {
		return artists + " - " + track.Name
	}
	return track.Name
}

// Acquire retries up to maxRetries times. A rate limited attempt waits
// longer than the configured delay.
func (d *Downloader) Acquire(ctx context.Context, track *catalog.Track) (*audio.Asset, error) {
	query := SearchQuery(track)

	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		asset, err := d.attempt(ctx, track, query)
		if err == nil {
			return asset, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt < d.maxRetries {
			wait := d.retryDelay
			if rateLimited(err) {
				wait = time.Duration(1<<uint(attempt))*time.Second + d.retryDelay
			}
			log.Printf("INFO: acquire_retry track_id=%s attempt=%d max_retries=%d wait_seconds=%d error=%v", track.TrackID, attempt, d.maxRetries, int(wait.Seconds()), err)
			if err := d.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	log.Printf("ERROR: acquire_failed track_id=%s query=%q attempts=%d error=%v", track.TrackID, query, d.maxRetries, lastErr)
	return nil, &AcquisitionError{TrackID: track.TrackID, Query: query, Attempts: d.maxRetries, Original: lastErr}
}

func rateLimited(err error) bool {
	var searchErr *audio.SearchError
	if errors.As(err, &searchErr) && searchErr.RateLimited {
		return true
	}
	var dlErr *audio.DownloadError
	return errors.As(err, &dlErr) && dlErr.RateLimited
}

// attempt searches, picks the first non-instrumental candidate, downloads
// and hashes it. Partial output is removed on failure.
func (d *Downloader) attempt(ctx context.Context, track *catalog.Track, query string) (*audio.Asset, error) {
	candidates, err := d.source.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	candidates = filter.Instrumental(candidates, func(c audio.Candidate) string { return c.Title })
	if len(candidates) == 0 {
		return nil, &audio.SearchError{Query: query, Message: "no candidates", Original: audio.ErrNoCandidates}
	}
	chosen := candidates[0]
	log.Printf("INFO: acquire_start track_id=%s query=%q source=%s title=%q", track.TrackID, query, chosen.URL, chosen.Title)

	base := filepath.Join(d.stagingDir, fmt.Sprintf("%06d-%s", d.seq.Add(1), track.TrackID))
	path, err := d.source.Download(ctx, chosen.URL, base)
	if err != nil {
		removeStaged(base)
		return nil, err
	}

	hash, size, err := hashcache.HashFile(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("hash staged file: %w", err)
	}
	if size == 0 {
		os.Remove(path)
		return nil, &audio.DownloadError{URL: chosen.URL, Message: "downloaded file is empty"}
	}
	return &audio.Asset{Path: path, Size: size, Hash: hash}, nil
}

// removeStaged deletes whatever yt-dlp left for base, including part files.
func removeStaged(base string) {
	matches, _ := filepath.Glob(base + ".*")
	for _, m := range matches {
		os.Remove(m)
	}
}
