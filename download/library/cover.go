package library

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"

	"github.com/AJMSD/raga/download/catalog"
)

const (
	// Covers wider or taller than this are scaled down to coverSize.
	coverMaxSize = 640
	coverSize    = 300
)

// CoverFetcher downloads artwork with a bounded number of attempts.
type CoverFetcher struct {
	client     *http.Client
	attempts   int
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewCoverFetcher uses client, or a client with a 30s timeout when nil.
func NewCoverFetcher(client *http.Client) *CoverFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CoverFetcher{
		client:     client,
		attempts:   3,
		retryDelay: 3 * time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Fetch returns the body of url.
func (f *CoverFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		log.Printf("WARN: cover_fetch_failed url=%s attempt=%d error=%v", url, attempt, err)
		if attempt < f.attempts {
			if err := f.sleep(ctx, f.retryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (f *CoverFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 20<<20))
}

// PrepareCover returns data unchanged when the image is at most 640px on
// each side, otherwise a Catmull-Rom downscale to fit 300x300 as JPEG.
func PrepareCover(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode cover: %w", err)
	}
	if cfg.Width <= coverMaxSize && cfg.Height <= coverMaxSize {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode cover: %w", err)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width >= height {
		height = max(1, height*coverSize/width)
		width = coverSize
	} else {
		width = max(1, width*coverSize/height)
		height = coverSize
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCover saves the entity artwork as cover.jpg in the target folder.
// An existing cover is kept. Entities without artwork are skipped.
func (o *Organizer) WriteCover(ctx context.Context, target *Target) (string, error) {
	img, ok := catalog.CoverImage(target.Entity.Images())
	if !ok {
		return "", nil
	}
	path := filepath.Join(target.Dir, CoverFileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	data, err := o.cover.Fetch(ctx, img.URL)
	if err != nil {
		return "", &PlacementError{Path: path, Message: "cannot download cover art", Original: err}
	}
	data, err = PrepareCover(data)
	if err != nil {
		return "", &PlacementError{Path: path, Message: "cannot process cover art", Original: err}
	}
	if err := writeAtomic(path, data); err != nil {
		return "", &PlacementError{Path: path, Message: "cannot write cover art", Original: err}
	}
	log.Printf("INFO: cover_written entity_id=%s path=%q", target.Entity.ID(), path)
	return path, nil
}

// writeAtomic writes data to path through a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
