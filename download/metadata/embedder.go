// Package metadata writes tags into placed audio files and reads them back
// for maintenance.
package metadata

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AJMSD/raga/download/logging"
)

// Embedder embeds metadata into audio files. Cover art is fetched once per
// URL and reused for every track of the album.
type Embedder struct {
	client *http.Client

	mu     sync.Mutex
	covers map[string][]byte
}

// NewEmbedder creates a new metadata embedder.
func NewEmbedder() *Embedder {
	return &Embedder{
		client: &http.Client{Timeout: 10 * time.Second},
		covers: make(map[string][]byte),
	}
}

// Embed embeds metadata into an audio file. Only MP3 carries tags; other
// containers are left untouched.
func (e *Embedder) Embed(ctx context.Context, filePath string, song *Song) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filePath); err != nil {
		return &MetadataError{Op: OpOpen, Path: filePath, Original: err}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	if ext != "mp3" {
		logging.Debugf("metadata_embed_skipped file=%s format=%s", filePath, ext)
		return nil
	}

	if err := e.embedMP3(ctx, filePath, song); err != nil {
		log.Printf("ERROR: metadata_embed_failed file=%s track=%s error=%v", filePath, song.Title, err)
		return err
	}
	logging.Debugf("metadata_embed_complete file=%s track=%s artist=%s", filePath, song.Title, song.Artist)
	return nil
}

// cover returns the artwork at url, downloading it on first use.
func (e *Embedder) cover(ctx context.Context, url string) ([]byte, error) {
	e.mu.Lock()
	data, ok := e.covers[url]
	e.mu.Unlock()
	if ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download cover art: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download cover art: status %d", resp.StatusCode)
	}
	data, err = io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read cover art: %w", err)
	}

	e.mu.Lock()
	e.covers[url] = data
	e.mu.Unlock()
	return data, nil
}
