// Package hashcache keeps a durable index of content hashes for every audio
// file under a destination root, so a download whose audio is already present
// anywhere in the tree can be discarded.
package hashcache

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultFileName is the cache file created at the destination root.
	DefaultFileName = ".raga-hashes.jsonl"
	schemaName      = "raga.hashcache"
	schemaVersion   = 1
	maxLineSize     = 1 << 20
)

// AudioExtensions are the file types indexed by RebuildIndex.
var AudioExtensions = []string{".mp3", ".m4a", ".webm", ".opus"}

// Entry is the cached hash of one file. It is valid only while Size and
// ModTime still match the file on disk.
type Entry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  int64     `json:"mtime"`
	Hash     string    `json:"hash"`
	HashedAt time.Time `json:"hashed_at"`
}

// line is the union of every record kind that can appear in the file.
type line struct {
	Schema   string     `json:"schema,omitempty"`
	Version  int        `json:"version,omitempty"`
	Path     string     `json:"path,omitempty"`
	Size     int64      `json:"size,omitempty"`
	ModTime  int64      `json:"mtime,omitempty"`
	Hash     string     `json:"hash,omitempty"`
	HashedAt *time.Time `json:"hashed_at,omitempty"`
	Deleted  bool       `json:"deleted,omitempty"`
}

// Options tune Open.
type Options struct {
	FileName     string // defaults to DefaultFileName
	ImportLegacy bool   // seed from .audio_hashes.txt when no cache file exists
}

// Stats summarises a RebuildIndex pass.
type Stats struct {
	Files   int
	Hashed  int
	Reused  int
	Removed int
}

// Cache maps paths under a root to content hashes.
// Reads run concurrently; writes are serialized and journaled.
type Cache struct {
	mu      sync.RWMutex
	root    string
	path    string
	entries map[string]*Entry
	byHash  map[string]map[string]struct{}
	journal *os.File
	skipped int
	now     func() time.Time
}

// Open loads the cache file under root. A missing or unreadable file yields an
// empty cache; the next RebuildIndex fills it in.
func Open(root string, opts Options) (*Cache, error) {
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	c := &Cache{
		root:    absRoot,
		path:    filepath.Join(absRoot, opts.FileName),
		entries: make(map[string]*Entry),
		byHash:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}

	compact, err := c.load()
	if err != nil {
		var corrupt *CacheCorruptionError
		if !errors.As(err, &corrupt) {
			return nil, err
		}
		log.Printf("WARN: hashcache_corrupt path=%s error=%v, rebuilding", c.path, err)
		c.entries = make(map[string]*Entry)
		c.byHash = make(map[string]map[string]struct{})
		compact = true
	}
	if compact {
		if _, statErr := os.Stat(c.path); errors.Is(statErr, fs.ErrNotExist) && opts.ImportLegacy {
			n, err := c.importLegacy()
			if err != nil {
				log.Printf("WARN: hashcache_legacy_import_failed root=%s error=%v", absRoot, err)
			} else if n > 0 {
				log.Printf("INFO: hashcache_legacy_imported root=%s entries=%d", absRoot, n)
			}
		}
		if err := c.Flush(); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := c.openJournal(); err != nil {
		return nil, err
	}
	return c, nil
}

// Root returns the absolute destination root.
func (c *Cache) Root() string { return c.root }

// Path returns the cache file location.
func (c *Cache) Path() string { return c.path }

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Skipped returns how many lines failed to decode during load.
func (c *Cache) Skipped() int { return c.skipped }

// load reads the file. It reports whether the file should be rewritten
// (absent, torn or carrying undecodable lines).
func (c *Cache) load() (bool, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, &CacheCorruptionError{Path: c.path, Message: "open", Original: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	first := true
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var l line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			if first {
				return false, &CacheCorruptionError{Path: c.path, Message: "unreadable header", Original: err}
			}
			c.skipped++
			continue
		}
		if first {
			first = false
			if l.Schema != schemaName {
				return false, &CacheCorruptionError{Path: c.path, Message: fmt.Sprintf("unexpected schema %q", l.Schema)}
			}
			if l.Version > schemaVersion {
				return false, &CacheCorruptionError{Path: c.path, Message: fmt.Sprintf("unsupported version %d", l.Version)}
			}
			continue
		}
		if l.Path == "" {
			c.skipped++
			continue
		}
		if l.Deleted {
			c.remove(l.Path)
			continue
		}
		if l.Hash == "" {
			c.skipped++
			continue
		}
		e := &Entry{Path: l.Path, Size: l.Size, ModTime: l.ModTime, Hash: l.Hash}
		if l.HashedAt != nil {
			e.HashedAt = *l.HashedAt
		}
		c.put(e)
	}
	if err := scanner.Err(); err != nil {
		return false, &CacheCorruptionError{Path: c.path, Message: "read", Original: err}
	}
	if first {
		return true, nil
	}

	torn, err := endsWithoutNewline(c.path)
	if err != nil {
		return false, &CacheCorruptionError{Path: c.path, Message: "read", Original: err}
	}
	return torn || c.skipped > 0, nil
}

func endsWithoutNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return false, err
	}
	var b [1]byte
	if _, err := f.ReadAt(b[:], info.Size()-1); err != nil {
		return false, err
	}
	return b[0] != '\n', nil
}

func (c *Cache) openJournal() error {
	f, err := os.OpenFile(c.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open hash cache journal: %w", err)
	}
	c.journal = f
	return nil
}

// put and remove keep entries and byHash in step. Callers hold the write lock.
func (c *Cache) put(e *Entry) {
	c.remove(e.Path)
	c.entries[e.Path] = e
	paths := c.byHash[e.Hash]
	if paths == nil {
		paths = make(map[string]struct{})
		c.byHash[e.Hash] = paths
	}
	paths[e.Path] = struct{}{}
}

func (c *Cache) remove(rel string) {
	old, ok := c.entries[rel]
	if !ok {
		return
	}
	delete(c.entries, rel)
	if paths := c.byHash[old.Hash]; paths != nil {
		delete(paths, rel)
		if len(paths) == 0 {
			delete(c.byHash, old.Hash)
		}
	}
}

// append writes one journal line and syncs it. Callers hold the write lock.
func (c *Cache) append(l line) error {
	if c.journal == nil {
		return fmt.Errorf("hash cache is closed")
	}
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := c.journal.Write(data); err != nil {
		return fmt.Errorf("append hash cache entry: %w", err)
	}
	return c.journal.Sync()
}

// rel converts a path to the slash separated key relative to root.
func (c *Cache) rel(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	r, err := filepath.Rel(c.root, path)
	if err != nil {
		return "", err
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside %s", path, c.root)
	}
	return filepath.ToSlash(r), nil
}

// Abs returns the absolute path of a cache key.
func (c *Cache) Abs(rel string) string {
	return filepath.Join(c.root, filepath.FromSlash(rel))
}

// fresh reports whether e still describes info.
func fresh(e *Entry, info fs.FileInfo) bool {
	return e.Size == info.Size() && e.ModTime == info.ModTime().UnixNano()
}

// LookupByContent returns the path of a live file whose content hash is hash.
// Entries whose file vanished or changed are evicted and never answer.
func (c *Cache) LookupByContent(hash string) (string, bool) {
	c.mu.RLock()
	var candidates []*Entry
	for rel := range c.byHash[hash] {
		candidates = append(candidates, c.entries[rel])
	}
	c.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })

	var stale []string
	found := ""
	for _, e := range candidates {
		info, err := os.Stat(c.Abs(e.Path))
		if err != nil || !fresh(e, info) {
			stale = append(stale, e.Path)
			continue
		}
		found = e.Path
		break
	}

	if len(stale) > 0 {
		c.mu.Lock()
		for _, rel := range stale {
			if e, ok := c.entries[rel]; ok && e.Hash == hash {
				c.remove(rel)
				if err := c.append(line{Path: rel, Deleted: true}); err != nil {
					log.Printf("WARN: hashcache_evict_failed path=%s error=%v", rel, err)
				}
			}
		}
		c.mu.Unlock()
	}

	if found == "" {
		return "", false
	}
	return c.Abs(found), true
}

// Get returns the entry for path if present.
func (c *Cache) Get(path string) (Entry, bool) {
	rel, err := c.rel(path)
	if err != nil {
		return Entry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[rel]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// EnsureFresh returns the content hash of path, reusing the stored hash when
// size and mtime still match and rehashing (and recording) otherwise.
func (c *Cache) EnsureFresh(path string) (string, error) {
	hash, _, err := c.ensureFresh(path)
	return hash, err
}

func (c *Cache) ensureFresh(path string) (string, bool, error) {
	rel, err := c.rel(path)
	if err != nil {
		return "", false, err
	}
	abs := c.Abs(rel)
	info, err := os.Stat(abs)
	if err != nil {
		return "", false, err
	}

	c.mu.RLock()
	e, ok := c.entries[rel]
	c.mu.RUnlock()
	if ok && fresh(e, info) {
		return e.Hash, false, nil
	}

	hash, _, err := HashFile(abs)
	if err != nil {
		return "", false, fmt.Errorf("hash %s: %w", rel, err)
	}
	if err := c.Record(abs, hash, info.Size(), info.ModTime()); err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// Record upserts the entry for path and journals it immediately.
func (c *Cache) Record(path, hash string, size int64, modTime time.Time) error {
	rel, err := c.rel(path)
	if err != nil {
		return err
	}
	e := &Entry{Path: rel, Size: size, ModTime: modTime.UnixNano(), Hash: hash, HashedAt: c.now().UTC()}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(e)
	return c.append(entryLine(e))
}

func entryLine(e *Entry) line {
	at := e.HashedAt
	return line{Path: e.Path, Size: e.Size, ModTime: e.ModTime, Hash: e.Hash, HashedAt: &at}
}

// RecordFile stats path and records it under hash.
func (c *Cache) RecordFile(path, hash string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return c.Record(path, hash, info.Size(), info.ModTime())
}

// Forget drops the entry for path and journals the deletion.
func (c *Cache) Forget(path string) error {
	rel, err := c.rel(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[rel]; !ok {
		return nil
	}
	c.remove(rel)
	return c.append(line{Path: rel, Deleted: true})
}

// Moved transfers the entry of a file renamed from oldPath to newPath.
func (c *Cache) Moved(oldPath, newPath string) error {
	old, ok := c.Get(oldPath)
	if err := c.Forget(oldPath); err != nil {
		return err
	}
	if ok {
		return c.RecordFile(newPath, old.Hash)
	}
	_, err := c.EnsureFresh(newPath)
	return err
}

// RebuildIndex walks the root for audio files, refreshes every entry and drops
// entries whose files are gone, then writes a snapshot.
func (c *Cache) RebuildIndex(ctx context.Context) (Stats, error) {
	var stats Stats
	seen := make(map[string]struct{})

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.root {
				return err
			}
			log.Printf("WARN: hashcache_walk_error path=%s error=%v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != c.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsAudio(path) {
			return nil
		}

		stats.Files++
		_, rehashed, err := c.ensureFresh(path)
		if err != nil {
			log.Printf("WARN: hashcache_hash_failed path=%s error=%v", path, err)
			return nil
		}
		if rehashed {
			stats.Hashed++
		} else {
			stats.Reused++
		}
		rel, _ := c.rel(path)
		seen[rel] = struct{}{}
		return nil
	})
	if err != nil {
		return stats, err
	}

	c.mu.Lock()
	for rel := range c.entries {
		if _, ok := seen[rel]; !ok {
			c.remove(rel)
			stats.Removed++
		}
	}
	c.mu.Unlock()

	return stats, c.Flush()
}

// IsAudio reports whether path has one of AudioExtensions.
func IsAudio(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range AudioExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Prune drops entries whose files no longer exist. With dryRun the cache is
// left untouched and only the would-be removals are returned.
func (c *Cache) Prune(dryRun bool) ([]string, error) {
	c.mu.RLock()
	var missing []string
	for rel := range c.entries {
		if _, err := os.Stat(c.Abs(rel)); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, rel)
		}
	}
	c.mu.RUnlock()
	sort.Strings(missing)

	if dryRun || len(missing) == 0 {
		return missing, nil
	}
	c.mu.Lock()
	for _, rel := range missing {
		c.remove(rel)
	}
	c.mu.Unlock()
	return missing, c.Flush()
}

// Reset forgets every entry so the next RebuildIndex rehashes the tree.
func (c *Cache) Reset() error {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.byHash = make(map[string]map[string]struct{})
	c.mu.Unlock()
	return c.Flush()
}

// Flush replaces the cache file with a sorted snapshot through a temp file
// and rename, then resumes journaling onto the new file.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.journal != nil {
		c.journal.Close()
		c.journal = nil
	}

	tmp := c.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create hash cache snapshot: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	writeErr := enc.Encode(line{Schema: schemaName, Version: schemaVersion})
	paths := make([]string, 0, len(c.entries))
	for rel := range c.entries {
		paths = append(paths, rel)
	}
	sort.Strings(paths)
	for _, rel := range paths {
		if writeErr != nil {
			break
		}
		writeErr = enc.Encode(entryLine(c.entries[rel]))
	}
	if writeErr == nil {
		writeErr = w.Flush()
	}
	if writeErr == nil {
		writeErr = f.Sync()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("write hash cache snapshot: %w", writeErr)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace hash cache: %w", err)
	}
	return c.openJournal()
}

// Close flushes and releases the journal.
func (c *Cache) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.journal == nil {
		return nil
	}
	err := c.journal.Close()
	c.journal = nil
	return err
}
