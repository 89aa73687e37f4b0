package hashcache

import (
	"bufio"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LegacyFileName is the tab separated cache written by earlier versions of the tool.
const LegacyFileName = ".audio_hashes.txt"

// importLegacy seeds the cache from LegacyFileName. Each line is
// hash<TAB>relpath<TAB>size<TAB>mtime with mtime in float seconds.
// Only entries that still match their file are taken, with the exact mtime
// from disk. MP3 entries are skipped: the old hashes cover the tags too.
func (c *Cache) importLegacy() (int, error) {
	f, err := os.Open(filepath.Join(c.root, LegacyFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		parts := strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t")
		if len(parts) != 4 {
			continue
		}
		hash, rel := parts[0], filepath.ToSlash(parts[1])
		size, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		mtime, err := strconv.ParseFloat(parts[3], 64)
		if err != nil {
			continue
		}
		if strings.EqualFold(filepath.Ext(rel), ".mp3") || !IsAudio(rel) {
			continue
		}

		info, err := os.Stat(c.Abs(rel))
		if err != nil || info.Size() != size {
			continue
		}
		diff := math.Abs(float64(info.ModTime().UnixNano())/1e9 - mtime)
		if diff > 1e-3 {
			continue
		}
		c.put(&Entry{Path: rel, Size: size, ModTime: info.ModTime().UnixNano(), Hash: hash, HashedAt: c.now().UTC()})
		n++
	}
	return n, scanner.Err()
}
