package library

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Mover is told about every file grouping relocates. *hashcache.Cache
// implements it.
type Mover interface {
	Moved(oldPath, newPath string) error
}

// PlacedSong is a file placed in songs mode during this run.
type PlacedSong struct {
	Artist string
	Path   string
}

// GroupSongs moves the songs of every artist with at least the configured
// threshold of placements into <root>/<Artist>/ and returns old to new paths.
// A move failure is logged and leaves that file in place.
func (o *Organizer) GroupSongs(placed []PlacedSong, mover Mover) map[string]string {
	moves := make(map[string]string)
	if o.groupThreshold <= 0 {
		return moves
	}

	var order []string
	byArtist := make(map[string][]string)
	for _, p := range placed {
		if strings.TrimSpace(p.Artist) == "" || p.Path == "" {
			continue
		}
		if _, ok := byArtist[p.Artist]; !ok {
			order = append(order, p.Artist)
		}
		byArtist[p.Artist] = append(byArtist[p.Artist], p.Path)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, artist := range order {
		files := byArtist[artist]
		if len(files) < o.groupThreshold {
			continue
		}
		folder := filepath.Join(o.root, SanitizeFilename(artist))
		if err := os.MkdirAll(folder, 0755); err != nil {
			log.Printf("WARN: artist_folder_failed artist=%q error=%v", artist, err)
			continue
		}

		for _, src := range files {
			if _, err := os.Stat(src); err != nil {
				continue
			}
			if filepath.Dir(src) == folder {
				continue
			}
			name := filepath.Base(src)
			ext := filepath.Ext(name)
			dest := UniqueBase(filepath.Join(folder, strings.TrimSuffix(name, ext))) + ext
			if err := moveFile(src, dest); err != nil {
				log.Printf("WARN: song_group_move_failed path=%q error=%v", src, err)
				continue
			}
			if mover != nil {
				if err := mover.Moved(src, dest); err != nil {
					log.Printf("WARN: hash_cache_move_failed path=%q error=%v", dest, err)
				}
			}
			moves[src] = dest
		}
		o.copyPlaceholder(folder)
		log.Printf("INFO: artist_grouped artist=%q songs=%d folder=%q", artist, len(files), folder)
	}
	return moves
}

func (o *Organizer) copyPlaceholder(folder string) {
	if o.placeholder == "" {
		return
	}
	if _, err := os.Stat(o.placeholder); err != nil {
		log.Printf("WARN: placeholder_missing path=%q", o.placeholder)
		return
	}
	dest := filepath.Join(folder, PlaceholderFileName)
	if err := copyFile(o.placeholder, dest); err != nil && !errors.Is(err, os.ErrExist) {
		log.Printf("WARN: placeholder_copy_failed path=%q error=%v", dest, err)
	}
}
