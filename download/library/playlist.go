package library

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/AJMSD/raga/download/catalog"
)

// PlaylistEntry is one line of a playlist file. Path is the file the track
// ended up at: a fresh placement or the existing duplicate.
type PlaylistEntry struct {
	Track *catalog.Track
	Path  string
}

// RenderPlaylist renders an extended M3U with paths relative to dir.
func RenderPlaylist(dir string, entries []PlaylistEntry) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, e := range entries {
		rel, err := filepath.Rel(dir, e.Path)
		if err != nil {
			rel = e.Path
		}
		title := e.Track.Name
		if artists := e.Track.ArtistNames(); artists != "" {
			title = artists + " - " + title
		}
		fmt.Fprintf(&b, "#EXTINF:-1,%s\n%s\n", title, filepath.ToSlash(rel))
	}
	return b.String()
}

// WritePlaylist writes playlist.m3u into the target folder, replacing any
// previous one.
func (o *Organizer) WritePlaylist(target *Target, entries []PlaylistEntry) (string, error) {
	path := filepath.Join(target.Dir, PlaylistFileName)
	if err := writeAtomic(path, []byte(RenderPlaylist(target.Dir, entries))); err != nil {
		return "", &PlacementError{Path: path, Message: "cannot write playlist", Original: err}
	}
	log.Printf("INFO: playlist_written entity_id=%s entries=%d path=%q", target.Entity.ID(), len(entries), path)
	return path, nil
}
