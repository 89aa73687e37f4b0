// Package library lays resolved entities out on disk under the destination
// root.
package library

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AJMSD/raga/download/catalog"
)

// Mode selects the destination layout.
type Mode string

const (
	ModeSongs     Mode = "songs"
	ModeAlbums    Mode = "albums"
	ModePlaylists Mode = "playlists"
)

// Names of the files the organizer writes next to the audio.
const (
	CoverFileName       = "cover.jpg"
	PlaylistFileName    = "playlist.m3u"
	PlaylistsDir        = "Playlists"
	AlbumMarkerFile     = ".raga-album"
	PlaylistMarkerFile  = ".raga-playlist"
	PlaceholderFileName = "placeholder.jpg"
)

// AudioExtensions are checked when making a base name unique.
var AudioExtensions = []string{".mp3", ".m4a", ".webm", ".opus"}

var invalidChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f\x7f]`)

// SanitizeFilename makes name safe as a single path element on common
// filesystems.
func SanitizeFilename(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	name = strings.TrimRight(name, ". ")
	if name == "" {
		return "_"
	}
	return name
}

// EntityDir is the folder for an entity relative to the root, before
// uniqueness is applied. Songs live at the root.
func EntityDir(mode Mode, entity catalog.Entity) string {
	switch mode {
	case ModeAlbums:
		return SanitizeFilename(titleOr(entity.Title(), "Unknown Album"))
	case ModePlaylists:
		return filepath.Join(PlaylistsDir, SanitizeFilename(titleOr(entity.Title(), "Unknown Playlist")))
	}
	return ""
}

// TrackBaseName is the file name of a track without extension. position is
// the 1-based index of the track within its entity.
func TrackBaseName(mode Mode, track *catalog.Track, position int) string {
	title := SanitizeFilename(titleOr(track.Name, "Unknown Track"))
	switch mode {
	case ModeAlbums:
		if track.TrackNumber > 0 {
			return fmt.Sprintf("%02d - %s", track.TrackNumber, title)
		}
		return title
	case ModePlaylists:
		if artists := track.ArtistNames(); artists != "" {
			return fmt.Sprintf("%03d - %s - %s", position, SanitizeFilename(artists), title)
		}
		return fmt.Sprintf("%03d - %s", position, title)
	}
	if artists := track.ArtistNames(); artists != "" {
		return SanitizeFilename(artists) + " - " + title
	}
	return title
}

func titleOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func markerFile(mode Mode) string {
	if mode == ModePlaylists {
		return PlaylistMarkerFile
	}
	return AlbumMarkerFile
}
