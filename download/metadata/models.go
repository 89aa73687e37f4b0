package metadata

import (
	"github.com/AJMSD/raga/download/catalog"
)

// Song represents song metadata.
type Song struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	TrackNumber int
	TracksCount int
	DiscNumber  int
	Date        string
	SpotifyURL  string
	CoverURL    string
	ISRC        string
}

// SongFromTrack builds tag values for track placed as part of entity.
// Album context comes from the entity when it is an album.
func SongFromTrack(track *catalog.Track, entity catalog.Entity) *Song {
	song := &Song{
		Title:       track.Name,
		Artist:      track.ArtistNames(),
		Album:       track.Album.Name,
		TrackNumber: track.TrackNumber,
		DiscNumber:  track.DiscNumber,
		SpotifyURL:  track.URL,
		ISRC:        track.ISRC,
	}
	if img, ok := catalog.CoverImage(track.Album.Images); ok {
		song.CoverURL = img.URL
	}
	if album, ok := entity.(*catalog.Album); ok {
		song.Album = album.Name
		song.AlbumArtist = catalog.JoinArtists(album.Artists)
		song.TracksCount = len(album.TrackList)
		song.Date = album.ReleaseDate
		if img, ok := catalog.CoverImage(album.Artwork); ok {
			song.CoverURL = img.URL
		}
	}
	return song
}
