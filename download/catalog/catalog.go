// Package catalog holds the resolved music entities the pipeline works on.
package catalog

import "strings"

// Image is one artwork rendition. Providers list them largest first.
type Image struct {
	URL    string
	Width  int
	Height int
}

// ArtistRef is an artist credit on a track or album.
type ArtistRef struct {
	ID   string
	Name string
}

// AlbumRef is the parent album context of a track.
type AlbumRef struct {
	ID     string
	Name   string
	Images []Image
}

// Owner is the user that owns a playlist.
type Owner struct {
	ID          string
	DisplayName string
}

// Entity is a resolved track, album, playlist or artist.
// Tracks() is ordered and that order is never changed downstream.
type Entity interface {
	ID() string
	Title() string
	Tracks() []*Track
	Images() []Image
	entity()
}

// Track is read only after resolution.
type Track struct {
	TrackID     string
	Name        string
	Artists     []ArtistRef
	Album       AlbumRef
	TrackNumber int
	DiscNumber  int
	DurationMs  int
	ISRC        string
	URL         string
}

func (t *Track) ID() string       { return t.TrackID }
func (t *Track) Title() string    { return t.Name }
func (t *Track) Tracks() []*Track { return []*Track{t} }
func (t *Track) Images() []Image  { return t.Album.Images }
func (*Track) entity()            {}

// ArtistNames joins credited artist names with ", ".
func (t *Track) ArtistNames() string {
	return JoinArtists(t.Artists)
}

// Album is an album or single with its full track list.
type Album struct {
	AlbumID     string
	Name        string
	Artists     []ArtistRef
	AlbumType   string
	ReleaseDate string
	Artwork     []Image
	TrackList   []*Track
}

func (a *Album) ID() string       { return a.AlbumID }
func (a *Album) Title() string    { return a.Name }
func (a *Album) Tracks() []*Track { return a.TrackList }
func (a *Album) Images() []Image  { return a.Artwork }
func (*Album) entity()            {}

// Playlist keeps tracks in playlist order.
type Playlist struct {
	PlaylistID string
	Name       string
	Owner      Owner
	Artwork    []Image
	TrackList  []*Track
}

func (p *Playlist) ID() string       { return p.PlaylistID }
func (p *Playlist) Title() string    { return p.Name }
func (p *Playlist) Tracks() []*Track { return p.TrackList }
func (p *Playlist) Images() []Image  { return p.Artwork }
func (*Playlist) entity()            {}

// Artist expands to its albums and singles; each album is processed on its own.
type Artist struct {
	ArtistID string
	Name     string
	Artwork  []Image
	Albums   []*Album
}

func (a *Artist) ID() string    { return a.ArtistID }
func (a *Artist) Title() string { return a.Name }
func (a *Artist) Images() []Image {
	return a.Artwork
}

// Tracks flattens the catalog album by album.
func (a *Artist) Tracks() []*Track {
	var out []*Track
	for _, album := range a.Albums {
		out = append(out, album.TrackList...)
	}
	return out
}
func (*Artist) entity() {}

// JoinArtists renders a credit list the way filenames and search queries use it.
func JoinArtists(artists []ArtistRef) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if n := strings.TrimSpace(a.Name); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, ", ")
}

// CoverImage picks the rendition used for cover.jpg: the second smallest when
// there are several (about 300px on Spotify), otherwise the only one.
func CoverImage(images []Image) (Image, bool) {
	switch len(images) {
	case 0:
		return Image{}, false
	case 1:
		return images[0], true
	}
	return images[len(images)-2], true
}
