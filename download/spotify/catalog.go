package spotify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"github.com/sv4u/spotigo"

	"github.com/AJMSD/raga/download/catalog"
)

// Catalog adapts SpotifyClient to the catalog model used by the resolver.
type Catalog struct {
	client *SpotifyClient
}

// NewCatalog wraps client.
func NewCatalog(client *SpotifyClient) *Catalog {
	return &Catalog{client: client}
}

// Market returns the market searches are scoped to.
func (c *Catalog) Market() string { return c.client.Market() }

// Wire shapes of the API objects. spotigo keeps the API's JSON tags, so any
// spotigo value (or the loosely typed playlist item payload) can be projected
// onto these.
type wireImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type wireArtist struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Images []wireImage `json:"images"`
}

type wireAlbum struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	AlbumType   string       `json:"album_type"`
	ReleaseDate string       `json:"release_date"`
	Artists     []wireArtist `json:"artists"`
	Images      []wireImage  `json:"images"`
	Markets     []string     `json:"available_markets"`
}

type wireTrack struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	IsLocal     bool         `json:"is_local"`
	Artists     []wireArtist `json:"artists"`
	Album       *wireAlbum   `json:"album"`
	TrackNumber int          `json:"track_number"`
	DiscNumber  int          `json:"disc_number"`
	DurationMs  int          `json:"duration_ms"`
	Markets     []string     `json:"available_markets"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type wirePlaylist struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Images []wireImage `json:"images"`
	Owner  struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"owner"`
}

type wireSearch struct {
	Albums *struct {
		Items []*wireAlbum `json:"items"`
	} `json:"albums"`
	Playlists *struct {
		Items []*wirePlaylist `json:"items"`
	} `json:"playlists"`
	Artists *struct {
		Items []*wireArtist `json:"items"`
	} `json:"artists"`
}

// project re-decodes v through its JSON form into out.
func project(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// available reports whether an object listing markets is playable in market.
// Objects without a market list (relinked or market-less responses) pass.
func available(markets []string, market string) bool {
	if market == "" || len(markets) == 0 {
		return true
	}
	return lo.Contains(markets, market)
}

func images(in []wireImage) []catalog.Image {
	out := make([]catalog.Image, 0, len(in))
	for _, img := range in {
		if img.URL != "" {
			out = append(out, catalog.Image{URL: img.URL, Width: img.Width, Height: img.Height})
		}
	}
	return out
}

func artists(in []wireArtist) []catalog.ArtistRef {
	out := make([]catalog.ArtistRef, 0, len(in))
	for _, a := range in {
		out = append(out, catalog.ArtistRef{ID: a.ID, Name: a.Name})
	}
	return out
}

func trackURL(id string) string {
	return "https://open.spotify.com/track/" + id
}

// fromWireTrack maps a projected track; album overrides the embedded album when set.
func fromWireTrack(w wireTrack, album *catalog.AlbumRef) *catalog.Track {
	t := &catalog.Track{
		TrackID:     w.ID,
		Name:        w.Name,
		Artists:     artists(w.Artists),
		TrackNumber: w.TrackNumber,
		DiscNumber:  w.DiscNumber,
		DurationMs:  w.DurationMs,
		ISRC:        w.ExternalIDs.ISRC,
		URL:         w.ExternalURLs.Spotify,
	}
	if t.URL == "" {
		t.URL = trackURL(w.ID)
	}
	switch {
	case album != nil:
		t.Album = *album
	case w.Album != nil:
		t.Album = catalog.AlbumRef{ID: w.Album.ID, Name: w.Album.Name, Images: images(w.Album.Images)}
	}
	return t
}

// toTrack maps a full track object.
func toTrack(st *spotigo.Track) *catalog.Track {
	t := &catalog.Track{
		TrackID:     st.ID,
		Name:        st.Name,
		TrackNumber: st.TrackNumber,
		DiscNumber:  st.DiscNumber,
		DurationMs:  st.DurationMs,
		URL:         trackURL(st.ID),
	}
	for _, a := range st.Artists {
		t.Artists = append(t.Artists, catalog.ArtistRef{ID: a.ID, Name: a.Name})
	}
	if st.ExternalURLs != nil && st.ExternalURLs.Spotify != "" {
		t.URL = st.ExternalURLs.Spotify
	}
	if st.ExternalIDs != nil && st.ExternalIDs.ISRC != nil {
		t.ISRC = *st.ExternalIDs.ISRC
	}
	if st.Album != nil {
		var w wireAlbum
		if err := project(st.Album, &w); err == nil {
			t.Album = catalog.AlbumRef{ID: w.ID, Name: w.Name, Images: images(w.Images)}
		} else {
			t.Album = catalog.AlbumRef{ID: st.Album.ID, Name: st.Album.Name}
		}
	}
	return t
}

// toSimplifiedTrack maps an album track listing entry.
func toSimplifiedTrack(st spotigo.SimplifiedTrack, album catalog.AlbumRef) *catalog.Track {
	var w wireTrack
	if err := project(st, &w); err != nil {
		w = wireTrack{ID: st.ID, Name: st.Name, TrackNumber: st.TrackNumber, DiscNumber: st.DiscNumber}
		for _, a := range st.Artists {
			w.Artists = append(w.Artists, wireArtist{ID: a.ID, Name: a.Name})
		}
	}
	return fromWireTrack(w, &album)
}

// playlistItemTrack maps a playlist item. Items that are not tracks, local
// files or have no ID cannot be resolved and report false.
func playlistItemTrack(item spotigo.PlaylistTrack) (*catalog.Track, bool) {
	if item.Track == nil {
		return nil, false
	}
	var w wireTrack
	if err := project(item.Track, &w); err != nil {
		return nil, false
	}
	if w.ID == "" || w.IsLocal || (w.Type != "" && w.Type != "track") {
		return nil, false
	}
	return fromWireTrack(w, nil), true
}

func albumEntity(w wireAlbum) *catalog.Album {
	return &catalog.Album{
		AlbumID:     w.ID,
		Name:        w.Name,
		Artists:     artists(w.Artists),
		AlbumType:   w.AlbumType,
		ReleaseDate: w.ReleaseDate,
		Artwork:     images(w.Images),
	}
}

func playlistEntity(w wirePlaylist) *catalog.Playlist {
	return &catalog.Playlist{
		PlaylistID: w.ID,
		Name:       w.Name,
		Owner:      catalog.Owner{ID: w.Owner.ID, DisplayName: w.Owner.DisplayName},
		Artwork:    images(w.Images),
	}
}

// Track fetches one track.
func (c *Catalog) Track(ctx context.Context, id string) (*catalog.Track, error) {
	st, err := c.client.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}
	return toTrack(st), nil
}

// Album fetches an album with its complete track list.
func (c *Catalog) Album(ctx context.Context, id string) (*catalog.Album, error) {
	sa, err := c.client.GetAlbum(ctx, id)
	if err != nil {
		return nil, err
	}
	var w wireAlbum
	if err := project(sa, &w); err != nil {
		return nil, fmt.Errorf("decode album %s: %w", id, err)
	}
	album := albumEntity(w)

	listing, err := c.client.AlbumTracks(ctx, sa)
	if err != nil {
		return nil, err
	}
	ref := catalog.AlbumRef{ID: album.AlbumID, Name: album.Name, Images: album.Artwork}
	for _, st := range listing {
		if st.ID == "" {
			continue
		}
		album.TrackList = append(album.TrackList, toSimplifiedTrack(st, ref))
	}
	return album, nil
}

// Playlist fetches a playlist with every resolvable track in playlist order.
func (c *Catalog) Playlist(ctx context.Context, id string) (*catalog.Playlist, error) {
	sp, err := c.client.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	var w wirePlaylist
	if err := project(sp, &w); err != nil {
		return nil, fmt.Errorf("decode playlist %s: %w", id, err)
	}
	playlist := playlistEntity(w)
	if playlist.PlaylistID == "" {
		playlist.PlaylistID = id
	}

	items, err := c.client.PlaylistTracks(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if t, ok := playlistItemTrack(item); ok {
			playlist.TrackList = append(playlist.TrackList, t)
		}
	}
	return playlist, nil
}

// Artist fetches artist metadata without expanding the catalog.
func (c *Catalog) Artist(ctx context.Context, id string) (*catalog.Artist, error) {
	sa, err := c.client.GetArtist(ctx, id)
	if err != nil {
		return nil, err
	}
	var w wireArtist
	if err := project(sa, &w); err != nil {
		w = wireArtist{ID: sa.ID, Name: sa.Name}
	}
	return &catalog.Artist{ArtistID: w.ID, Name: w.Name, Artwork: images(w.Images)}, nil
}

// ArtistAlbums lists the artist's albums and singles as provider ranked refs.
func (c *Catalog) ArtistAlbums(ctx context.Context, id string) ([]catalog.AlbumRef, error) {
	albums, err := c.client.GetArtistAlbums(ctx, id)
	if err != nil {
		return nil, err
	}
	market := c.Market()
	refs := make([]catalog.AlbumRef, 0, len(albums))
	for _, a := range albums {
		if a.ID == "" {
			continue
		}
		var w wireAlbum
		if err := project(a, &w); err == nil && !available(w.Markets, market) {
			continue
		}
		refs = append(refs, catalog.AlbumRef{ID: a.ID, Name: a.Name})
	}
	return refs, nil
}

// Search returns up to limit candidates of searchType in provider ranking.
// Album and playlist candidates carry no track list.
func (c *Catalog) Search(ctx context.Context, searchType, query string, limit int) ([]catalog.Entity, error) {
	resp, err := c.client.Search(ctx, query, searchType, limit)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	market := c.Market()
	var out []catalog.Entity
	if searchType == "track" {
		if resp.Tracks == nil {
			return nil, nil
		}
		for i := range resp.Tracks.Items {
			st := &resp.Tracks.Items[i]
			if st.ID == "" {
				continue
			}
			var w wireTrack
			if err := project(st, &w); err == nil && !available(w.Markets, market) {
				continue
			}
			out = append(out, toTrack(st))
		}
		return out, nil
	}

	var w wireSearch
	if err := project(resp, &w); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	switch searchType {
	case "album":
		if w.Albums != nil {
			for _, a := range w.Albums.Items {
				if a != nil && a.ID != "" && available(a.Markets, market) {
					out = append(out, albumEntity(*a))
				}
			}
		}
	case "playlist":
		if w.Playlists != nil {
			for _, p := range w.Playlists.Items {
				if p != nil && p.ID != "" {
					out = append(out, playlistEntity(*p))
				}
			}
		}
	case "artist":
		if w.Artists != nil {
			for _, a := range w.Artists.Items {
				if a != nil && a.ID != "" {
					out = append(out, &catalog.Artist{ArtistID: a.ID, Name: a.Name, Artwork: images(a.Images)})
				}
			}
		}
	default:
		return nil, fmt.Errorf("unsupported search type %q", searchType)
	}
	return out, nil
}
