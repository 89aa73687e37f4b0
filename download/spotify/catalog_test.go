package spotify

import (
	"testing"

	"github.com/sv4u/spotigo"

	"github.com/AJMSD/raga/download/catalog"
)

func TestToTrack(t *testing.T) {
	st := &spotigo.Track{
		ID:   "track1",
		Name: "Halo",
		Artists: []spotigo.Artist{
			{ID: "artist1", Name: "Beyoncé"},
		},
		ExternalURLs: &spotigo.ExternalURLs{Spotify: "https://open.spotify.com/track/track1"},
		TrackNumber:  3,
		DurationMs:   261000,
	}

	got := toTrack(st)
	if got.TrackID != "track1" || got.Name != "Halo" || got.TrackNumber != 3 {
		t.Errorf("toTrack() = %+v", got)
	}
	if got.ArtistNames() != "Beyoncé" {
		t.Errorf("toTrack() artists = %q, want Beyoncé", got.ArtistNames())
	}
	if got.URL != "https://open.spotify.com/track/track1" {
		t.Errorf("toTrack() url = %q", got.URL)
	}
}

func TestToSimplifiedTrack_UsesAlbumContext(t *testing.T) {
	st := spotigo.SimplifiedTrack{
		ID:          "t1",
		Name:        "Song",
		TrackNumber: 7,
		Artists:     []spotigo.SimplifiedArtist{{ID: "a1", Name: "Artist"}},
	}
	album := catalog.AlbumRef{ID: "album1", Name: "Record"}

	got := toSimplifiedTrack(st, album)
	if got.Album.ID != "album1" || got.TrackNumber != 7 {
		t.Errorf("toSimplifiedTrack() = %+v", got)
	}
	if got.URL != "https://open.spotify.com/track/t1" {
		t.Errorf("toSimplifiedTrack() url = %q", got.URL)
	}
}

func TestPlaylistItemTrack(t *testing.T) {
	tests := []struct {
		name   string
		item   spotigo.PlaylistTrack
		wantOK bool
	}{
		{"simplified track", spotigo.PlaylistTrack{Track: spotigo.SimplifiedTrack{ID: "t1", Name: "Song"}}, true},
		{"decoded map", spotigo.PlaylistTrack{Track: map[string]interface{}{"id": "t2", "name": "Song", "type": "track"}}, true},
		{"nil track", spotigo.PlaylistTrack{}, false},
		{"local file", spotigo.PlaylistTrack{Track: map[string]interface{}{"id": "t3", "is_local": true}}, false},
		{"episode", spotigo.PlaylistTrack{Track: map[string]interface{}{"id": "e1", "type": "episode"}}, false},
		{"no id", spotigo.PlaylistTrack{Track: map[string]interface{}{"name": "orphan"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := playlistItemTrack(tt.item)
			if ok != tt.wantOK {
				t.Errorf("playlistItemTrack() ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestProjectPlaylistOwner(t *testing.T) {
	payload := map[string]interface{}{
		"id":   "p1",
		"name": "Road Trip",
		"owner": map[string]interface{}{
			"id":           "user1",
			"display_name": "Sam",
		},
		"images": []interface{}{
			map[string]interface{}{"url": "https://i/640", "width": 640, "height": 640},
			map[string]interface{}{"url": "https://i/300", "width": nil},
		},
	}
	var w wirePlaylist
	if err := project(payload, &w); err != nil {
		t.Fatalf("project() error = %v", err)
	}
	p := playlistEntity(w)
	if p.Owner.ID != "user1" || p.Owner.DisplayName != "Sam" {
		t.Errorf("owner = %+v", p.Owner)
	}
	if len(p.Artwork) != 2 || p.Artwork[0].Width != 640 {
		t.Errorf("artwork = %+v", p.Artwork)
	}
}

func TestAvailable(t *testing.T) {
	tests := []struct {
		name    string
		markets []string
		market  string
		want    bool
	}{
		{"no market configured", []string{"GB"}, "", true},
		{"no market list", nil, "US", true},
		{"listed", []string{"GB", "US"}, "US", true},
		{"not listed", []string{"GB", "DE"}, "US", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := available(tt.markets, tt.market); got != tt.want {
				t.Errorf("available(%v, %q) = %v, want %v", tt.markets, tt.market, got, tt.want)
			}
		})
	}
}
