package spotify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sv4u/spotigo"
)

// Config holds configuration for the Spotify client wrapper.
type Config struct {
	ClientID     string
	ClientSecret string

	// Market scopes searches and artist catalogs (ISO 3166-1 alpha-2).
	Market string

	CacheMaxSize int
	CacheTTL     time.Duration

	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// SpotifyClient wraps spotigo.Client with:
// - proactive sliding window rate limiting
// - a pause on every call while a server side 429 is in effect
// - response caching
// - full pagination of album, playlist and artist catalog listings
type SpotifyClient struct {
	client  *spotigo.Client
	cache   *TTLCache
	limiter *RateLimiter
	tracker *RateLimitTracker
	market  string
}

// NewSpotifyClient authenticates with client credentials and builds the wrapper.
func NewSpotifyClient(cfg *Config) (*SpotifyClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("spotify client id and secret are required")
	}
	auth, err := spotigo.NewClientCredentials(cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth: %w", err)
	}
	client, err := spotigo.NewClient(auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create spotigo client: %w", err)
	}

	return &SpotifyClient{
		client:  client,
		cache:   NewTTLCache(cfg.CacheMaxSize, cfg.CacheTTL),
		limiter: NewRateLimiter(cfg.RateLimitEnabled, cfg.RateLimitRequests, cfg.RateLimitWindow),
		tracker: NewRateLimitTracker(),
		market:  strings.ToUpper(cfg.Market),
	}, nil
}

// Market returns the configured market.
func (c *SpotifyClient) Market() string { return c.market }

// RateLimitInfo returns the active server side rate limit, or nil.
func (c *SpotifyClient) RateLimitInfo() *RateLimitInfo { return c.tracker.Info() }

// CacheStats returns response cache statistics.
func (c *SpotifyClient) CacheStats() CacheStats { return c.cache.Stats() }

// before runs ahead of every API call.
func (c *SpotifyClient) before(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.tracker.Wait(ctx); err != nil {
		return err
	}
	return c.limiter.Wait(ctx)
}

// handleError classifies a spotigo error and updates rate limit state.
func (c *SpotifyClient) handleError(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := statusCode(err)
	msg := strings.ToLower(err.Error())
	switch {
	case status == http.StatusTooManyRequests || strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		retryAfter := retryAfter(err)
		c.tracker.Update(retryAfter)
		log.Printf("WARN: spotify_rate_limited kind=%s id=%s retry_after=%d", kind, id, retryAfter)
		return &RateLimitError{RetryAfter: retryAfter, Original: err}
	case status == http.StatusNotFound || (status == 0 && strings.Contains(msg, "404")),
		status == http.StatusBadRequest && strings.Contains(msg, "invalid"):
		return &NotFoundError{Kind: kind, ID: id, Original: err}
	}
	return &SpotifyError{Message: fmt.Sprintf("%s %s", kind, id), StatusCode: status, Original: err}
}

func statusCode(err error) int {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	return 0
}

// retryAfter reads the server's Retry-After if spotigo exposes it, defaulting to 1s.
func retryAfter(err error) int {
	var ra interface{ RetryAfter() int }
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		return ra.RetryAfter()
	}
	return 1
}

// cachedCall serves key from the cache or runs call behind the limiters.
func cachedCall[T any](ctx context.Context, c *SpotifyClient, kind, id string, call func() (T, error)) (T, error) {
	key := kind + ":" + id
	if v, ok := cachedGet[T](c.cache, key); ok {
		return v, nil
	}
	var zero T
	if err := c.before(ctx); err != nil {
		return zero, err
	}
	v, err := call()
	if err != nil {
		return zero, c.handleError(kind, id, err)
	}
	c.cache.Set(key, v)
	c.tracker.Clear()
	return v, nil
}

// GetTrack fetches a track by ID.
func (c *SpotifyClient) GetTrack(ctx context.Context, id string) (*spotigo.Track, error) {
	return cachedCall(ctx, c, "track", id, func() (*spotigo.Track, error) {
		return c.client.Track(ctx, id)
	})
}

// GetAlbum fetches an album with the first page of its tracks.
func (c *SpotifyClient) GetAlbum(ctx context.Context, id string) (*spotigo.Album, error) {
	return cachedCall(ctx, c, "album", id, func() (*spotigo.Album, error) {
		return c.client.Album(ctx, id)
	})
}

// GetPlaylist fetches playlist metadata.
func (c *SpotifyClient) GetPlaylist(ctx context.Context, id string) (*spotigo.Playlist, error) {
	return cachedCall(ctx, c, "playlist", id, func() (*spotigo.Playlist, error) {
		return c.client.Playlist(ctx, id, nil)
	})
}

// GetArtist fetches artist metadata.
func (c *SpotifyClient) GetArtist(ctx context.Context, id string) (*spotigo.Artist, error) {
	return cachedCall(ctx, c, "artist", id, func() (*spotigo.Artist, error) {
		return c.client.Artist(ctx, id)
	})
}

// GetArtistAlbums lists an artist's albums and singles, all pages.
// Compilations and "appears on" releases are excluded.
func (c *SpotifyClient) GetArtistAlbums(ctx context.Context, id string) ([]spotigo.SimplifiedAlbum, error) {
	return cachedCall(ctx, c, "artist_albums", id, func() ([]spotigo.SimplifiedAlbum, error) {
		page, err := c.client.ArtistAlbums(ctx, id, &spotigo.ArtistAlbumsOptions{
			IncludeGroups: []string{"album", "single"},
			Limit:         50,
		})
		if err != nil {
			return nil, err
		}
		albums := append([]spotigo.SimplifiedAlbum(nil), page.Items...)
		for page.GetNext() != nil {
			if page, err = nextPage[spotigo.SimplifiedAlbum](ctx, c, page); err != nil {
				return nil, fmt.Errorf("paginate artist albums: %w", err)
			}
			if page == nil {
				break
			}
			albums = append(albums, page.Items...)
		}
		return albums, nil
	})
}

// AlbumTracks returns every track of album, following pagination past the
// first page embedded in the album object.
func (c *SpotifyClient) AlbumTracks(ctx context.Context, album *spotigo.Album) ([]spotigo.SimplifiedTrack, error) {
	if album.Tracks == nil {
		return nil, nil
	}
	return cachedCall(ctx, c, "album_tracks", album.ID, func() ([]spotigo.SimplifiedTrack, error) {
		page := album.Tracks
		tracks := append([]spotigo.SimplifiedTrack(nil), page.Items...)
		for page.GetNext() != nil {
			var err error
			if page, err = nextPage[spotigo.SimplifiedTrack](ctx, c, page); err != nil {
				return nil, fmt.Errorf("paginate album tracks: %w", err)
			}
			if page == nil {
				break
			}
			tracks = append(tracks, page.Items...)
		}
		return tracks, nil
	})
}

// PlaylistTracks returns every item of a playlist in order.
func (c *SpotifyClient) PlaylistTracks(ctx context.Context, id string) ([]spotigo.PlaylistTrack, error) {
	return cachedCall(ctx, c, "playlist_tracks", id, func() ([]spotigo.PlaylistTrack, error) {
		page, err := c.client.PlaylistTracks(ctx, id, nil)
		if err != nil {
			return nil, err
		}
		items := append([]spotigo.PlaylistTrack(nil), page.Items...)
		for page.GetNext() != nil {
			if page, err = nextPage[spotigo.PlaylistTrack](ctx, c, page); err != nil {
				return nil, fmt.Errorf("paginate playlist tracks: %w", err)
			}
			if page == nil {
				break
			}
			items = append(items, page.Items...)
		}
		return items, nil
	})
}

// nextPage fetches the page after paging behind the limiters.
func nextPage[T any](ctx context.Context, c *SpotifyClient, paging interface{ GetNext() *string }) (*spotigo.Paging[T], error) {
	if err := c.before(ctx); err != nil {
		return nil, err
	}
	return spotigo.NextGeneric[T](c.client, ctx, paging)
}

// Search runs a catalog search of searchType ("track", "album", "playlist",
// "artist"). Market scoping is applied by Catalog on available_markets.
func (c *SpotifyClient) Search(ctx context.Context, query, searchType string, limit int) (*spotigo.SearchResponse, error) {
	key := fmt.Sprintf("%s:%s:%d:%s", searchType, c.market, limit, query)
	return cachedCall(ctx, c, "search", key, func() (*spotigo.SearchResponse, error) {
		return c.client.Search(ctx, query, searchType, &spotigo.SearchOptions{
			Limit:  limit,
			Market: c.market,
		})
	})
}
