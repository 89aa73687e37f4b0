// Package resolver turns parsed references into catalog entities through a
// metadata provider.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/samber/lo"

	"github.com/AJMSD/raga/download/catalog"
	"github.com/AJMSD/raga/download/filter"
	"github.com/AJMSD/raga/download/logging"
	"github.com/AJMSD/raga/download/reference"
	"github.com/AJMSD/raga/download/spotify"
)

// Provider is the metadata source. *spotify.Catalog implements it.
type Provider interface {
	Market() string
	Track(ctx context.Context, id string) (*catalog.Track, error)
	Album(ctx context.Context, id string) (*catalog.Album, error)
	Playlist(ctx context.Context, id string) (*catalog.Playlist, error)
	Artist(ctx context.Context, id string) (*catalog.Artist, error)
	ArtistAlbums(ctx context.Context, id string) ([]catalog.AlbumRef, error)
	Search(ctx context.Context, searchType, query string, limit int) ([]catalog.Entity, error)
}

// Options configures a Resolver.
type Options struct {
	Policy      MatchPolicy
	SearchLimit int
	MaxRetries  int
}

// Resolver resolves references one at a time. It is safe for concurrent use
// when the provider is.
type Resolver struct {
	provider   Provider
	policy     MatchPolicy
	limit      int
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a resolver. Zero options take the defaults: top result policy,
// 10 search candidates, 3 retries.
func New(provider Provider, opts Options) *Resolver {
	if opts.Policy == nil {
		opts.Policy = TopResult{}
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 10
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Resolver{
		provider:   provider,
		policy:     opts.Policy,
		limit:      opts.SearchLimit,
		maxRetries: opts.MaxRetries,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy returns the configured match policy.
func (r *Resolver) Policy() MatchPolicy { return r.policy }

// Resolve returns the entity ref points at. Errors are *NoMatchError,
// *ProviderTransientError, or the context error.
func (r *Resolver) Resolve(ctx context.Context, ref reference.Reference) (catalog.Entity, error) {
	var (
		entity catalog.Entity
		err    error
	)
	if ref.Form == reference.FormName {
		entity, err = r.resolveName(ctx, ref)
	} else {
		entity, err = r.resolveID(ctx, ref)
	}
	if err != nil {
		return nil, err
	}

	if artist, ok := entity.(*catalog.Artist); ok {
		if err := r.expandArtist(ctx, artist); err != nil {
			return nil, err
		}
	}
	logging.Debugf("resolved kind=%s ref=%q id=%s title=%q tracks=%d", ref.Kind, ref.Raw, entity.ID(), entity.Title(), len(entity.Tracks()))
	return entity, nil
}

func (r *Resolver) noMatch(ref reference.Reference, reason string) *NoMatchError {
	query := ref.Value
	if ref.Form != reference.FormName {
		query = ref.URI()
	}
	return &NoMatchError{Kind: ref.Kind, Query: query, Qualifier: ref.Qualifier, Market: r.provider.Market(), Reason: reason}
}

// resolveID fetches by identifier, then validates the qualifier.
func (r *Resolver) resolveID(ctx context.Context, ref reference.Reference) (catalog.Entity, error) {
	entity, err := r.fetch(ctx, ref.Kind, ref.ID())
	if err != nil {
		var nf *spotify.NotFoundError
		if errors.As(err, &nf) {
			return nil, r.noMatch(ref, "not found")
		}
		return nil, err
	}
	if !Qualifies(entity, ref.Qualifier) {
		return nil, r.noMatch(ref, fmt.Sprintf("%q does not match", entity.Title()))
	}
	return entity, nil
}

func (r *Resolver) fetch(ctx context.Context, kind reference.Kind, id string) (catalog.Entity, error) {
	op := fmt.Sprintf("%s %s", kind, id)
	switch kind {
	case reference.KindTrack:
		return withRetry(ctx, r, op, func() (catalog.Entity, error) { return r.provider.Track(ctx, id) })
	case reference.KindAlbum:
		return withRetry(ctx, r, op, func() (catalog.Entity, error) { return r.provider.Album(ctx, id) })
	case reference.KindPlaylist:
		return withRetry(ctx, r, op, func() (catalog.Entity, error) { return r.provider.Playlist(ctx, id) })
	case reference.KindArtist:
		return withRetry(ctx, r, op, func() (catalog.Entity, error) { return r.provider.Artist(ctx, id) })
	}
	return nil, fmt.Errorf("unknown reference kind %q", kind)
}

// searchQuery scopes the free text to the entity field the way the search
// API expects.
func searchQuery(ref reference.Reference) string {
	return string(ref.Kind) + ":" + ref.Value
}

// resolveName searches, filters and applies the match policy. Album and
// playlist search results carry no track list, so the chosen one is fetched
// in full.
func (r *Resolver) resolveName(ctx context.Context, ref reference.Reference) (catalog.Entity, error) {
	limit := r.limit
	if ref.Kind == reference.KindArtist {
		limit = 1
	}
	query := searchQuery(ref)
	candidates, err := withRetry(ctx, r, "search "+query, func() ([]catalog.Entity, error) {
		return r.provider.Search(ctx, string(ref.Kind), query, limit)
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, r.noMatch(ref, "no search results")
	}

	if ref.Kind == reference.KindTrack || ref.Kind == reference.KindAlbum {
		candidates = filter.Instrumental(candidates, catalog.Entity.Title)
	}

	chosen, ok := r.policy.Choose(ref.Value, candidates, func(e catalog.Entity) bool {
		return Qualifies(e, ref.Qualifier)
	})
	if !ok {
		return nil, r.noMatch(ref, fmt.Sprintf("%d candidates rejected by %s policy", len(candidates), r.policy.Name()))
	}
	log.Printf("INFO: reference_matched kind=%s query=%q id=%s title=%q policy=%s", ref.Kind, ref.Value, chosen.ID(), chosen.Title(), r.policy.Name())

	switch ref.Kind {
	case reference.KindAlbum, reference.KindPlaylist:
		full, err := r.fetch(ctx, ref.Kind, chosen.ID())
		if err != nil {
			var nf *spotify.NotFoundError
			if errors.As(err, &nf) {
				return nil, r.noMatch(ref, "search result no longer available")
			}
			return nil, err
		}
		return full, nil
	}
	return chosen, nil
}

// expandArtist fills the artist's albums and singles. Albums listed twice
// are fetched once. An album that cannot be fetched is skipped with a warning
// so one bad release does not sink the whole catalog.
func (r *Resolver) expandArtist(ctx context.Context, artist *catalog.Artist) error {
	refs, err := withRetry(ctx, r, "artist albums "+artist.ArtistID, func() ([]catalog.AlbumRef, error) {
		return r.provider.ArtistAlbums(ctx, artist.ArtistID)
	})
	if err != nil {
		return err
	}
	refs = lo.UniqBy(refs, func(a catalog.AlbumRef) string { return a.ID })

	artist.Albums = artist.Albums[:0]
	for _, ref := range refs {
		entity, err := r.fetch(ctx, reference.KindAlbum, ref.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("WARN: artist_album_skipped artist=%q album_id=%s album=%q error=%v", artist.Name, ref.ID, ref.Name, err)
			continue
		}
		artist.Albums = append(artist.Albums, entity.(*catalog.Album))
	}
	log.Printf("INFO: artist_expanded artist=%q albums=%d listed=%d", artist.Name, len(artist.Albums), len(refs))
	return nil
}

// withRetry runs call, retrying transient provider failures with exponential
// backoff. A rate limit waits for the server's Retry-After plus a margin.
func withRetry[T any](ctx context.Context, r *Resolver, op string, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		v, err := call()
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !spotify.IsTransient(err) {
			return zero, err
		}
		lastErr = err
		if attempt == r.maxRetries {
			break
		}

		wait := time.Duration(1<<uint(attempt)) * time.Second
		var rl *spotify.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			wait = time.Duration(rl.RetryAfter+10) * time.Second
		}
		log.Printf("INFO: provider_retry op=%q attempt=%d max_retries=%d wait_seconds=%d error=%v", op, attempt, r.maxRetries, int(wait.Seconds()), err)
		if err := r.sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, &ProviderTransientError{Operation: op, Attempts: r.maxRetries, Original: lastErr}
}
