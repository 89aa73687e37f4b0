// Package orchestrator drives references through resolution, acquisition,
// deduplication and placement.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AJMSD/raga/download/audio"
	"github.com/AJMSD/raga/download/catalog"
	"github.com/AJMSD/raga/download/library"
	"github.com/AJMSD/raga/download/metadata"
	"github.com/AJMSD/raga/download/reference"
)

// Resolver turns a reference into an entity.
type Resolver interface {
	Resolve(ctx context.Context, ref reference.Reference) (catalog.Entity, error)
}

// Acquirer stages and hashes audio for a track.
type Acquirer interface {
	Acquire(ctx context.Context, track *catalog.Track) (*audio.Asset, error)
}

// Cache is the content index of the destination tree.
type Cache interface {
	LookupByContent(hash string) (string, bool)
	RecordFile(path, hash string) error
	Moved(oldPath, newPath string) error
}

// Tagger writes tags into a placed file.
type Tagger interface {
	Embed(ctx context.Context, path string, song *metadata.Song) error
}

// Options configures an Orchestrator.
type Options struct {
	// Threads bounds concurrent tracks within one entity.
	Threads int
	// Tagger is optional.
	Tagger Tagger
}

// Orchestrator runs references strictly in input order. Tracks of one entity
// may run concurrently; the dedup decision and placement are serialized.
type Orchestrator struct {
	resolver  Resolver
	acquirer  Acquirer
	cache     Cache
	organizer *library.Organizer
	tagger    Tagger
	threads   int

	placeMu   sync.Mutex
	emitMu    sync.Mutex
	observers []Observer
}

// New creates an orchestrator.
func New(resolver Resolver, acquirer Acquirer, cache Cache, organizer *library.Organizer, opts Options) *Orchestrator {
	if opts.Threads <= 0 {
		opts.Threads = 1
	}
	return &Orchestrator{
		resolver:  resolver,
		acquirer:  acquirer,
		cache:     cache,
		organizer: organizer,
		tagger:    opts.Tagger,
		threads:   opts.Threads,
	}
}

// AddObserver registers an observer. Not safe to call during Run.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

func (o *Orchestrator) emit(e Event) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	for _, obs := range o.observers {
		obs(e)
	}
}

// Run processes refs in order. malformed are entries that failed to parse;
// they are counted as skipped. The returned error is non-nil only when ctx
// ended the run early; the summary then covers what was done.
func (o *Orchestrator) Run(ctx context.Context, refs []reference.Reference, malformed []error) (*Summary, error) {
	summary := &Summary{}
	for _, err := range malformed {
		summary.Skipped++
		summary.Messages = append(summary.Messages, err.Error())
	}

	var songs []library.PlacedSong
	songTracks := make(map[string]*TrackResult)

	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return o.finish(summary, songs, songTracks), err
		}

		unit := o.runUnit(ctx, i, len(refs), ref)
		summary.Units = append(summary.Units, unit)

		if unit.Skipped {
			if ctx.Err() != nil {
				return o.finish(summary, songs, songTracks), ctx.Err()
			}
			summary.Skipped++
			summary.Messages = append(summary.Messages, fmt.Sprintf("skipped %s: %v", ref, unit.Err))
			continue
		}

		accepted, duplicate, failed := unit.Counts()
		summary.Acquired += accepted
		summary.Duplicate += duplicate
		summary.Failed += failed
		for _, t := range unit.Tracks {
			if t.State == StateFailed {
				summary.Messages = append(summary.Messages, fmt.Sprintf("failed %s %q: %v", ref.Kind, t.Track.Name, t.Err))
			}
			if _, ok := unit.Entity.(*catalog.Track); ok && t.State == StateAccepted {
				songs = append(songs, library.PlacedSong{Artist: t.Track.ArtistNames(), Path: t.Path})
				songTracks[t.Path] = t
			}
		}
	}
	return o.finish(summary, songs, songTracks), ctx.Err()
}

// finish groups songs placed this run into artist folders.
func (o *Orchestrator) finish(summary *Summary, songs []library.PlacedSong, tracks map[string]*TrackResult) *Summary {
	if len(songs) == 0 {
		return summary
	}
	for from, to := range o.organizer.GroupSongs(songs, o.cache) {
		if t, ok := tracks[from]; ok {
			t.Path = to
		}
	}
	return summary
}

func (o *Orchestrator) runUnit(ctx context.Context, index, total int, ref reference.Reference) *UnitResult {
	unit := &UnitResult{Ref: ref}
	o.emit(Event{Kind: EventUnitStart, Index: index, Total: total, Ref: ref})

	entity, err := o.resolver.Resolve(ctx, ref)
	if err != nil {
		unit.Skipped = true
		unit.Err = err
		if !errors.Is(err, context.Canceled) {
			log.Printf("WARN: reference_skipped ref=%q line=%d error=%v", ref.Raw, ref.Line, err)
		}
		o.emit(Event{Kind: EventUnitSkipped, Index: index, Total: total, Ref: ref, Err: err})
		return unit
	}
	unit.Entity = entity
	o.emit(Event{Kind: EventUnitResolved, Index: index, Total: len(entity.Tracks()), Ref: ref, Entity: entity})
	log.Printf("INFO: entity_start kind=%s id=%s title=%q tracks=%d", ref.Kind, entity.ID(), entity.Title(), len(entity.Tracks()))

	switch e := entity.(type) {
	case *catalog.Track:
		unit.Tracks = o.processEntity(ctx, index, ref, library.ModeSongs, e)
	case *catalog.Album:
		unit.Tracks = o.processEntity(ctx, index, ref, library.ModeAlbums, e)
	case *catalog.Playlist:
		unit.Tracks = o.processEntity(ctx, index, ref, library.ModePlaylists, e)
	case *catalog.Artist:
		for _, album := range e.Albums {
			if ctx.Err() != nil {
				break
			}
			unit.Tracks = append(unit.Tracks, o.processEntity(ctx, index, ref, library.ModeAlbums, album)...)
		}
	}

	accepted, duplicate, failed := unit.Counts()
	log.Printf("INFO: entity_complete kind=%s id=%s accepted=%d duplicate=%d failed=%d", ref.Kind, entity.ID(), accepted, duplicate, failed)
	o.emit(Event{Kind: EventUnitDone, Index: index, Ref: ref, Entity: entity})
	return unit
}

// processEntity runs every track of entity, then writes the entity artifacts.
// Artifacts are skipped when the run is interrupted before every track
// reached a terminal state.
func (o *Orchestrator) processEntity(ctx context.Context, index int, ref reference.Reference, mode library.Mode, entity catalog.Entity) []*TrackResult {
	tracks := entity.Tracks()
	results := make([]*TrackResult, len(tracks))
	for i, t := range tracks {
		results[i] = &TrackResult{Track: t, Position: i + 1, State: StatePending}
	}

	target, err := o.organizer.Prepare(mode, entity)
	if err != nil {
		log.Printf("ERROR: entity_prepare_failed id=%s error=%v", entity.ID(), err)
		for _, r := range results {
			o.transition(index, ref, r, StateFailed, err)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(o.threads)
	for _, r := range results {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.processTrack(ctx, index, ref, target, entity, r)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return results
	}
	o.writeArtifacts(ctx, target, results)
	return results
}

func (o *Orchestrator) transition(index int, ref reference.Reference, r *TrackResult, state State, err error) {
	r.State = state
	if err != nil {
		r.Err = err
	}
	o.emit(Event{Kind: EventTrackState, Index: index, Ref: ref, Track: r.Track, State: state, Path: r.Path, Err: err})
}

func (o *Orchestrator) processTrack(ctx context.Context, index int, ref reference.Reference, target *library.Target, entity catalog.Entity, r *TrackResult) {
	o.transition(index, ref, r, StateAcquiring, nil)

	asset, err := o.acquirer.Acquire(ctx, r.Track)
	if err != nil {
		o.transition(index, ref, r, StateFailed, err)
		return
	}
	defer func() {
		if r.State != StateAccepted {
			os.Remove(asset.Path)
		}
	}()
	o.transition(index, ref, r, StateHashed, nil)

	o.placeMu.Lock()
	defer o.placeMu.Unlock()

	if existing, ok := o.cache.LookupByContent(asset.Hash); ok {
		r.Path = existing
		log.Printf("INFO: track_duplicate track_id=%s hash=%s existing=%q", r.Track.TrackID, asset.Hash, existing)
		o.transition(index, ref, r, StateDuplicate, nil)
		return
	}

	path, err := o.organizer.Place(target, asset.Path, r.Track, r.Position)
	if err != nil {
		o.transition(index, ref, r, StateFailed, err)
		return
	}
	r.Path = path

	if o.tagger != nil {
		if err := o.tagger.Embed(ctx, path, metadata.SongFromTrack(r.Track, entity)); err != nil {
			log.Printf("WARN: metadata_embed_failed path=%q error=%v", path, err)
		}
	}
	if err := o.cache.RecordFile(path, asset.Hash); err != nil {
		log.Printf("WARN: hash_cache_record_failed path=%q error=%v", path, err)
	}
	o.transition(index, ref, r, StateAccepted, nil)
}

// writeArtifacts writes cover art for albums and playlists and the m3u for
// playlists. Failures are logged; they never fail tracks.
func (o *Orchestrator) writeArtifacts(ctx context.Context, target *library.Target, results []*TrackResult) {
	if target.Mode == library.ModeSongs {
		return
	}
	if _, err := o.organizer.WriteCover(ctx, target); err != nil {
		log.Printf("WARN: cover_failed entity_id=%s error=%v", target.Entity.ID(), err)
	}
	if target.Mode != library.ModePlaylists {
		return
	}

	var entries []library.PlaylistEntry
	for _, r := range results {
		if (r.State == StateAccepted || r.State == StateDuplicate) && r.Path != "" {
			entries = append(entries, library.PlaylistEntry{Track: r.Track, Path: r.Path})
		}
	}
	if _, err := o.organizer.WritePlaylist(target, entries); err != nil {
		log.Printf("WARN: playlist_failed entity_id=%s error=%v", target.Entity.ID(), err)
	}
}
