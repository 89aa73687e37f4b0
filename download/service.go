package download

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AJMSD/raga/download/audio"
	"github.com/AJMSD/raga/download/config"
	"github.com/AJMSD/raga/download/filter"
	"github.com/AJMSD/raga/download/hashcache"
	"github.com/AJMSD/raga/download/history"
	"github.com/AJMSD/raga/download/library"
	"github.com/AJMSD/raga/download/maintenance"
	"github.com/AJMSD/raga/download/metadata"
	"github.com/AJMSD/raga/download/orchestrator"
	"github.com/AJMSD/raga/download/reference"
	"github.com/AJMSD/raga/download/resolver"
	"github.com/AJMSD/raga/download/spotify"
)

// ServiceState represents the state of the service.
type ServiceState string

const (
	ServiceStateIdle    ServiceState = "idle"
	ServiceStateRunning ServiceState = "running"
	ServiceStateClosed  ServiceState = "closed"
)

// stagingPrefix names per-run staging folders inside the destination, so
// placing a file is a rename on the same filesystem.
const stagingPrefix = ".raga-staging-"

// ErrOffline is returned by Run on a service opened without providers.
var ErrOffline = errors.New("service was opened without metadata and audio providers")

// Service owns every component of a run, built from one immutable config.
type Service struct {
	config *config.Config

	spotifyClient *spotify.SpotifyClient
	audioProvider *audio.Provider
	resolver      *resolver.Resolver
	downloader    *Downloader

	cache      *hashcache.Cache
	organizer  *library.Organizer
	embedder   *metadata.Embedder
	history    *history.Store
	tracker    *history.Tracker
	stagingDir string

	mu    sync.RWMutex
	state ServiceState
}

// NewService connects to Spotify, locates yt-dlp and opens the destination.
func NewService(cfg *config.Config) (*Service, error) {
	d := cfg.Download
	spotifyClient, err := spotify.NewSpotifyClient(&spotify.Config{
		ClientID:          d.ClientID,
		ClientSecret:      d.ClientSecret,
		Market:            d.Market,
		CacheMaxSize:      d.CacheMaxSize,
		CacheTTL:          time.Duration(d.CacheTTL) * time.Second,
		RateLimitEnabled:  *d.SpotifyRateLimitEnabled,
		RateLimitRequests: d.SpotifyRateLimitRequests,
		RateLimitWindow:   seconds(d.SpotifyRateLimitWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify client: %w", err)
	}

	audioProvider, err := audio.NewProvider(&audio.Config{
		Binary:            d.YtDlpPath,
		Format:            d.Format,
		Bitrate:           d.Bitrate,
		SearchCandidates:  d.SearchCandidates,
		SocketTimeout:     time.Duration(d.SocketTimeout) * time.Second,
		RetrySleep:        time.Duration(d.RetryDelaySeconds) * time.Second,
		CacheMaxSize:      d.AudioSearchCacheMaxSize,
		CacheTTL:          time.Duration(d.AudioSearchCacheTTL) * time.Second,
		RateLimitEnabled:  *d.DownloadRateLimitEnabled,
		RateLimitRequests: d.DownloadRateLimitRequests,
		RateLimitWindow:   seconds(d.DownloadRateLimitWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio provider: %w", err)
	}

	s, err := newService(cfg, spotify.NewCatalog(spotifyClient), audioProvider)
	if err != nil {
		return nil, err
	}
	s.spotifyClient = spotifyClient
	s.audioProvider = audioProvider
	return s, nil
}

// OpenLibrary opens the destination without providers, for maintenance,
// cache rebuilds and history queries.
func OpenLibrary(cfg *config.Config) (*Service, error) {
	return newService(cfg, nil, nil)
}

// newService builds the service around the given providers; both nil gives
// an offline service.
func newService(cfg *config.Config, catalog resolver.Provider, source AudioSource) (*Service, error) {
	d := cfg.Download
	filter.SetKeywords(d.InstrumentalKeywords)

	cache, err := hashcache.Open(d.Destination, hashcache.Options{ImportLegacy: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open hash cache: %w", err)
	}

	s := &Service{
		config: cfg,
		cache:  cache,
		organizer: library.NewOrganizer(cache.Root(), library.Options{
			PlaceholderImage: d.PlaceholderImage,
			GroupThreshold:   d.GroupThreshold,
		}),
		state: ServiceStateIdle,
	}

	if store, err := history.Open(cfg.UI.HistoryPath); err != nil {
		log.Printf("WARN: history_unavailable path=%q error=%v", cfg.UI.HistoryPath, err)
	} else {
		s.history = store
		s.tracker = history.NewTracker(store, cfg.UI.HistoryRetention)
	}

	if catalog == nil || source == nil {
		return s, nil
	}

	policy, err := resolver.ParsePolicy(d.MatchPolicy)
	if err != nil {
		s.Close()
		return nil, &config.ConfigError{Message: "Invalid match_policy", Original: err}
	}
	s.resolver = resolver.New(catalog, resolver.Options{
		Policy:      policy,
		SearchLimit: d.SearchLimit,
		MaxRetries:  d.MaxRetries,
	})

	removeStaleStaging(cache.Root())
	s.stagingDir, err = os.MkdirTemp(cache.Root(), stagingPrefix)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	s.downloader = NewDownloader(source, s.stagingDir, d.MaxRetries, time.Duration(d.RetryDelaySeconds)*time.Second)

	if *d.EmbedTags {
		s.embedder = metadata.NewEmbedder()
	}
	return s, nil
}

// removeStaleStaging deletes staging folders left by runs that were killed.
// Callers hold the destination lock.
func removeStaleStaging(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), stagingPrefix) {
			path := filepath.Join(root, e.Name())
			if err := os.RemoveAll(path); err != nil {
				log.Printf("WARN: stale_staging_remove_failed path=%q error=%v", path, err)
			} else {
				log.Printf("INFO: stale_staging_removed path=%q", path)
			}
		}
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Config returns the configuration the service was built from.
func (s *Service) Config() *config.Config { return s.config }

// State returns the current state.
func (s *Service) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) setState(state ServiceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != state {
		log.Printf("INFO: state_transition state=%s -> %s", s.state, state)
		s.state = state
	}
}

// Run processes the input file. The cache is refreshed against the tree
// first. The returned error is non-nil when the run could not start or was
// interrupted; partial failures are reported through the summary.
func (s *Service) Run(ctx context.Context, input *reference.Input, observers ...orchestrator.Observer) (*orchestrator.Summary, error) {
	if s.resolver == nil || s.downloader == nil {
		return nil, ErrOffline
	}
	s.mu.Lock()
	if s.state != ServiceStateIdle {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("service is %s", state)
	}
	s.mu.Unlock()
	s.setState(ServiceStateRunning)
	defer s.setState(ServiceStateIdle)

	refs, malformed, err := reference.LoadFile(input.Mode, input.Path)
	if err != nil {
		return nil, err
	}
	for _, m := range malformed {
		log.Printf("WARN: reference_malformed error=%v", m)
	}
	log.Printf("INFO: input_loaded mode=%s path=%q references=%d malformed=%d", input.Mode, input.Path, len(refs), len(malformed))

	stats, err := s.cache.RebuildIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh hash cache: %w", err)
	}
	log.Printf("INFO: hash_cache_ready files=%d hashed=%d reused=%d removed=%d", stats.Files, stats.Hashed, stats.Reused, stats.Removed)

	opts := orchestrator.Options{Threads: s.config.Download.Threads}
	if s.embedder != nil {
		opts.Tagger = s.embedder
	}
	orch := orchestrator.New(s.resolver, s.downloader, s.cache, s.organizer, opts)

	if s.tracker != nil {
		if _, err := s.tracker.StartRun(ctx, history.Run{
			Destination: s.cache.Root(),
			InputFile:   input.Path,
			Mode:        string(input.Mode),
			ConfigHash:  s.config.Fingerprint(),
		}); err != nil {
			log.Printf("WARN: history_start_failed error=%v", err)
		} else {
			orch.AddObserver(s.tracker.Observe)
		}
	}
	for _, obs := range observers {
		orch.AddObserver(obs)
	}

	summary, runErr := orch.Run(ctx, refs, malformed)

	// Bookkeeping must finish even when ctx was cancelled.
	cleanup := context.WithoutCancel(ctx)
	if s.tracker != nil {
		if err := s.tracker.StopRun(cleanup, summary, runErr); err != nil {
			log.Printf("WARN: history_stop_failed error=%v", err)
		}
	}
	if err := s.cache.Flush(); err != nil {
		log.Printf("ERROR: hash_cache_flush_failed error=%v", err)
	}
	log.Printf("INFO: run_complete acquired=%d duplicate=%d skipped=%d failed=%d",
		summary.Acquired, summary.Duplicate, summary.Skipped, summary.Failed)
	return summary, runErr
}

// RebuildCache rehashes every audio file under the destination.
func (s *Service) RebuildCache(ctx context.Context, force bool) (hashcache.Stats, error) {
	if force {
		if err := s.cache.Reset(); err != nil {
			return hashcache.Stats{}, err
		}
	}
	return s.cache.RebuildIndex(ctx)
}

// Prune runs destination maintenance.
func (s *Service) Prune(ctx context.Context, opts maintenance.Options) (*maintenance.Report, error) {
	return maintenance.New(s.cache.Root(), s.cache).Run(ctx, opts)
}

// CacheStats holds aggregated cache statistics from all caches.
type CacheStats struct {
	Spotify        spotify.CacheStats
	SpotifyTTL     int // TTL in seconds
	AudioSearch    spotify.CacheStats
	AudioSearchTTL int // TTL in seconds
	ContentIndex   int // files known to the hash cache
}

// GetCacheStats returns aggregated cache statistics from all caches.
func (s *Service) GetCacheStats() CacheStats {
	stats := CacheStats{
		SpotifyTTL:     s.config.Download.CacheTTL,
		AudioSearchTTL: s.config.Download.AudioSearchCacheTTL,
		ContentIndex:   s.cache.Len(),
	}
	if s.spotifyClient != nil {
		stats.Spotify = s.spotifyClient.CacheStats()
	}
	if s.audioProvider != nil {
		stats.AudioSearch = s.audioProvider.CacheStats()
	}
	return stats
}

// Close removes the staging directory and closes the cache and history.
// Later calls do nothing.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.state == ServiceStateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = ServiceStateClosed
	s.mu.Unlock()
	var errs []error
	if s.stagingDir != "" {
		if err := os.RemoveAll(s.stagingDir); err != nil {
			errs = append(errs, fmt.Errorf("remove staging dir: %w", err))
		}
	}
	if err := s.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
