package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AJMSD/raga/download/resolver"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message  string
	Original error
}

func (e *ConfigError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Original)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Original
}

// Limits enforced by Validate.
const (
	MinThreads = 1
	MaxThreads = 8
)

// DownloadSettings holds the pipeline settings.
type DownloadSettings struct {
	// Spotify API credentials (required)
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`

	// Destination root; relative paths resolve against the config file directory.
	Destination string `yaml:"destination" toml:"destination"`
	// InputDir is searched for the input list files.
	InputDir string `yaml:"input_dir" toml:"input_dir"`

	// Resolution
	Market               string   `yaml:"market" toml:"market"`
	MatchPolicy          string   `yaml:"match_policy" toml:"match_policy"`
	SearchLimit          int      `yaml:"search_limit" toml:"search_limit"`
	InstrumentalKeywords []string `yaml:"instrumental_keywords" toml:"instrumental_keywords"`

	// Acquisition
	YtDlpPath         string `yaml:"ytdlp_path" toml:"ytdlp_path"`
	Format            string `yaml:"format" toml:"format"`
	Bitrate           string `yaml:"bitrate" toml:"bitrate"`
	SearchCandidates  int    `yaml:"search_candidates" toml:"search_candidates"`
	MaxRetries        int    `yaml:"max_retries" toml:"max_retries"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds" toml:"retry_delay_seconds"`
	SocketTimeout     int    `yaml:"socket_timeout" toml:"socket_timeout"`
	Threads           int    `yaml:"threads" toml:"threads"`

	// Organization
	GroupThreshold   int    `yaml:"group_threshold" toml:"group_threshold"`
	PlaceholderImage string `yaml:"placeholder_image" toml:"placeholder_image"`
	EmbedTags        *bool  `yaml:"embed_tags" toml:"embed_tags"` // nil = true

	// Cache settings (seconds for TTLs)
	CacheMaxSize            int `yaml:"cache_max_size" toml:"cache_max_size"`
	CacheTTL                int `yaml:"cache_ttl" toml:"cache_ttl"`
	AudioSearchCacheMaxSize int `yaml:"audio_search_cache_max_size" toml:"audio_search_cache_max_size"`
	AudioSearchCacheTTL     int `yaml:"audio_search_cache_ttl" toml:"audio_search_cache_ttl"`

	// Spotify rate limiting settings
	SpotifyRateLimitEnabled  *bool   `yaml:"spotify_rate_limit_enabled" toml:"spotify_rate_limit_enabled"`
	SpotifyRateLimitRequests int     `yaml:"spotify_rate_limit_requests" toml:"spotify_rate_limit_requests"`
	SpotifyRateLimitWindow   float64 `yaml:"spotify_rate_limit_window" toml:"spotify_rate_limit_window"`

	// yt-dlp search rate limiting settings
	DownloadRateLimitEnabled  *bool   `yaml:"download_rate_limit_enabled" toml:"download_rate_limit_enabled"`
	DownloadRateLimitRequests int     `yaml:"download_rate_limit_requests" toml:"download_rate_limit_requests"`
	DownloadRateLimitWindow   float64 `yaml:"download_rate_limit_window" toml:"download_rate_limit_window"`
}

func boolPtr(v bool) *bool { return &v }

// SetDefaults sets default values for DownloadSettings.
func (d *DownloadSettings) SetDefaults() {
	if d.Destination == "" {
		d.Destination = "DownloadedMusic"
	}
	if d.InputDir == "" {
		d.InputDir = "."
	}
	d.Market = strings.ToUpper(strings.TrimSpace(d.Market))
	if d.Market == "" {
		d.Market = "US"
	}
	d.MatchPolicy = strings.ToLower(strings.TrimSpace(d.MatchPolicy))
	if d.MatchPolicy == "" {
		d.MatchPolicy = resolver.PolicyTop
	}
	if d.SearchLimit == 0 {
		d.SearchLimit = 10
	}
	if d.YtDlpPath == "" {
		d.YtDlpPath = "yt-dlp"
	}
	if d.Format == "" {
		d.Format = "mp3"
	}
	if d.Bitrate == "" {
		d.Bitrate = "192K"
	}
	if d.SearchCandidates == 0 {
		d.SearchCandidates = 5
	}
	if d.MaxRetries == 0 {
		d.MaxRetries = 3
	}
	if d.RetryDelaySeconds == 0 {
		d.RetryDelaySeconds = 3
	}
	if d.SocketTimeout == 0 {
		d.SocketTimeout = 30
	}
	if d.Threads == 0 {
		d.Threads = 1
	}
	if d.GroupThreshold == 0 {
		d.GroupThreshold = 2
	}
	if d.EmbedTags == nil {
		d.EmbedTags = boolPtr(true)
	}
	if d.CacheMaxSize == 0 {
		d.CacheMaxSize = 1000
	}
	if d.CacheTTL == 0 {
		d.CacheTTL = 3600
	}
	if d.AudioSearchCacheMaxSize == 0 {
		d.AudioSearchCacheMaxSize = 500
	}
	if d.AudioSearchCacheTTL == 0 {
		d.AudioSearchCacheTTL = 86400
	}
	if d.SpotifyRateLimitEnabled == nil {
		d.SpotifyRateLimitEnabled = boolPtr(true)
	}
	if d.SpotifyRateLimitRequests == 0 {
		d.SpotifyRateLimitRequests = 10
	}
	if d.SpotifyRateLimitWindow == 0 {
		d.SpotifyRateLimitWindow = 1.0
	}
	if d.DownloadRateLimitEnabled == nil {
		d.DownloadRateLimitEnabled = boolPtr(true)
	}
	if d.DownloadRateLimitRequests == 0 {
		d.DownloadRateLimitRequests = 2
	}
	if d.DownloadRateLimitWindow == 0 {
		d.DownloadRateLimitWindow = 1.0
	}
}

// Validate validates DownloadSettings.
func (d *DownloadSettings) Validate() error {
	if err := d.validateCredentials(); err != nil {
		return err
	}
	return d.validateLocal()
}

func (d *DownloadSettings) validateCredentials() error {
	d.ClientID = strings.TrimSpace(d.ClientID)
	d.ClientSecret = strings.TrimSpace(d.ClientSecret)

	missing := []string{}
	if d.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if d.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return &ConfigError{
			Message: fmt.Sprintf(
				"Missing Spotify %s. Set download.client_id and download.client_secret in the config file or CLIENT_ID and CLIENT_SECRET in the environment",
				strings.Join(missing, " and "),
			),
		}
	}
	return nil
}

// validateLocal checks everything but the credentials.
func (d *DownloadSettings) validateLocal() error {
	if len(d.Market) != 2 || strings.ToUpper(d.Market) != d.Market || !isLetters(d.Market) {
		return &ConfigError{
			Message: fmt.Sprintf("Invalid market: %q. Must be a two letter country code such as US", d.Market),
		}
	}

	if _, err := resolver.ParsePolicy(d.MatchPolicy); err != nil {
		return &ConfigError{Message: "Invalid match_policy", Original: err}
	}

	if d.Threads < MinThreads || d.Threads > MaxThreads {
		return &ConfigError{
			Message: fmt.Sprintf("Invalid threads: %d. Must be between %d and %d", d.Threads, MinThreads, MaxThreads),
		}
	}

	validFormats := map[string]bool{
		"mp3":  true,
		"m4a":  true,
		"opus": true,
	}
	if !validFormats[d.Format] {
		return &ConfigError{
			Message: fmt.Sprintf("Invalid format: %s. Must be one of: mp3, m4a, opus", d.Format),
		}
	}

	for name, v := range map[string]int{
		"search_limit":        d.SearchLimit,
		"search_candidates":   d.SearchCandidates,
		"max_retries":         d.MaxRetries,
		"retry_delay_seconds": d.RetryDelaySeconds,
		"socket_timeout":      d.SocketTimeout,
		"group_threshold":     d.GroupThreshold,
	} {
		if v < 0 {
			return &ConfigError{Message: fmt.Sprintf("Invalid %s: %d. Must not be negative", name, v)}
		}
	}
	return nil
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// UISettings holds run log and history settings.
type UISettings struct {
	Debug bool `yaml:"debug" toml:"debug"`

	// LogDir holds one run_<timestamp> folder per run. Relative to the destination.
	LogDir string `yaml:"log_dir" toml:"log_dir"`

	// HistoryPath is the SQLite history database. Relative to the destination.
	HistoryPath      string `yaml:"history_path" toml:"history_path"`
	HistoryRetention int    `yaml:"history_retention" toml:"history_retention"` // 0 = unlimited
}

// SetDefaults sets default values for UISettings.
func (u *UISettings) SetDefaults() {
	if u.LogDir == "" {
		u.LogDir = ".logs"
	}
	if u.HistoryPath == "" {
		u.HistoryPath = filepath.Join(".raga", "history.db")
	}
	if u.HistoryRetention < 0 {
		u.HistoryRetention = 0
	}
}

// Config is the complete, immutable run configuration.
type Config struct {
	Version  string           `yaml:"version" toml:"version"`
	Download DownloadSettings `yaml:"download" toml:"download"`
	UI       UISettings       `yaml:"ui" toml:"ui"`

	// Source is the config file the values came from, empty when none was used.
	Source string `yaml:"-" toml:"-"`
	// BaseDir anchors relative paths: the config file directory or the
	// working directory.
	BaseDir string `yaml:"-" toml:"-"`
}

// CurrentVersion is the only accepted config file version.
const CurrentVersion = "1"

// Validate applies defaults, resolves paths and validates the config.
func (c *Config) Validate() error {
	return c.finalize(true)
}

// ValidateLocal is Validate without the credential check, for commands that
// only touch the destination tree.
func (c *Config) ValidateLocal() error {
	return c.finalize(false)
}

func (c *Config) finalize(requireCredentials bool) error {
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.Version != CurrentVersion {
		return &ConfigError{
			Message: fmt.Sprintf("Invalid version: %s. Expected %s", c.Version, CurrentVersion),
		}
	}

	c.Download.SetDefaults()
	c.UI.SetDefaults()
	if requireCredentials {
		if err := c.Download.validateCredentials(); err != nil {
			return err
		}
	}
	if err := c.Download.validateLocal(); err != nil {
		return err
	}

	c.Download.Destination = c.resolve(c.Download.Destination)
	c.Download.InputDir = c.resolve(c.Download.InputDir)
	if c.Download.PlaceholderImage != "" {
		c.Download.PlaceholderImage = c.resolve(c.Download.PlaceholderImage)
	}
	c.UI.LogDir = c.under(c.Download.Destination, c.UI.LogDir)
	c.UI.HistoryPath = c.under(c.Download.Destination, c.UI.HistoryPath)
	return nil
}

func (c *Config) resolve(path string) string {
	return c.under(c.BaseDir, path)
}

func (c *Config) under(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
