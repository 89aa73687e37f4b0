package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "raga.yaml", `version: "1"
download:
  client_id: "test_client_id"
  client_secret: "test_client_secret"
  destination: "Music"
  market: "gb"
  match_policy: similar
  threads: 4
  instrumental_keywords: ["karaoke", "8-bit"]
  embed_tags: false
ui:
  history_retention: 20
`)

	cfg, err := Load(LoadOptions{Path: path, LookupEnv: noEnv})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	d := cfg.Download
	if d.ClientID != "test_client_id" || d.ClientSecret != "test_client_secret" {
		t.Errorf("credentials = %q/%q", d.ClientID, d.ClientSecret)
	}
	if want := filepath.Join(cfg.BaseDir, "Music"); d.Destination != want {
		t.Errorf("Destination = %q, want %q", d.Destination, want)
	}
	if d.Market != "GB" {
		t.Errorf("Market = %q, want %q", d.Market, "GB")
	}
	if d.MatchPolicy != "similar" || d.Threads != 4 {
		t.Errorf("MatchPolicy = %q Threads = %d", d.MatchPolicy, d.Threads)
	}
	if len(d.InstrumentalKeywords) != 2 {
		t.Errorf("InstrumentalKeywords = %q", d.InstrumentalKeywords)
	}
	if d.EmbedTags == nil || *d.EmbedTags {
		t.Error("EmbedTags = true, want false from file")
	}
	if cfg.UI.HistoryRetention != 20 {
		t.Errorf("HistoryRetention = %d, want 20", cfg.UI.HistoryRetention)
	}
	if want := filepath.Join(d.Destination, ".raga", "history.db"); cfg.UI.HistoryPath != want {
		t.Errorf("HistoryPath = %q, want %q", cfg.UI.HistoryPath, want)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q, want %q", cfg.Source, path)
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "raga.toml", `version = "1"

[download]
client_id = "id"
client_secret = "secret"
format = "m4a"
group_threshold = 3

[ui]
debug = true
`)

	cfg, err := Load(LoadOptions{Path: path, LookupEnv: noEnv})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Download.Format != "m4a" || cfg.Download.GroupThreshold != 3 || !cfg.UI.Debug {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(LoadOptions{Dir: dir, LookupEnv: envMap(map[string]string{
		"CLIENT_ID":     "id",
		"CLIENT_SECRET": "secret",
	})})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	d := cfg.Download
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"market", d.Market, "US"},
		{"match_policy", d.MatchPolicy, "top"},
		{"search_limit", d.SearchLimit, 10},
		{"format", d.Format, "mp3"},
		{"bitrate", d.Bitrate, "192K"},
		{"max_retries", d.MaxRetries, 3},
		{"retry_delay_seconds", d.RetryDelaySeconds, 3},
		{"threads", d.Threads, 1},
		{"group_threshold", d.GroupThreshold, 2},
		{"embed_tags", *d.EmbedTags, true},
		{"spotify_rate_limit_enabled", *d.SpotifyRateLimitEnabled, true},
		{"destination", d.Destination, filepath.Join(cfg.BaseDir, "DownloadedMusic")},
		{"log_dir", cfg.UI.LogDir, filepath.Join(d.Destination, ".logs")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q, want empty without a config file", cfg.Source)
	}
}

func TestLoad_FindsDefaultFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "raga.yml", "download:\n  market: DE\n")

	cfg, err := Load(LoadOptions{Dir: dir, LookupEnv: noEnv})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Download.Market != "DE" {
		t.Errorf("Market = %q, want %q", cfg.Download.Market, "DE")
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "raga.yaml", `download:
  client_id: "from_file"
  client_secret: "from_file"
  market: "FR"
  destination: "FileMusic"
`)
	writeConfig(t, dir, ".env", "CLIENT_ID=from_dotenv\nMARKET=DE\nDESTINATION_FOLDER=EnvMusic\n")

	cfg, err := Load(LoadOptions{Path: path, LookupEnv: envMap(map[string]string{
		"MARKET": "JP",
		"DEBUG":  "1",
	})})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	// CLI flags land after Load.
	cfg.Download.Threads = 2

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Download.ClientID != "from_dotenv" {
		t.Errorf("ClientID = %q, want .env to beat the file", cfg.Download.ClientID)
	}
	if cfg.Download.ClientSecret != "from_file" {
		t.Errorf("ClientSecret = %q, want file value", cfg.Download.ClientSecret)
	}
	if cfg.Download.Market != "JP" {
		t.Errorf("Market = %q, want the real environment to beat .env", cfg.Download.Market)
	}
	if want := filepath.Join(cfg.BaseDir, "EnvMusic"); cfg.Download.Destination != want {
		t.Errorf("Destination = %q, want %q", cfg.Download.Destination, want)
	}
	if !cfg.UI.Debug || cfg.Download.Threads != 2 {
		t.Errorf("Debug = %v Threads = %d", cfg.UI.Debug, cfg.Download.Threads)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoadOptions{Path: "/nonexistent/raga.yaml", LookupEnv: noEnv})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want *ConfigError", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unknown yaml key", "raga.yaml", "download:\n  threadz: 3\n"},
		{"invalid yaml", "raga.yaml", "download: [\n"},
		{"unknown toml key", "raga.toml", "[download]\nthreadz = 3\n"},
		{"unsupported extension", "raga.json", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.file, tt.body)
			_, err := Load(LoadOptions{Path: path, LookupEnv: noEnv})
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Load() error = %v, want *ConfigError", err)
			}
		})
	}
}

func TestLoad_InvalidThreadsEnv(t *testing.T) {
	_, err := Load(LoadOptions{Dir: t.TempDir(), LookupEnv: envMap(map[string]string{"THREADS": "many"})})
	if err == nil {
		t.Error("Load() error = nil for THREADS=many")
	}
}

func validConfig() *Config {
	return &Config{
		BaseDir:  "/base",
		Download: DownloadSettings{ClientID: "id", ClientSecret: "secret"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing credentials", func(c *Config) { c.Download.ClientID = " " }, "client_id"},
		{"both credentials", func(c *Config) { c.Download.ClientID, c.Download.ClientSecret = "", "" }, "client_id and client_secret"},
		{"bad market", func(c *Config) { c.Download.Market = "USA" }, "market"},
		{"digits in market", func(c *Config) { c.Download.Market = "U1" }, "market"},
		{"bad policy", func(c *Config) { c.Download.MatchPolicy = "best" }, "match_policy"},
		{"too many threads", func(c *Config) { c.Download.Threads = 9 }, "threads"},
		{"negative threads", func(c *Config) { c.Download.Threads = -1 }, "threads"},
		{"flac not supported", func(c *Config) { c.Download.Format = "flac" }, "format"},
		{"negative retries", func(c *Config) { c.Download.MaxRetries = -1 }, "max_retries"},
		{"bad version", func(c *Config) { c.Version = "2" }, "version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ResolvesPaths(t *testing.T) {
	cfg := validConfig()
	cfg.Download.Destination = "/abs/music"
	cfg.Download.PlaceholderImage = "art/placeholder.jpg"
	cfg.UI.HistoryPath = "/var/raga/history.db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Download.Destination != "/abs/music" {
		t.Errorf("Destination = %q", cfg.Download.Destination)
	}
	if cfg.Download.PlaceholderImage != filepath.Join("/base", "art", "placeholder.jpg") {
		t.Errorf("PlaceholderImage = %q", cfg.Download.PlaceholderImage)
	}
	if cfg.Download.InputDir != "/base" {
		t.Errorf("InputDir = %q, want /base", cfg.Download.InputDir)
	}
	if cfg.UI.HistoryPath != "/var/raga/history.db" {
		t.Errorf("HistoryPath = %q", cfg.UI.HistoryPath)
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "TRUE": true, " yes ": true, "on": true, "0": false, "": false, "nope": false} {
		if got := ParseBool(in); got != want {
			t.Errorf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidateLocal_SkipsCredentials(t *testing.T) {
	cfg := &Config{BaseDir: "/base"}
	if err := cfg.ValidateLocal(); err != nil {
		t.Errorf("ValidateLocal() error = %v", err)
	}
	cfg = &Config{BaseDir: "/base"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil without credentials")
	}
	cfg = &Config{BaseDir: "/base", Download: DownloadSettings{Threads: 20}}
	if err := cfg.ValidateLocal(); err == nil {
		t.Error("ValidateLocal() accepted threads = 20")
	}
}
