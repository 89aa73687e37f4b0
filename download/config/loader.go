package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultFileNames are looked up, in order, when no config file is given.
var DefaultFileNames = []string{"raga.yaml", "raga.yml", "raga.toml"}

// DefaultEnvFile is read from the base directory when present.
const DefaultEnvFile = ".env"

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// Path is an explicit config file. It must exist.
	Path string
	// Dir is searched for DefaultFileNames when Path is empty. Defaults to
	// the working directory.
	Dir string
	// EnvFile overrides DefaultEnvFile. Relative to the base directory.
	EnvFile string
	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds a Config from the config file, the .env file and the
// environment, in increasing precedence. Command line flags are applied by the
// caller afterwards, then Validate finalizes the value.
func Load(opts LoadOptions) (*Config, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}

	path, err := findConfigFile(opts)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	base := opts.Dir
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.Source = path
		base = filepath.Dir(path)
	}
	if cfg.BaseDir, err = filepath.Abs(base); err != nil {
		return nil, &ConfigError{Message: "Cannot resolve config directory", Original: err}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if !filepath.IsAbs(envFile) {
		envFile = filepath.Join(cfg.BaseDir, envFile)
	}
	dotenv, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}

	lookup := func(key string) (string, bool) {
		if v, ok := opts.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads path (or the default file in the working directory when
// path is empty) with the environment overlay and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg, err := Load(LoadOptions{Path: path})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile(opts LoadOptions) (string, error) {
	if opts.Path != "" {
		if _, err := os.Stat(opts.Path); err != nil {
			return "", &ConfigError{
				Message:  fmt.Sprintf("Configuration file not found: %s", opts.Path),
				Original: err,
			}
		}
		return opts.Path, nil
	}
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(opts.Dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Message: "Error reading configuration file", Original: err}
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return &ConfigError{Message: fmt.Sprintf("Error parsing YAML file %s", path), Original: err}
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return &ConfigError{Message: fmt.Sprintf("Error parsing TOML file %s", path), Original: err}
		}
	default:
		return &ConfigError{Message: fmt.Sprintf("Unsupported configuration file type %q (want .yaml, .yml or .toml)", ext)}
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err == nil {
		return values, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	return nil, &ConfigError{Message: fmt.Sprintf("Error reading env file %s", path), Original: err}
}

// applyEnv overlays the supported environment variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("CLIENT_ID", &cfg.Download.ClientID)
	str("CLIENT_SECRET", &cfg.Download.ClientSecret)
	str("MARKET", &cfg.Download.Market)
	str("MATCH_POLICY", &cfg.Download.MatchPolicy)
	str("DESTINATION_FOLDER", &cfg.Download.Destination)

	if v, ok := lookup("THREADS"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Message: fmt.Sprintf("Invalid THREADS value %q", v), Original: err}
		}
		cfg.Download.Threads = n
	}

	if v, ok := lookup("DEBUG"); ok {
		cfg.UI.Debug = ParseBool(v)
	}
	return nil
}

// ParseBool accepts the usual spellings of true; anything else is false.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
