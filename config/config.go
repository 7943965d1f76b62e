// Package config loads and validates the engine configuration from YAML,
// with environment variable overrides for deployment-specific settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Identity strategies a source can select for channel deduplication.
const (
	IdentityName   = "name"
	IdentityStream = "stream"
)

// Source represents a single playlist source.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`

	// Pin protects the persisted playlist; empty means unprotected.
	Pin string `yaml:"pin"`
	// Identity selects the deduplication key: "name" or "stream".
	Identity string `yaml:"identity"`
	// Favorites are moved to the front of the built channel list, in order.
	Favorites []string `yaml:"favorites"`
	// Blacklist drops channels whose stream host is listed.
	Blacklist []string `yaml:"blacklist"`
}

// Config holds the complete engine configuration.
type Config struct {
	// Cache settings for fetched playlist documents
	Cache struct {
		Dir string        `yaml:"dir"`
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	// Fetch settings
	Fetch struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"fetch"`

	// Store settings for persisted playlists
	Store struct {
		Path string `yaml:"path"`
		// DeviceSalt is a stable per-install identifier; generated and
		// persisted when empty.
		DeviceSalt string `yaml:"device_salt"`
	} `yaml:"store"`

	// Proxy strategy endpoints
	Proxy struct {
		Manifest struct {
			PlayerHint string `yaml:"player_hint"`
		} `yaml:"manifest"`

		Stitcher struct {
			BootURL           string        `yaml:"boot_url"`
			BaseURL           string        `yaml:"base_url"`
			AppName           string        `yaml:"app_name"`
			AppVersion        string        `yaml:"app_version"`
			DeviceMake        string        `yaml:"device_make"`
			DeviceModel       string        `yaml:"device_model"`
			DeviceType        string        `yaml:"device_type"`
			DeviceVersion     string        `yaml:"device_version"`
			ClientModelNumber string        `yaml:"client_model_number"`
			HopDelay          time.Duration `yaml:"hop_delay"`
		} `yaml:"stitcher"`

		Scrape struct {
			TargetHost string `yaml:"target_host"`
			TargetPath string `yaml:"target_path"`
		} `yaml:"scrape"`
	} `yaml:"proxy"`

	// Breaker settings for upstream playlist fetches
	Breaker struct {
		FailureThreshold int           `yaml:"failure_threshold"`
		Timeout          time.Duration `yaml:"timeout"`
		HalfOpenRequests int           `yaml:"half_open_requests"`
	} `yaml:"breaker"`

	// Playlist sources
	Sources []Source `yaml:"sources"`

	// Log level: DEBUG, INFO, WARN, ERROR
	LogLevel string `yaml:"log_level"`
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	var errors []string

	if c.Cache.Dir == "" {
		errors = append(errors, "Cache directory is required")
	}
	if c.Cache.TTL <= 0 {
		errors = append(errors, "Cache TTL must be positive")
	}

	if c.Fetch.Timeout <= 0 {
		errors = append(errors, "Fetch timeout must be positive")
	}

	if c.Store.Path == "" {
		errors = append(errors, "Store path is required")
	}

	if c.Breaker.FailureThreshold < 0 {
		errors = append(errors, "Breaker failure threshold cannot be negative")
	}
	if c.Breaker.Timeout < 0 {
		errors = append(errors, "Breaker timeout cannot be negative")
	}

	if len(c.Sources) == 0 {
		errors = append(errors, "At least one playlist source is required")
	}
	for i, src := range c.Sources {
		if src.Name == "" {
			errors = append(errors, fmt.Sprintf("Source %d: name is required", i))
		}
		if src.URL == "" {
			errors = append(errors, fmt.Sprintf("Source %d (%s): URL is required", i, src.Name))
		}
		switch src.Identity {
		case "", IdentityName, IdentityStream:
		default:
			errors = append(errors, fmt.Sprintf("Source %d (%s): identity must be %q or %q", i, src.Name, IdentityName, IdentityStream))
		}
	}

	switch strings.ToUpper(c.LogLevel) {
	case "", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errors = append(errors, fmt.Sprintf("Invalid log level: %s", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// Default returns a Config with sensible default values
func Default() *Config {
	cfg := &Config{}

	cfg.Cache.Dir = "" // Required, no default
	cfg.Cache.TTL = 6 * time.Hour

	cfg.Fetch.Timeout = 15 * time.Second

	cfg.Store.Path = "iptv-engine.db"

	cfg.Proxy.Manifest.PlayerHint = "vlc"

	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.Timeout = 30 * time.Second
	cfg.Breaker.HalfOpenRequests = 1

	cfg.LogLevel = "INFO"

	return cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load loads configuration from a file (if provided) and applies environment
// variable overrides
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); err == nil {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		// File doesn't exist, use defaults
		cfg = Default()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("CACHE_DIR"); val != "" {
		absPath, err := filepath.Abs(val)
		if err != nil {
			return fmt.Errorf("invalid CACHE_DIR: %w", err)
		}
		cfg.Cache.Dir = absPath
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL format (expected duration like '1h', '30m'): %w", err)
		}
		if duration <= 0 {
			return fmt.Errorf("CACHE_TTL must be positive, got: %s", val)
		}
		cfg.Cache.TTL = duration
	}

	if val := os.Getenv("FETCH_TIMEOUT"); val != "" {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid FETCH_TIMEOUT format: %w", err)
		}
		cfg.Fetch.Timeout = duration
	}

	if val := os.Getenv("STORE_PATH"); val != "" {
		cfg.Store.Path = val
	}
	if val := os.Getenv("DEVICE_SALT"); val != "" {
		cfg.Store.DeviceSalt = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	return nil
}
