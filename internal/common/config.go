package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/locus/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Logging      LoggingConfig      `toml:"logging"`
	PlacesAPI    PlacesAPIConfig    `toml:"places_api"`
	Search       SearchConfig       `toml:"search"`
	History      HistoryConfig      `toml:"history"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	WebSocket    WebSocketConfig    `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// PlacesAPIConfig contains Google Places API configuration
type PlacesAPIConfig struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url" validate:"required,url"`
	Language       string  `toml:"language" validate:"required"`
	RequestTimeout string  `toml:"request_timeout"`                // e.g. "10s"
	RateLimit      float64 `toml:"rate_limit" validate:"gte=0"`    // Requests per second, 0 disables limiting
	BiasRadius     int     `toml:"bias_radius" validate:"gte=0"`   // Metres around the bias location
	BreakerTrips   uint32  `toml:"breaker_trips" validate:"gte=1"` // Consecutive failures before the breaker opens
	BreakerTimeout string  `toml:"breaker_timeout"`                // Open-state duration before half-open
}

// SearchConfig controls the keystroke pipeline
type SearchConfig struct {
	Debounce       string `toml:"debounce"` // Quiet period before a search fires
	MinQueryLength int    `toml:"min_query_length" validate:"gte=1"`
}

// HistoryConfig controls the persisted selection history
type HistoryConfig struct {
	StorageKey string `toml:"storage_key" validate:"required"`
	MaxEntries int    `toml:"max_entries" validate:"gte=1"`
}

// ConnectivityConfig controls the reachability sampler
type ConnectivityConfig struct {
	Enabled      bool   `toml:"enabled"`
	Interval     string `toml:"interval"`
	ProbeURL     string `toml:"probe_url" validate:"required,url"`
	ProbeTimeout string `toml:"probe_timeout"`
}

// WebSocketConfig contains configuration for state streaming
type WebSocketConfig struct {
	Throttle string `toml:"throttle"` // Minimum gap between pushed snapshots, "0s" disables
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		PlacesAPI: PlacesAPIConfig{
			APIKey:         "", // User must provide API key
			BaseURL:        "https://maps.googleapis.com/maps/api/place",
			Language:       "en",
			RequestTimeout: "10s",
			RateLimit:      10,
			BiasRadius:     50000,
			BreakerTrips:   5,
			BreakerTimeout: "30s",
		},
		Search: SearchConfig{
			Debounce:       "400ms",
			MinQueryLength: 2,
		},
		History: HistoryConfig{
			StorageKey: "placeHistory",
			MaxEntries: 20,
		},
		Connectivity: ConnectivityConfig{
			Enabled:      true,
			Interval:     "5s",
			ProbeURL:     "https://clients3.google.com/generate_204",
			ProbeTimeout: "3s",
		},
		WebSocket: WebSocketConfig{
			Throttle: "100ms",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// CLI overrides are applied separately by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies LOCUS_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LOCUS_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("LOCUS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LOCUS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("LOCUS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("LOCUS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("LOCUS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if baseURL := os.Getenv("LOCUS_PLACES_BASE_URL"); baseURL != "" {
		config.PlacesAPI.BaseURL = baseURL
	}
	if language := os.Getenv("LOCUS_PLACES_LANGUAGE"); language != "" {
		config.PlacesAPI.Language = language
	}
	if timeout := os.Getenv("LOCUS_PLACES_REQUEST_TIMEOUT"); timeout != "" {
		config.PlacesAPI.RequestTimeout = timeout
	}

	if debounce := os.Getenv("LOCUS_SEARCH_DEBOUNCE"); debounce != "" {
		config.Search.Debounce = debounce
	}

	if enabled := os.Getenv("LOCUS_CONNECTIVITY_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Connectivity.Enabled = b
		}
	}
	if interval := os.Getenv("LOCUS_CONNECTIVITY_INTERVAL"); interval != "" {
		config.Connectivity.Interval = interval
	}
	if probeURL := os.Getenv("LOCUS_CONNECTIVITY_PROBE_URL"); probeURL != "" {
		config.Connectivity.ProbeURL = probeURL
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints and that every duration string parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"places_api.request_timeout": c.PlacesAPI.RequestTimeout,
		"places_api.breaker_timeout": c.PlacesAPI.BreakerTimeout,
		"search.debounce":            c.Search.Debounce,
		"connectivity.interval":      c.Connectivity.Interval,
		"connectivity.probe_timeout": c.Connectivity.ProbeTimeout,
		"websocket.throttle":         c.WebSocket.Throttle,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s=%q: %w", name, value, err)
		}
	}

	return nil
}

// ParseDuration parses value, returning fallback when it is empty or malformed.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ResolveAPIKey resolves an API key by name.
// Resolution order: environment variable -> KV store -> config fallback -> error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string]string{
		"google_places_api_key": "LOCUS_PLACES_API_KEY",
	}

	if envVarName, ok := keyToEnvMapping[name]; ok {
		if envValue := os.Getenv(envVarName); envValue != "" {
			return envValue, nil
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
