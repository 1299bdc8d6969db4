// Package config loads and validates environment-based configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Response modes for GET /route.
const (
	ModeRaw     = "raw"
	ModeSummary = "summary"
)

// Cache backends.
const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Message)
}

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	Port int

	// Directions API settings.
	GoogleAPIKey  string
	DirectionsURL string // empty selects Google's endpoint
	Language      string
	Region        string

	// ResponseMode selects what GET /route returns: the upstream document
	// verbatim ("raw") or the reshaped first leg ("summary").
	ResponseMode string

	UpstreamTimeout     time.Duration
	UpstreamMaxAttempts int
	RequestTimeout      time.Duration

	// Route cache. CacheBackend "none" disables caching entirely.
	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DBDSN         string // Required only when CacheBackend is "postgres".

	LogLevel  string
	LogFormat string // "text" or "json"
}

// fileConfig mirrors the optional YAML file named by CONFIG_FILE. Every
// field is a string so that it can be fed through the same parsers as the
// environment.
type fileConfig struct {
	Port                string `yaml:"port"`
	GoogleAPIKey        string `yaml:"google_maps_api_key"`
	DirectionsURL       string `yaml:"directions_url"`
	Language            string `yaml:"language"`
	Region              string `yaml:"region"`
	ResponseMode        string `yaml:"response_mode"`
	UpstreamTimeout     string `yaml:"upstream_timeout"`
	UpstreamMaxAttempts string `yaml:"upstream_max_attempts"`
	RequestTimeout      string `yaml:"request_timeout"`
	Cache               struct {
		Backend string `yaml:"backend"`
		TTL     string `yaml:"ttl"`
	} `yaml:"cache"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       string `yaml:"db"`
	} `yaml:"redis"`
	DBDSN string `yaml:"db_dsn"`
	Log   struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// source resolves a key from the environment first and the YAML file second.
type source struct {
	file map[string]string
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

// Load reads a .env file if present, the optional YAML file named by
// CONFIG_FILE, then the process environment, and validates the result.
// Environment variables always win over file values.
// Returns a ConfigError for any missing or invalid value.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	src := source{file: map[string]string{}}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = values
	}

	return load(src)
}

func load(src source) (*Config, error) {
	cfg := &Config{}

	cfg.GoogleAPIKey = src.get("GOOGLE_MAPS_API_KEY")
	if cfg.GoogleAPIKey == "" {
		cfg.GoogleAPIKey = src.get("GOOGLE_API_KEY")
	}
	if cfg.GoogleAPIKey == "" {
		return nil, &ConfigError{Field: "GOOGLE_MAPS_API_KEY", Message: "required but not set"}
	}

	cfg.DirectionsURL = src.get("DIRECTIONS_URL")
	cfg.Language = withDefault(src.get("DIRECTIONS_LANGUAGE"), "ja")
	cfg.Region = withDefault(src.get("DIRECTIONS_REGION"), "jp")

	cfg.ResponseMode = strings.ToLower(withDefault(src.get("RESPONSE_MODE"), ModeRaw))
	if cfg.ResponseMode != ModeRaw && cfg.ResponseMode != ModeSummary {
		return nil, &ConfigError{Field: "RESPONSE_MODE", Message: "must be \"raw\" or \"summary\""}
	}

	var err error
	if cfg.UpstreamTimeout, err = parseDuration(src, "UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = parseDuration(src, "REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = parseDuration(src, "CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.UpstreamMaxAttempts, err = parseInt(src, "UPSTREAM_MAX_ATTEMPTS", 1); err != nil {
		return nil, err
	}
	if cfg.Port, err = parseInt(src, "PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseInt(src, "REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.CacheBackend = strings.ToLower(withDefault(src.get("CACHE_BACKEND"), CacheNone))
	cfg.RedisAddr = withDefault(src.get("REDIS_ADDR"), "localhost:6379")
	cfg.RedisPassword = src.get("REDIS_PASSWORD")
	cfg.DBDSN = src.get("DB_DSN")

	cfg.LogLevel = strings.ToLower(withDefault(src.get("LOG_LEVEL"), "info"))
	cfg.LogFormat = strings.ToLower(withDefault(src.get("LOG_FORMAT"), "text"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate re-checks required fields on an already-constructed Config.
func (c *Config) Validate() error {
	var errs []error
	if c.GoogleAPIKey == "" {
		errs = append(errs, &ConfigError{Field: "GOOGLE_MAPS_API_KEY", Message: "cannot be empty"})
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, &ConfigError{Field: "PORT", Message: "must be between 1 and 65535"})
	}
	if c.UpstreamMaxAttempts < 1 {
		errs = append(errs, &ConfigError{Field: "UPSTREAM_MAX_ATTEMPTS", Message: "must be at least 1"})
	}
	switch c.CacheBackend {
	case CacheNone, CacheMemory, CacheRedis:
	case CachePostgres:
		if c.DBDSN == "" {
			errs = append(errs, &ConfigError{Field: "DB_DSN", Message: "required when CACHE_BACKEND is postgres"})
		}
	default:
		errs = append(errs, &ConfigError{Field: "CACHE_BACKEND", Message: "must be one of none, memory, redis, postgres"})
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, &ConfigError{Field: "LOG_FORMAT", Message: "must be \"text\" or \"json\""})
	}
	return errors.Join(errs...)
}

// readFile parses the YAML config file into environment-style keys.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "CONFIG_FILE", Message: err.Error()}
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, &ConfigError{Field: "CONFIG_FILE", Message: "invalid YAML: " + err.Error()}
	}

	return map[string]string{
		"PORT":                  fc.Port,
		"GOOGLE_MAPS_API_KEY":   fc.GoogleAPIKey,
		"DIRECTIONS_URL":        fc.DirectionsURL,
		"DIRECTIONS_LANGUAGE":   fc.Language,
		"DIRECTIONS_REGION":     fc.Region,
		"RESPONSE_MODE":         fc.ResponseMode,
		"UPSTREAM_TIMEOUT":      fc.UpstreamTimeout,
		"UPSTREAM_MAX_ATTEMPTS": fc.UpstreamMaxAttempts,
		"REQUEST_TIMEOUT":       fc.RequestTimeout,
		"CACHE_BACKEND":         fc.Cache.Backend,
		"CACHE_TTL":             fc.Cache.TTL,
		"REDIS_ADDR":            fc.Redis.Addr,
		"REDIS_PASSWORD":        fc.Redis.Password,
		"REDIS_DB":              fc.Redis.DB,
		"DB_DSN":                fc.DBDSN,
		"LOG_LEVEL":             fc.Log.Level,
		"LOG_FORMAT":            fc.Log.Format,
	}, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// parseDuration reads a Go duration string such as "10s" or "5m".
// Unparseable or non-positive values are a ConfigError.
func parseDuration(src source, key string, defaultVal time.Duration) (time.Duration, error) {
	raw := src.get(key)
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, &ConfigError{Field: key, Message: "must be a positive duration like \"10s\""}
	}
	return d, nil
}

func parseInt(src source, key string, defaultVal int) (int, error) {
	raw := src.get(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be a valid integer"}
	}
	return v, nil
}
