package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"

	minCatalogTimeout     = 5 * time.Second
	maxCatalogTimeout     = 10 * time.Second
	defaultCatalogTimeout = 8 * time.Second
)

// Config represents the full application configuration surface.
type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Catalog     CatalogConfig
	Cache       CacheConfig
	Aggregation AggregationConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port     string
	LogLevel string
}

// PostgresConfig points at the relational store holding needs and proposals.
type PostgresConfig struct {
	URL      string
	MaxConns int32
}

// MongoDBConfig holds settings for the local catalog mirror.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// CatalogConfig contains options for the external catalog service.
type CatalogConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CacheConfig controls the catalog cache and its invalidation policy.
type CacheConfig struct {
	Backend       string
	RedisURL      string
	TTL           time.Duration
	FlushSchedule string
}

// AggregationConfig tunes the review aggregation.
type AggregationConfig struct {
	EnrichmentConcurrency int
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	timeout, err := getenvDuration("CATALOG_TIMEOUT", defaultCatalogTimeout)
	if err != nil {
		return nil, err
	}
	ttl, err := getenvDuration("CATALOG_CACHE_TTL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	maxConns, err := getenvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	concurrency, err := getenvInt("ENRICHMENT_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getenvWithDefault("APP_PORT", "8080"),
			LogLevel: strings.ToLower(getenvWithDefault("LOG_LEVEL", "info")),
		},
		Postgres: PostgresConfig{
			URL:      os.Getenv("DATABASE_URL"),
			MaxConns: int32(maxConns),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "catalog_mirror"),
		},
		Catalog: CatalogConfig{
			BaseURL: os.Getenv("CATALOG_BASE_URL"),
			APIKey:  os.Getenv("CATALOG_API_KEY"),
			Timeout: timeout,
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getenvWithDefault("CACHE_BACKEND", CacheBackendMemory)),
			RedisURL:      os.Getenv("REDIS_URL"),
			TTL:           ttl,
			FlushSchedule: getenvWithDefault("CATALOG_CACHE_FLUSH_CRON", "0 3 * * *"),
		},
		Aggregation: AggregationConfig{
			EnrichmentConcurrency: concurrency,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	switch {
	case c.Server.Port == "":
		return errors.New("APP_PORT must be provided")
	case c.Postgres.URL == "":
		return errors.New("DATABASE_URL must be provided")
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	case c.Catalog.BaseURL == "":
		return errors.New("CATALOG_BASE_URL must be provided")
	}

	// Out-of-window catalog timeouts snap to the nearest bound.
	c.Catalog.Timeout = min(max(c.Catalog.Timeout, minCatalogTimeout), maxCatalogTimeout)

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.RedisURL == "" {
			return errors.New("REDIS_URL must be provided when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q", CacheBackendMemory, CacheBackendRedis)
	}

	if c.Cache.TTL <= 0 {
		return errors.New("CATALOG_CACHE_TTL must be positive")
	}

	// "off" disables the scheduled flush; the TTL still applies.
	if strings.EqualFold(c.Cache.FlushSchedule, "off") {
		c.Cache.FlushSchedule = ""
	}
	if c.Cache.FlushSchedule != "" {
		if _, err := cron.ParseStandard(c.Cache.FlushSchedule); err != nil {
			return fmt.Errorf("CATALOG_CACHE_FLUSH_CRON is not a valid cron expression: %w", err)
		}
	}

	if c.Aggregation.EnrichmentConcurrency <= 0 {
		c.Aggregation.EnrichmentConcurrency = 1
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
