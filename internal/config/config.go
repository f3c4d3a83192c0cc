package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DataDir     string `validate:"required"`
	SnapshotDir string `validate:"required"`
	Database    DatabaseConfig
	Redis       RedisConfig
	Ingest      IngestConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Environment string
}

// DatabaseConfig is optional: with an empty URL the registry runs entirely
// on file-backed stores.
type DatabaseConfig struct {
	URL            string
	MaxConnections int `validate:"gte=1"`
}

// RedisConfig is optional: with an empty address the resolution cache is
// disabled and every resolve call hits the candidate set directly.
type RedisConfig struct {
	Addr     string
	CacheTTL time.Duration
}

type IngestConfig struct {
	Workers      int           `validate:"gte=1,lte=64"`
	MaxRetries   int           `validate:"gte=0,lte=10"`
	RetryBackoff time.Duration `validate:"gt=0"`
	FetchTimeout time.Duration `validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// Load reads configuration from the environment, with a best-effort .env
// file for development, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load() // absent .env is fine

	cfg := Config{
		DataDir:     getEnv("REGISTRY_DATA_DIR", "./data"),
		SnapshotDir: getEnv("REGISTRY_SNAPSHOT_DIR", "./data/snapshots"),
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			CacheTTL: getEnvDuration("RESOLVE_CACHE_TTL", 24*time.Hour),
		},
		Ingest: IngestConfig{
			Workers:      getEnvInt("INGEST_WORKERS", 4),
			MaxRetries:   getEnvInt("INGEST_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("INGEST_RETRY_BACKOFF", 2*time.Second),
			FetchTimeout: getEnvDuration("INGEST_FETCH_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "boundary-registry"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
