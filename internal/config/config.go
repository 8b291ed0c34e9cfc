package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StorePostgres StoreKind = "postgres"
	StoreSQLite   StoreKind = "sqlite"
	StoreRedis    StoreKind = "redis"
)

type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	Store      StoreKind
	ConnString string
	SQLitePath string
	RedisURL   string

	TimeZone string
	LogLevel string

	IngestConsumers int
	IngestBlock     time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", ":9999")
	cfg.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", 5*time.Second)

	cfg.Store = StoreKind(strings.ToLower(getEnvOrDefault("PAYMENTS_STORE", string(StoreMemory))))
	cfg.ConnString = getEnvOrDefault("CONN_STRING", "")
	cfg.SQLitePath = getEnvOrDefault("SQLITE_PATH", "payments.db")
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", "")

	cfg.TimeZone = getEnvOrDefault("PAYMENTS_TIMEZONE", "UTC")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.IngestConsumers = getEnvAsInt("INGEST_CONSUMERS", 4)
	cfg.IngestBlock = getEnvAsDuration("INGEST_BLOCK", 2*time.Second)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.ConnString == "" {
			return fmt.Errorf("CONN_STRING is required for the %s store", c.Store)
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s store", c.Store)
		}
	default:
		return fmt.Errorf("unknown PAYMENTS_STORE %q", c.Store)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.IngestConsumers < 1 {
		return fmt.Errorf("INGEST_CONSUMERS must be positive, got %d", c.IngestConsumers)
	}
	return nil
}

// QueueWrites reports whether the server should hand new payments to the
// ingest worker. The memory store is private to one process, so writes
// queued for a worker would never become visible to the server.
func (c *Config) QueueWrites() bool {
	return c.RedisURL != "" && c.Store != StoreMemory
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid PAYMENTS_TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
