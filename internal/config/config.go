package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultEnv             = "development"
	defaultTradesFile      = "trades.csv"
	defaultHTTPHost        = "0.0.0.0"
	defaultRedisDB         = 0
	defaultCacheTTLSeconds = 30
	defaultTradeTimeout    = 60 * time.Second
	defaultShutdownGrace   = 10 * time.Second
	defaultExchange        = "trading.outcomes"
	defaultBatchSize       = 100
	defaultBatchTimeout    = 500 * time.Millisecond
)

// Config keeps the runtime configuration for the engine.
type Config struct {
	Env        string
	TradesFile string
	Postgres   PostgresConfig
	Engine     EngineConfig
	HTTP       HTTPConfig
	Redis      RedisConfig
	Cache      CacheConfig
	RabbitMQ   RabbitMQConfig
}

// PostgresConfig stores database connection parameters.
type PostgresConfig struct {
	DSN string
}

// EngineConfig holds worker pool and timeout settings.
type EngineConfig struct {
	Workers       int
	TradeTimeout  time.Duration
	ShutdownGrace time.Duration
}

// HTTPConfig holds the optional reporting API settings. A zero port disables
// the server.
type HTTPConfig struct {
	Host string
	Port int
}

// Enabled reports whether the reporting API should be served.
func (h HTTPConfig) Enabled() bool {
	return h.Port > 0
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// RedisConfig stores cache connection parameters. An empty Addr disables the
// response cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig stores cache behavior.
type CacheConfig struct {
	TTLSeconds int
}

// RabbitMQConfig stores outcome publishing parameters. An empty URL disables
// publishing.
type RabbitMQConfig struct {
	URL              string
	OutcomesExchange string
	BatchSize        int
	BatchTimeout     time.Duration
}

// Load builds Config from environment variables.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}

	workers, err := getInt("WORKER_POOL_SIZE", 0)
	if err != nil {
		return nil, fmt.Errorf("parse WORKER_POOL_SIZE: %w", err)
	}
	tradeTimeout, err := getDuration("TRADE_TIMEOUT", defaultTradeTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse TRADE_TIMEOUT: %w", err)
	}
	shutdownGrace, err := getDuration("SHUTDOWN_GRACE", defaultShutdownGrace)
	if err != nil {
		return nil, fmt.Errorf("parse SHUTDOWN_GRACE: %w", err)
	}

	httpPort, err := getInt("HTTP_PORT", 0)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}
	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}
	cacheTTL, err := getInt("CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("parse CACHE_TTL_SECONDS: %w", err)
	}
	batchSize, err := getInt("BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return nil, fmt.Errorf("parse BATCH_SIZE: %w", err)
	}
	batchTimeout, err := getDuration("BATCH_TIMEOUT", defaultBatchTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse BATCH_TIMEOUT: %w", err)
	}

	return &Config{
		Env:        getString("APP_ENV", defaultEnv),
		TradesFile: getString("TRADES_FILE", defaultTradesFile),
		Postgres: PostgresConfig{
			DSN: dsn,
		},
		Engine: EngineConfig{
			Workers:       workers,
			TradeTimeout:  tradeTimeout,
			ShutdownGrace: shutdownGrace,
		},
		HTTP: HTTPConfig{
			Host: getString("HTTP_HOST", defaultHTTPHost),
			Port: httpPort,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			TTLSeconds: cacheTTL,
		},
		RabbitMQ: RabbitMQConfig{
			URL:              os.Getenv("RABBITMQ_URL"),
			OutcomesExchange: getString("OUTCOMES_EXCHANGE", defaultExchange),
			BatchSize:        batchSize,
			BatchTimeout:     batchTimeout,
		},
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to duration: %w", key, value, err)
	}
	return parsed, nil
}
