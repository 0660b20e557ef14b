package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dataset overrides. Empty paths select the embedded files.
	RegionsPath    string
	CatalogPath    string
	MatchCacheSize int

	// Query event publishing (Kafka).
	EventsEnabled      bool
	KafkaBrokers       []string
	KafkaEventsTopic   string
	EventBufferSize    int
	BatchSize          int
	BatchFlushInterval time.Duration

	// Language preference store. Empty RedisAddr selects the in-memory store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PreferenceTTL time.Duration

	WorldBankTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	matchCacheSize, err := parseNonNegativeInt("MATCH_CACHE_SIZE", 512)
	if err != nil {
		return nil, err
	}

	eventBufferSize, err := parsePositiveInt("EVENT_BUFFER_SIZE", 1024)
	if err != nil {
		return nil, err
	}

	redisDB, err := parseNonNegativeInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	preferenceTTL, err := parseDuration("PREFERENCE_TTL", "720h")
	if err != nil {
		return nil, err
	}

	worldBankTimeout, err := parseDuration("WORLDBANK_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	eventsEnabled := brokers != ""
	if v := os.Getenv("EVENTS_ENABLED"); v != "" {
		eventsEnabled = v == "true"
	}
	if eventsEnabled && brokers == "" {
		brokers = "localhost:9092"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RegionsPath:    os.Getenv("DATASET_REGIONS_PATH"),
		CatalogPath:    os.Getenv("DATASET_CATALOG_PATH"),
		MatchCacheSize: matchCacheSize,

		EventsEnabled:      eventsEnabled,
		KafkaEventsTopic:   sharedcfg.EnvOrDefault("KAFKA_EVENTS_TOPIC", "region-query-events"),
		EventBufferSize:    eventBufferSize,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		PreferenceTTL: preferenceTTL,

		WorldBankTimeout: worldBankTimeout,
	}
	if brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.EventsEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when EVENTS_ENABLED is true")
	}
	if cfg.EventsEnabled && cfg.KafkaEventsTopic == "" {
		return nil, errors.New("KAFKA_EVENTS_TOPIC is required")
	}

	return cfg, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return n, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	n, err := parseNonNegativeInt(key, fallback)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}
