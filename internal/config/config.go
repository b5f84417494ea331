package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Supported sinks.
const (
	SinkREST     = "rest"
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
)

// Config holds all seeder settings, populated from environment variables.
// It is built once at startup and passed down; nothing reads the environment
// after Load returns.
type Config struct {
	Sink string

	// REST (PostgREST / Supabase) sink.
	SupabaseURL      string
	SupabaseKey      string
	SupabaseToken    string
	RequestTimeout   time.Duration
	RequestRateLimit float64 // requests per second, 0 = unlimited

	// Postgres sink.
	DatabaseURL string

	// Kafka sink.
	KafkaBrokers     []string
	KafkaTopicPrefix string

	HailTable  string
	StormTable string
	LeadTable  string

	BatchSize      int
	SeedState      string
	SeedCategory   string
	LeadStormLimit int
	LeadSeed       uint64

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	PushgatewayURL  string
	MetricsAddr     string // status server listen address, empty = disabled

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
// Sink credentials are checked separately by Validate so CLI flags can
// override the sink first.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	requestTimeout, err := parsePositiveDuration("REQUEST_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	rateLimit, err := parseRateLimit()
	if err != nil {
		return nil, err
	}

	leadStormLimit, err := parseNonNegativeInt("LEAD_STORM_LIMIT", 100)
	if err != nil {
		return nil, err
	}

	leadSeed, err := parseLeadSeed()
	if err != nil {
		return nil, err
	}

	supabaseKey := os.Getenv("SUPABASE_KEY")
	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		Sink:             strings.ToLower(sharedcfg.EnvOrDefault("SINK", SinkREST)),
		SupabaseURL:      strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseKey:      supabaseKey,
		SupabaseToken:    sharedcfg.EnvOrDefault("SUPABASE_TOKEN", supabaseKey),
		RequestTimeout:   requestTimeout,
		RequestRateLimit: rateLimit,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopicPrefix: sharedcfg.EnvOrDefault("KAFKA_TOPIC_PREFIX", "seed."),
		HailTable:        sharedcfg.EnvOrDefault("HAIL_TABLE", "storm_events"),
		StormTable:       sharedcfg.EnvOrDefault("STORM_TABLE", "storms"),
		LeadTable:        sharedcfg.EnvOrDefault("LEAD_TABLE", "leads"),
		BatchSize:        batchSize,
		SeedState:        sharedcfg.EnvOrDefault("SEED_STATE", "WISCONSIN"),
		SeedCategory:     sharedcfg.EnvOrDefault("SEED_CATEGORY", "Hail"),
		LeadStormLimit:   leadStormLimit,
		LeadSeed:         leadSeed,
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		PushgatewayURL:   os.Getenv("PUSHGATEWAY_URL"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// Validate checks that the selected sink has everything it needs. It must
// pass before any network activity.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.New("BATCH_SIZE must be positive")
	}
	if c.SeedCategory == "" {
		return errors.New("SEED_CATEGORY is required")
	}

	switch c.Sink {
	case SinkREST:
		if c.SupabaseURL == "" {
			return errors.New("SUPABASE_URL is required for the rest sink")
		}
		if c.SupabaseKey == "" {
			return errors.New("SUPABASE_KEY is required for the rest sink")
		}
	case SinkPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres sink")
		}
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required for the kafka sink")
		}
	default:
		return fmt.Errorf("invalid SINK %q: want rest, postgres, or kafka", c.Sink)
	}
	return nil
}

// LogValue implements slog.LogValuer. Credentials are reported only as
// present or absent.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("sink", c.Sink),
		slog.String("supabase_url", c.SupabaseURL),
		slog.String("supabase_key", redact(c.SupabaseKey)),
		slog.String("supabase_token", redact(c.SupabaseToken)),
		slog.String("database_url", redact(c.DatabaseURL)),
		slog.Any("kafka_brokers", c.KafkaBrokers),
		slog.Int("batch_size", c.BatchSize),
		slog.Duration("request_timeout", c.RequestTimeout),
		slog.Float64("request_rate_limit", c.RequestRateLimit),
		slog.String("seed_state", c.SeedState),
		slog.String("seed_category", c.SeedCategory),
		slog.String("metrics_addr", c.MetricsAddr),
		slog.Bool("mapbox_enabled", c.MapboxEnabled),
		slog.String("mapbox_token", redact(c.MapboxToken)),
	)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[redacted]"
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseRateLimit() (float64, error) {
	s := os.Getenv("REQUEST_RATE_LIMIT")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid REQUEST_RATE_LIMIT")
	}
	return v, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseLeadSeed() (uint64, error) {
	s := os.Getenv("LEAD_SEED")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.New("invalid LEAD_SEED")
	}
	return v, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
