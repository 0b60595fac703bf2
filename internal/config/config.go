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
	"github.com/joho/godotenv"

	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

// Storage backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Storage.
	StoreBackend    string
	SQLitePath      string
	DatabaseURL     string
	GridCellDegrees float64

	// Snapshot policy and query defaults.
	SnapshotTTL     time.Duration
	CacheKeyWindow  time.Duration
	FreshnessMaxAge time.Duration
	QueryMaxAge     time.Duration
	QueryRadiusKm   float64
	RegionTimeRange time.Duration
	SweepInterval   time.Duration

	// Kafka ingestion and notifications.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaRiskTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
	RiskNotifyLevel    domain.RiskLevel

	// MQTT ingestion.
	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTTopic    string
	MQTTClientID string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

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

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreBackend: strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", BackendMemory)),
		SQLitePath:   sharedcfg.EnvOrDefault("SQLITE_PATH", "data/snapshots.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		KafkaEnabled:       parseBool("KAFKA_ENABLED", true),
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "weather-snapshots"),
		KafkaRiskTopic:     sharedcfg.EnvOrDefault("KAFKA_RISK_TOPIC", "weather-risk-notifications"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "weather-snapshot-cache"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MQTTEnabled:  parseBool("MQTT_ENABLED", false),
		MQTTBroker:   sharedcfg.EnvOrDefault("MQTT_BROKER", "localhost"),
		MQTTTopic:    sharedcfg.EnvOrDefault("MQTT_TOPIC", "weather/snapshots"),
		MQTTClientID: sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "weather-snapshot-cache"),

		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		MapboxCacheSize: parsePositiveInt("MAPBOX_CACHE_SIZE", 1000),
	}
	cfg.MapboxEnabled = parseBool("MAPBOX_ENABLED", cfg.MapboxToken != "")

	for _, d := range []struct {
		name      string
		def       string
		dst       *time.Duration
		allowZero bool
	}{
		{"SNAPSHOT_TTL", "6h", &cfg.SnapshotTTL, false},
		{"CACHE_KEY_WINDOW", "15m", &cfg.CacheKeyWindow, true},
		{"FRESHNESS_MAX_AGE", "2h", &cfg.FreshnessMaxAge, false},
		{"QUERY_MAX_AGE", "3h", &cfg.QueryMaxAge, false},
		{"REGION_TIME_RANGE", "24h", &cfg.RegionTimeRange, false},
		{"SWEEP_INTERVAL", "5m", &cfg.SweepInterval, false},
		{"MAPBOX_TIMEOUT", "5s", &cfg.MapboxTimeout, false},
	} {
		if *d.dst, err = parseDuration(d.name, d.def, d.allowZero); err != nil {
			return nil, err
		}
	}

	if cfg.QueryRadiusKm, err = parsePositiveFloat("QUERY_RADIUS_KM", 50); err != nil {
		return nil, err
	}
	if cfg.GridCellDegrees, err = parsePositiveFloat("GRID_CELL_DEGREES", 1.0); err != nil {
		return nil, err
	}
	if cfg.MQTTPort, err = strconv.Atoi(sharedcfg.EnvOrDefault("MQTT_PORT", "1883")); err != nil || cfg.MQTTPort <= 0 {
		return nil, errors.New("invalid MQTT_PORT")
	}

	level, ok := domain.ParseRiskLevel(sharedcfg.EnvOrDefault("RISK_NOTIFY_LEVEL", string(domain.RiskHigh)))
	if !ok {
		return nil, errors.New("invalid RISK_NOTIFY_LEVEL")
	}
	cfg.RiskNotifyLevel = level

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required")
		}
	}
	if c.MQTTEnabled && c.MQTTTopic == "" {
		return errors.New("MQTT_TOPIC is required when MQTT_ENABLED is true")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

// Policy returns the snapshot expiry and cache-key policy.
func (c *Config) Policy() domain.Policy {
	return domain.Policy{TTL: c.SnapshotTTL, CacheKeyWindow: c.CacheKeyWindow}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(name, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parseBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v == "true"
}

func parsePositiveInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func parsePositiveFloat(name string, def float64) (float64, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return f, nil
}
