// Package config loads runtime configuration for the harvester binaries.
//
// Purpose:
//
//	Two layers, matching the binary kind. The control API is a service and
//	reads plain environment variables through envconfig. The harvester CLI
//	layers viper underneath its flags: defaults, then an optional
//	~/.harvester/config.yaml (or ./config.yaml), then HARVESTER_* variables,
//	with flags overriding everything.
//
// Dependencies:
//   - github.com/kelseyhightower/envconfig: service configuration
//   - github.com/spf13/viper: CLI configuration file and env layering
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the engine settings shared by the harvester binaries. Per-run
// knobs (thread count, allow-lists, sink toggles) are not configuration; they
// travel with each run request.
type Config struct {
	// Service identity
	ServiceName string `envconfig:"SERVICE_NAME" default:"harvester-api"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP control API
	HTTPPort int `envconfig:"HTTP_PORT" default:"8087"`

	// Database. Optional for the CLI, which degrades to CSV-only harvests
	// without it; the control API refuses to start without one.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Scraper
	PricingURL    string        `envconfig:"PRICING_URL"` // empty uses the scraper's built-in page URL
	Headless      bool          `envconfig:"HEADLESS" default:"true"`
	DriverTimeout time.Duration `envconfig:"DRIVER_TIMEOUT" default:"30s"`
	SettleDelay   time.Duration `envconfig:"SETTLE_DELAY" default:"500ms"`

	// CSV tree root
	CSVDataDir string `envconfig:"CSV_DATA_DIR" default:"data"`

	// Redis catalog cache. Empty disables it.
	RedisURL        string        `envconfig:"REDIS_URL"`
	CatalogCacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"24h"`

	// Kafka run events. Empty brokers disable them.
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `envconfig:"KAFKA_TOPIC" default:"harvester.runs.v1"`
	KafkaClientID string   `envconfig:"KAFKA_CLIENT_ID" default:"harvester"`

	// Object storage archive delivery. Empty bucket disables it.
	S3Endpoint     string        `envconfig:"S3_ENDPOINT"`
	S3AccessKey    string        `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string        `envconfig:"S3_SECRET_KEY"`
	S3Bucket       string        `envconfig:"S3_BUCKET"`
	S3Region       string        `envconfig:"S3_REGION" default:"us-east-1"`
	S3SignedURLTTL time.Duration `envconfig:"S3_SIGNED_URL_TTL" default:"24h"`

	// Observability
	TelemetryEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TelemetryProtocol string `envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc"`
	TelemetryInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`

	// HarvesterBinary is the executable the control API spawns for a run.
	HarvesterBinary string `envconfig:"HARVESTER_BINARY" default:"harvester"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad loads configuration and panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.DriverTimeout <= 0 {
		return fmt.Errorf("DRIVER_TIMEOUT must be positive, got %s", c.DriverTimeout)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("SETTLE_DELAY must not be negative, got %s", c.SettleDelay)
	}
	if c.CatalogCacheTTL <= 0 {
		return fmt.Errorf("CATALOG_CACHE_TTL must be positive, got %s", c.CatalogCacheTTL)
	}
	if c.S3Bucket != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return fmt.Errorf("S3_BUCKET is set but S3_ACCESS_KEY/S3_SECRET_KEY are missing")
	}
	return nil
}

// CatalogCacheEnabled reports whether a redis catalog cache is configured.
func (c *Config) CatalogCacheEnabled() bool { return c.RedisURL != "" }

// RunEventsEnabled reports whether kafka run events are configured.
func (c *Config) RunEventsEnabled() bool { return len(c.KafkaBrokers) > 0 }

// ArchiveDeliveryEnabled reports whether S3 archive delivery is configured.
func (c *Config) ArchiveDeliveryEnabled() bool { return c.S3Bucket != "" }
