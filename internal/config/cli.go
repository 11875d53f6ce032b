package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// CLI holds the harvester CLI's engine settings plus the knobs only the CLI
// has: a log file target and an optional metrics listener for long runs.
type CLI struct {
	Config

	// LogFile routes log output to a file instead of stdout.
	LogFile string

	// MetricsAddr, when non-empty, serves /metrics on a side listener for
	// the lifetime of the run (e.g. ":9187").
	MetricsAddr string
}

// ApplyDefaults sets default configuration values in the provided Viper
// instance. They mirror the service-side envconfig defaults.
func ApplyDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "harvester")
	v.SetDefault("service.environment", "development")

	v.SetDefault("database.url", "")

	v.SetDefault("scraper.pricing-url", "")
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.driver-timeout", "30s")
	v.SetDefault("scraper.settle-delay", "500ms")

	v.SetDefault("csv.data-dir", "data")

	v.SetDefault("redis.url", "")
	v.SetDefault("catalog-cache.ttl", "24h")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "harvester.runs.v1")
	v.SetDefault("kafka.client-id", "harvester")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access-key", "")
	v.SetDefault("s3.secret-key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.signed-url-ttl", "24h")

	v.SetDefault("telemetry.endpoint", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.addr", "")
}

// LoadCLI loads the CLI configuration with the usual precedence: defaults,
// then the config file, then HARVESTER_* environment variables. An explicit
// configFile is required to exist; the conventional locations
// (~/.harvester/config.yaml, ./config.yaml) are optional.
func LoadCLI(configFile string) (*CLI, error) {
	v := viper.New()
	ApplyDefaults(v)

	v.SetEnvPrefix("HARVESTER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".harvester"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &CLI{
		Config: Config{
			ServiceName:       v.GetString("service.name"),
			Environment:       v.GetString("service.environment"),
			HTTPPort:          8087,
			DatabaseURL:       v.GetString("database.url"),
			PricingURL:        v.GetString("scraper.pricing-url"),
			Headless:          v.GetBool("scraper.headless"),
			DriverTimeout:     v.GetDuration("scraper.driver-timeout"),
			SettleDelay:       v.GetDuration("scraper.settle-delay"),
			CSVDataDir:        v.GetString("csv.data-dir"),
			RedisURL:          v.GetString("redis.url"),
			CatalogCacheTTL:   v.GetDuration("catalog-cache.ttl"),
			KafkaBrokers:      brokerList(v.GetStringSlice("kafka.brokers")),
			KafkaTopic:        v.GetString("kafka.topic"),
			KafkaClientID:     v.GetString("kafka.client-id"),
			S3Endpoint:        v.GetString("s3.endpoint"),
			S3AccessKey:       v.GetString("s3.access-key"),
			S3SecretKey:       v.GetString("s3.secret-key"),
			S3Bucket:          v.GetString("s3.bucket"),
			S3Region:          v.GetString("s3.region"),
			S3SignedURLTTL:    v.GetDuration("s3.signed-url-ttl"),
			TelemetryEndpoint: v.GetString("telemetry.endpoint"),
			TelemetryProtocol: "grpc",
			TelemetryInsecure: true,
			LogLevel:          v.GetString("log.level"),
		},
		LogFile:     v.GetString("log.file"),
		MetricsAddr: v.GetString("metrics.addr"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// brokerList normalizes kafka broker lists. Environment variables deliver a
// single comma-joined string; config files deliver a real list.
func brokerList(raw []string) []string {
	if len(raw) == 1 && strings.Contains(raw[0], ",") {
		raw = strings.Split(raw[0], ",")
	}
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
