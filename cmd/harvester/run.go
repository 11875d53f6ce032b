package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Zeebrow/ec2-price-tracker/internal/browser"
	"github.com/Zeebrow/ec2-price-tracker/internal/config"
	"github.com/Zeebrow/ec2-price-tracker/internal/events"
	"github.com/Zeebrow/ec2-price-tracker/internal/exports"
	"github.com/Zeebrow/ec2-price-tracker/internal/harvest"
	"github.com/Zeebrow/ec2-price-tracker/internal/logging"
	"github.com/Zeebrow/ec2-price-tracker/internal/observability"
	"github.com/Zeebrow/ec2-price-tracker/internal/pricing"
	"github.com/Zeebrow/ec2-price-tracker/internal/status"
	"github.com/Zeebrow/ec2-price-tracker/internal/storage/postgres"
)

func run(ctx context.Context, flags *rootFlags) error {
	cfg, err := config.LoadCLI(flags.configFile)
	if err != nil {
		return err
	}
	if flags.csvDataDir != "" {
		cfg.CSVDataDir = flags.csvDataDir
	}
	if flags.logFile != "" {
		cfg.LogFile = flags.logFile
	}
	if flags.noHeadless {
		cfg.Headless = false
	}
	if flags.verbose {
		cfg.LogLevel = "debug"
	}

	logger, err := logging.New(logging.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		OutputPath:  cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer logger.Sync()

	logger.Info("harvester starting",
		zap.String("version", version),
		zap.Int("pid", os.Getpid()))

	var (
		store       *postgres.Store
		statusStore status.Store
	)
	if cfg.DatabaseURL != "" {
		store, err = postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer store.Close()
		statusStore = postgres.NewStatusStore(store)
	} else {
		logger.Warn("no database configured: database sink disabled, engine status kept in memory")
		statusStore = status.NewMemory()
	}

	if flags.checkSize {
		return printSizes(ctx, cfg, store)
	}

	browserCfg := browser.Config{
		URL:       cfg.PricingURL,
		Headless:  cfg.Headless,
		OpTimeout: cfg.DriverTimeout,
		Settle:    cfg.SettleDelay,
		Logger:    logger.Logger.Named("browser"),
	}
	newDriver := func(ctx context.Context) (harvest.PageDriver, error) {
		d, err := browser.New(ctx, browserCfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	if flags.getRegions || flags.getOSes {
		return printCatalogs(ctx, flags, statusStore, newDriver, logger.Logger)
	}

	if cfg.TelemetryEndpoint != "" {
		provider, err := observability.Init(ctx, observability.Config{
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
			Endpoint:    cfg.TelemetryEndpoint,
			Protocol:    cfg.TelemetryProtocol,
			Insecure:    cfg.TelemetryInsecure,
		})
		if err != nil {
			logger.Warn("telemetry init failed, continuing without traces", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					logger.Warn("telemetry shutdown failed", zap.Error(err))
				}
			}()
		}
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger.Logger)
	}

	opts := harvest.Options{
		ThreadCount:      flags.threads,
		Overdrive:        flags.overdrive,
		Compress:         flags.compress,
		Regions:          flags.regions,
		OperatingSystems: flags.operatingSystems,
		StoreCSV:         flags.storeCSV,
		StoreDB:          flags.storeDB,
		CSVDataDir:       flags.csvDataDir,
	}
	if opts.StoreDB && store == nil {
		logger.Warn("database sink requested but no DATABASE_URL is configured, storing CSV only")
		opts.StoreDB = false
	}

	var db harvest.Database
	if opts.StoreDB {
		db = store
	}
	var csvSink *exports.Sink
	if opts.StoreCSV {
		csvSink = exports.NewSink(cfg.CSVDataDir)
	}

	var catalogs harvest.CatalogWriter
	if cfg.CatalogCacheEnabled() {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()
		catalogs = pricing.NewCatalogCache(client, cfg.CatalogCacheTTL, logger.Logger)
	}

	var publisher harvest.RunPublisher
	if cfg.RunEventsEnabled() {
		p := events.NewPublisher(events.PublisherConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			ClientID: cfg.KafkaClientID,
		}, logger.Logger)
		defer p.Close()
		publisher = p
	}

	var delivery harvest.ArchiveDeliverer
	if cfg.ArchiveDeliveryEnabled() {
		d, err := exports.NewArchiveDelivery(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey,
			cfg.S3Bucket, cfg.S3Region, cfg.S3SignedURLTTL, logger.Logger)
		if err != nil {
			return fmt.Errorf("initialize archive delivery: %w", err)
		}
		delivery = d
	}

	controller, err := harvest.NewController(harvest.ControllerConfig{
		Options:     opts,
		Status:      statusStore,
		NewDriver:   newDriver,
		DB:          db,
		CSV:         csvSink,
		Catalogs:    catalogs,
		Events:      publisher,
		Delivery:    delivery,
		Logger:      logger.Logger,
		CommandLine: strings.Join(os.Args, " "),
	})
	if err != nil {
		return err
	}

	return controller.Run(ctx)
}

// printCatalogs opens one browser session and lists what the pricing page
// currently offers. Mirrors the shape harvest logs use: operating systems
// quoted, regions bare.
func printCatalogs(ctx context.Context, flags *rootFlags, statusStore status.Store, newDriver harvest.DriverFactory, logger *zap.Logger) error {
	controller, err := harvest.NewController(harvest.ControllerConfig{
		Options:   harvest.DefaultOptions(),
		Status:    statusStore,
		NewDriver: newDriver,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	catalogs, err := controller.Catalogs(ctx)
	if err != nil {
		return err
	}
	if flags.getOSes {
		fmt.Println("Available Operating Systems:")
		for _, operatingSystem := range catalogs.OperatingSystems {
			fmt.Printf("\t'%s'\n", operatingSystem)
		}
	}
	if flags.getRegions {
		fmt.Println("Available Regions:")
		for _, region := range catalogs.Regions {
			fmt.Printf("\t%s\n", region)
		}
	}
	return nil
}

// printSizes reports how much the pricing table and the CSV tree hold.
// Failures are printed and skipped so one broken sink does not hide the
// other's size.
func printSizes(ctx context.Context, cfg *config.CLI, store *postgres.Store) error {
	if store != nil {
		size, err := store.PricingTableSize(ctx)
		if err != nil {
			fmt.Println(err)
		} else {
			fmt.Println("database:")
			fmt.Printf("%.2f MB\n", float64(size)/1024/1024)
		}
	} else {
		fmt.Println("database: not configured")
	}
	fmt.Println()
	size, err := exports.TreeSize(cfg.CSVDataDir)
	if err != nil {
		fmt.Println(err)
		return nil
	}
	fmt.Println("csv data:")
	fmt.Printf("%.2f MB\n", float64(size)/1024/1024)
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}
