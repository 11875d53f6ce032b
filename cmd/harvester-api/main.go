// Command harvester-api is the HTTP control plane for the harvest engine.
//
// Purpose:
//   The API reports the engine lifecycle, spawns harvest runs as detached
//   harvester processes, and serves the cached catalogs. It shares the
//   lifecycle row and the pricing tables with the CLI through postgres.
//
// Dependencies:
//   - internal/config: environment configuration
//   - internal/api: chi router, handlers, process launcher
//   - internal/storage/postgres: store, status row
//   - internal/pricing: redis catalog cache
//
// Key Responsibilities:
//   - Refuse to start without a database; the control plane is stateless
//     apart from postgres
//   - Reset a stale "exited" lifecycle to idle at startup
//   - Write "exited" during graceful shutdown (SIGINT/SIGTERM)
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Zeebrow/ec2-price-tracker/internal/api"
	"github.com/Zeebrow/ec2-price-tracker/internal/config"
	"github.com/Zeebrow/ec2-price-tracker/internal/logging"
	"github.com/Zeebrow/ec2-price-tracker/internal/observability"
	"github.com/Zeebrow/ec2-price-tracker/internal/pricing"
	"github.com/Zeebrow/ec2-price-tracker/internal/status"
	"github.com/Zeebrow/ec2-price-tracker/internal/storage/postgres"
)

// Populated via -ldflags at build time.
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	ctx := context.Background()

	cfg := config.MustLoad()

	logger := logging.MustNew(logging.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
	})
	defer logger.Sync()

	logger.Info("starting harvester control api",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("git_commit", gitCommit),
		zap.Int("port", cfg.HTTPPort),
	)

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required; the control api has no database-less mode")
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
			logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown telemetry", zap.Error(err))
				}
			}()
		}
	}

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	statusStore := postgres.NewStatusStore(store)

	// A previous API shutdown leaves "exited" behind; nothing is running, so
	// bring the lifecycle back to idle. Any other state belongs to a live or
	// crashed run and is left alone.
	st, err := statusStore.Read(ctx)
	if err != nil {
		logger.Fatal("failed to read engine status", zap.Error(err))
	}
	if st == status.StateExited {
		if err := statusStore.Write(ctx, status.StateIdle); err != nil {
			logger.Fatal("failed to reset engine status", zap.Error(err))
		}
		logger.Info("engine status reset to idle")
	} else {
		logger.Info("engine status", zap.String("state", string(st)))
	}

	var catalogs api.CatalogReader
	if cfg.CatalogCacheEnabled() {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to parse REDIS_URL", zap.Error(err))
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, catalog endpoint degraded", zap.Error(err))
		}
		cancel()

		catalogs = pricing.NewCatalogCache(redisClient, cfg.CatalogCacheTTL, logger.Logger)
	} else {
		logger.Debug("catalog cache not configured")
	}

	launcher := api.NewProcessLauncher(cfg.HarvesterBinary, logger.Logger)

	server := api.NewServer(api.Config{
		Port:     cfg.HTTPPort,
		Logger:   logger.Logger,
		Status:   statusStore,
		Launcher: launcher,
		Catalogs: catalogs,
		Runs:     store,
		Store:    store,
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("server error", zap.Error(err))

	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}

		// Spawned runs keep their own lifecycle writes; "exited" only marks
		// that no control plane is watching.
		if err := statusStore.Write(shutdownCtx, status.StateExited); err != nil {
			logger.Error("failed to record exited status", zap.Error(err))
		}

		logger.Info("shutdown complete")
	}
}
