package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/observability"
	"whatisyourcolor/internal/platform/cache"
	"whatisyourcolor/internal/platform/server"
	"whatisyourcolor/internal/platform/storage"
	"whatisyourcolor/internal/services"
	"whatisyourcolor/internal/web/handlers"
	"whatisyourcolor/internal/web/live"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obsConfig := observability.LoadConfig()
	obsConfig.Environment = cfg.Environment
	if cfg.Logging != nil {
		obsConfig.LogLevel = cfg.Logging.Level
		obsConfig.LogFormat = cfg.Logging.Format
	}

	logger := observability.NewLoggerWithWriter(obsConfig, logOutput(cfg))

	provider, err := observability.NewProvider(ctx, obsConfig, logger)
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	logger.Info(ctx).Bool("telemetry", provider.Enabled()).Msg("OpenTelemetry initialized")

	var cacheClient *cache.RedisClient
	if cfg.Cache.Enabled {
		cacheClient, err = cache.NewRedisClient(cfg.Cache)
		if err != nil {
			// The sheet stays the source of truth, run without the mirror
			logger.Warn(ctx).Err(err).Msg("Failed to connect to cache, continuing without it")
			cacheClient = nil
		}
	}

	var storageClient *storage.MinIOClient
	if cfg.Storage.Enabled {
		storageClient, err = storage.NewMinIOClient(ctx, cfg.Storage)
		if err != nil {
			logger.Warn(ctx).Err(err).Msg("Failed to connect to storage, sharing falls back to download")
			storageClient = nil
		}
	}

	// Initialize dependency injection container
	container, err := services.NewContainer(cfg, logger, cacheClient, storageClient)
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("Failed to initialize services container")
	}

	hub := live.NewHub(container.LayoutEngine(), container.SnapshotService(), logger, cfg.CORS.AllowedOrigins)
	unsubscribe := container.SnapshotService().Subscribe(hub.OnSnapshot)

	handler, err := handlers.New(container, hub, logger)
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("Failed to initialize handlers")
	}

	container.SnapshotService().Start(ctx)

	srv := server.New(cfg, handler.Routes())

	serverErr := make(chan error, 1)
	go func() {
		logger.Info(ctx).Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info(context.Background()).Msg("Server shutting down...")
	case err := <-serverErr:
		logger.Error(context.Background()).Err(err).Msg("Server failed")
	}

	shutdownTimeout := 30 * time.Second
	if cfg.Server != nil && cfg.Server.ShutdownTimeout > 0 {
		shutdownTimeout = cfg.Server.ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx).Err(err).Msg("Server forced to shutdown")
	}

	unsubscribe()
	hub.Close()

	if err := container.Close(shutdownCtx); err != nil {
		logger.Error(shutdownCtx).Err(err).Msg("Failed to close services")
	}

	if err := provider.ForceFlush(shutdownCtx); err != nil {
		logger.Error(shutdownCtx).Err(err).Msg("Failed to flush telemetry")
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx).Err(err).Msg("Failed to shutdown OpenTelemetry")
	}

	logger.Info(shutdownCtx).Msg("Server exited")
}

func logOutput(cfg *config.Config) io.Writer {
	if cfg.Logging != nil && cfg.Logging.Output == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}
