package services

import (
	"context"
	"fmt"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/domain/layout"
	"whatisyourcolor/internal/observability"
	"whatisyourcolor/internal/platform/cache"
	"whatisyourcolor/internal/platform/form"
	"whatisyourcolor/internal/platform/ratelimit"
	"whatisyourcolor/internal/platform/sheet"
	"whatisyourcolor/internal/platform/storage"
	"whatisyourcolor/internal/services/implementations"
)

// Container holds all the application dependencies
type Container struct {
	config *config.Config
	logger *observability.Logger

	// Infrastructure clients (optional, can be nil)
	cacheClient   *cache.RedisClient
	storageClient *storage.MinIOClient

	// Adapters
	source         *sheet.Client
	sink           *form.Client
	cacheService   *implementations.CacheService
	storageService *implementations.StorageServiceImpl
	renderer       *storage.CardRenderer
	namer          color.Namer

	sourceOverride color.SnapshotSource
	sinkOverride   color.SubmissionSink

	// Services
	snapshotService   *implementations.SnapshotService
	submissionService *implementations.SubmissionService
	exportService     *implementations.ExportService
	layoutEngine      layout.Engine
	limiter           *ratelimit.Limiter
}

// Option overrides a dependency, mostly for tests
type Option func(*Container)

// WithSnapshotSource replaces the sheet client
func WithSnapshotSource(source color.SnapshotSource) Option {
	return func(c *Container) {
		c.sourceOverride = source
	}
}

// WithSubmissionSink replaces the form client
func WithSubmissionSink(sink color.SubmissionSink) Option {
	return func(c *Container) {
		c.sinkOverride = sink
	}
}

// NewContainer creates a new dependency injection container. The cache and
// storage clients are optional.
func NewContainer(
	cfg *config.Config,
	logger *observability.Logger,
	cacheClient *cache.RedisClient,
	storageClient *storage.MinIOClient,
	opts ...Option,
) (*Container, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	container := &Container{
		config:        cfg,
		logger:        logger,
		cacheClient:   cacheClient,
		storageClient: storageClient,
	}
	for _, opt := range opts {
		opt(container)
	}

	if err := container.initializeServices(); err != nil {
		return nil, err
	}

	return container, nil
}

// initializeServices initializes all services in the correct dependency order
func (c *Container) initializeServices() error {
	cfg := c.config

	duplicatePolicy, err := color.ParseDuplicatePolicy(cfg.Submission.DuplicatePolicy)
	if err != nil {
		return fmt.Errorf("invalid duplicate policy %q: %w", cfg.Submission.DuplicatePolicy, err)
	}

	detector, err := implementations.NewDeviceDetector(cfg.Export.Capability)
	if err != nil {
		return err
	}

	c.layoutEngine, err = layout.New(cfg.Layout.Policy, layout.Options{
		CellSize: cfg.Layout.CellSize,
		MaxDelay: cfg.Layout.MaxDelay,
	})
	if err != nil {
		return err
	}

	// Initialize adapters first
	c.source = sheet.NewClient(cfg.Sheet)
	c.sink = form.NewClient(cfg.Form, c.logger)
	c.cacheService = implementations.NewCacheService(c.cacheClient, cfg.Cache.DefaultTTL)
	c.storageService = implementations.NewStorageService(c.storageClient)
	c.renderer = storage.NewCardRenderer(cfg.Export.CardWidth, cfg.Export.CardHeight, cfg.Export.Scale)
	c.namer = color.NewNearestNamer()

	var source color.SnapshotSource = c.source
	if c.sourceOverride != nil {
		source = c.sourceOverride
	}
	var sink color.SubmissionSink = c.sink
	if c.sinkOverride != nil {
		sink = c.sinkOverride
	}

	// Initialize domain services
	snapshotOpts := []implementations.SnapshotOption{
		implementations.WithRefreshInterval(cfg.Sheet.RefreshInterval),
		implementations.WithRefreshTimeout(cfg.Sheet.FetchTimeout),
	}
	if c.cacheService.Enabled() {
		snapshotOpts = append(snapshotOpts, implementations.WithSnapshotCache(c.cacheService))
	}
	c.snapshotService = implementations.NewSnapshotService(source, c.logger, snapshotOpts...)

	c.submissionService = implementations.NewSubmissionService(
		c.snapshotService,
		sink,
		c.namer,
		duplicatePolicy,
		c.logger,
	)

	var shareStorage color.ShareStorage
	if c.storageService.Enabled() {
		shareStorage = c.storageService
	}
	c.exportService = implementations.NewExportService(
		detector,
		implementations.NewDownloadExporter(c.renderer),
		implementations.NewShareExporter(c.renderer, shareStorage, cfg.Export.ShareURLExpiry),
		c.namer,
		c.logger,
	)

	c.limiter = ratelimit.New(cfg.Submission.RateLimit, cfg.Submission.RateBurst, ratelimit.DefaultIdleTTL)

	c.logger.Info(context.Background()).
		Str("layout_policy", cfg.Layout.Policy).
		Str("duplicate_policy", string(duplicatePolicy)).
		Bool("cache", c.cacheService.Enabled()).
		Bool("storage", c.storageService.Enabled()).
		Msg("Dependency injection container initialized successfully")
	return nil
}

// Getters for accessing services

func (c *Container) Config() *config.Config {
	return c.config
}

func (c *Container) Logger() *observability.Logger {
	return c.logger
}

func (c *Container) CacheService() *implementations.CacheService {
	return c.cacheService
}

func (c *Container) StorageService() *implementations.StorageServiceImpl {
	return c.storageService
}

func (c *Container) Namer() color.Namer {
	return c.namer
}

func (c *Container) SnapshotService() *implementations.SnapshotService {
	return c.snapshotService
}

func (c *Container) SubmissionService() *implementations.SubmissionService {
	return c.submissionService
}

func (c *Container) ExportService() *implementations.ExportService {
	return c.exportService
}

func (c *Container) LayoutEngine() layout.Engine {
	return c.layoutEngine
}

func (c *Container) RateLimiter() *ratelimit.Limiter {
	return c.limiter
}

// Close stops background work, flushes pending submissions and closes
// infrastructure clients
func (c *Container) Close(ctx context.Context) error {
	c.snapshotService.Stop()
	c.limiter.Stop()

	var firstErr error
	if err := c.sink.Close(ctx); err != nil {
		firstErr = fmt.Errorf("failed to flush submissions: %w", err)
	}
	if c.cacheClient != nil {
		if err := c.cacheClient.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close cache: %w", err)
		}
	}
	return firstErr
}
