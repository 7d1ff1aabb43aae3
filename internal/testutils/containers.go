package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	redisModule "github.com/testcontainers/testcontainers-go/modules/redis"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/platform/cache"
	"whatisyourcolor/internal/platform/storage"
)

// TestBucket is the bucket shared cards are written to in integration tests
const TestBucket = "test-cards"

// TestContainers manages test containers for integration testing
type TestContainers struct {
	MinioContainer testcontainers.Container
	RedisContainer testcontainers.Container
	MinioClient    *storage.MinIOClient
	RedisClient    *cache.RedisClient
	MinioEndpoint  string
	MinioUsername  string
	MinioPassword  string
	RedisEndpoint  string
}

// SetupTestContainers initializes and starts test containers
func SetupTestContainers(ctx context.Context) (*TestContainers, error) {
	containers := &TestContainers{
		MinioUsername: "testuser",
		MinioPassword: "testpass123",
	}

	// Setup MinIO container
	if err := containers.setupMinio(ctx); err != nil {
		_ = containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup minio container: %w", err)
	}

	// Setup Redis container
	if err := containers.setupRedis(ctx); err != nil {
		_ = containers.Cleanup(ctx) // Clean up minio if redis fails
		return nil, fmt.Errorf("failed to setup redis container: %w", err)
	}

	return containers, nil
}

// StorageConfig returns the storage settings pointing at the MinIO container
func (tc *TestContainers) StorageConfig() config.StorageConfig {
	return config.StorageConfig{
		Enabled:         true,
		Endpoint:        tc.MinioEndpoint,
		AccessKeyID:     tc.MinioUsername,
		SecretAccessKey: tc.MinioPassword,
		UseSSL:          false,
		BucketName:      TestBucket,
		Region:          "us-east-1",
	}
}

// CacheConfig returns the cache settings pointing at the Valkey container
func (tc *TestContainers) CacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Address:     tc.RedisEndpoint,
		Password:    "",
		Database:    0,
		DefaultTTL:  1 * time.Hour,
		DialTimeout: 5 * time.Second,
	}
}

// setupMinio creates and starts a MinIO test container
func (tc *TestContainers) setupMinio(ctx context.Context) error {
	minioContainer, err := minio.Run(ctx,
		"minio/minio:latest",
		minio.WithUsername(tc.MinioUsername),
		minio.WithPassword(tc.MinioPassword),
	)
	if err != nil {
		return fmt.Errorf("failed to start minio container: %w", err)
	}

	tc.MinioContainer = minioContainer

	// Get connection details
	endpoint, err := minioContainer.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to get minio endpoint: %w", err)
	}

	tc.MinioEndpoint = endpoint

	// The storage client creates the bucket on first connect
	storageClient, err := storage.NewMinIOClient(ctx, tc.StorageConfig())
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}

	tc.MinioClient = storageClient
	return nil
}

// setupRedis creates and starts a Valkey test container (Redis-compatible)
func (tc *TestContainers) setupRedis(ctx context.Context) error {
	redisContainer, err := redisModule.Run(ctx,
		"valkey/valkey:7-alpine",
		redisModule.WithSnapshotting(10, 1),
		redisModule.WithLogLevel(redisModule.LogLevelVerbose),
	)
	if err != nil {
		return fmt.Errorf("failed to start valkey container: %w", err)
	}

	tc.RedisContainer = redisContainer

	// ConnectionString returns redis://host:port; go-redis wants host:port
	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get valkey endpoint: %w", err)
	}

	tc.RedisEndpoint = endpoint

	redisClient, err := cache.NewRedisClient(tc.CacheConfig())
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}

	tc.RedisClient = redisClient

	// Test connection
	if err := tc.RedisClient.Health(ctx); err != nil {
		return fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return nil
}

// Cleanup terminates all test containers and closes connections
func (tc *TestContainers) Cleanup(ctx context.Context) error {
	var errs []error

	if tc.MinioContainer != nil {
		if err := tc.MinioContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate minio container: %w", err))
		}
	}

	if tc.RedisClient != nil {
		if err := tc.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close valkey client: %w", err))
		}
	}

	if tc.RedisContainer != nil {
		if err := tc.RedisContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate valkey container: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}

	return nil
}

// FlushRedis clears all data from the Valkey test database
func (tc *TestContainers) FlushRedis(ctx context.Context) error {
	if tc.RedisClient == nil {
		return fmt.Errorf("valkey client not available")
	}

	return tc.RedisClient.FlushCache(ctx)
}
