package implementations

import (
	"context"
	"time"

	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/platform/storage"
)

// StorageServiceImpl implements color.ShareStorage with MinIO. A nil client
// reports every call as storage unavailable.
type StorageServiceImpl struct {
	client *storage.MinIOClient
}

// NewStorageService creates a new storage service implementation
func NewStorageService(client *storage.MinIOClient) *StorageServiceImpl {
	return &StorageServiceImpl{
		client: client,
	}
}

// Enabled reports whether object storage is configured
func (s *StorageServiceImpl) Enabled() bool {
	return s != nil && s.client != nil
}

// Put uploads data under key
func (s *StorageServiceImpl) Put(ctx context.Context, key, contentType string, data []byte) error {
	if !s.Enabled() {
		return color.ErrStorageUnavailable
	}
	return s.client.Put(ctx, key, contentType, data)
}

// URL returns a presigned URL for key
func (s *StorageServiceImpl) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !s.Enabled() {
		return "", color.ErrStorageUnavailable
	}
	return s.client.URL(ctx, key, expiry)
}

// Health checks the bucket is reachable
func (s *StorageServiceImpl) Health(ctx context.Context) error {
	if !s.Enabled() {
		return color.ErrStorageUnavailable
	}
	return s.client.Health(ctx)
}
