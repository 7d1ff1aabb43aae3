package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/domain/color"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultURLExpiry applies when a caller asks for a non-positive expiry
const DefaultURLExpiry = time.Hour

// MinIOClient stores exported cards in a single bucket
type MinIOClient struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewMinIOClient connects to the configured endpoint and makes sure the bucket exists
func NewMinIOClient(ctx context.Context, cfg config.StorageConfig) (*MinIOClient, error) {
	var creds *credentials.Credentials

	// Use AWS credentials chain if no static credentials are provided
	// This supports EKS Pod Identity, IAM roles, AWS credentials file, etc.
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},             // AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY
			&credentials.FileAWSCredentials{}, // ~/.aws/credentials
			&credentials.IAM{},                // EC2/ECS/EKS IAM roles
		})
	} else {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	m := &MinIOClient{
		client:     client,
		bucketName: cfg.BucketName,
		region:     cfg.Region,
	}

	if err := m.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return m, nil
}

func (m *MinIOClient) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return err
	}

	if !exists {
		region := m.region
		if region == "" {
			region = "us-east-1"
		}
		return m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{
			Region: region,
		})
	}

	return nil
}

// Bucket returns the bucket cards are written to
func (m *MinIOClient) Bucket() string {
	return m.bucketName
}

// Put uploads data under key
func (m *MinIOClient) Put(ctx context.Context, key, contentType string, data []byte) error {
	if key == "" {
		return errors.New("object key cannot be empty")
	}

	_, err := m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("inline; filename=%q", color.ExportFilename),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upload %s: %v", color.ErrStorageUnavailable, key, err)
	}
	return nil
}

// URL returns a presigned GET URL for key
func (m *MinIOClient) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if key == "" {
		return "", errors.New("object key cannot be empty")
	}
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}

	presignedURL, err := m.client.PresignedGetObject(ctx, m.bucketName, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to generate presigned URL: %v", color.ErrStorageUnavailable, err)
	}

	return presignedURL.String(), nil
}

// Get reads back an object
func (m *MinIOClient) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Delete removes an object
func (m *MinIOClient) Delete(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{})
}

// Health checks the bucket is reachable
func (m *MinIOClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("storage health check failed: bucket %s missing", m.bucketName)
	}
	return nil
}
