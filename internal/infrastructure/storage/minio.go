package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/cache"
)

const (
	itemPrefix = "items/"
	itemExt    = ".json"
)

// objectReader abstracts minio.Object for testability.
// *minio.Object satisfies this interface.
type objectReader interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

// minioClient defines the interface for MinIO operations.
// This abstraction allows for easier unit testing with mocks.
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// minioClientAdapter wraps *minio.Client to implement minioClient interface.
// This is necessary because *minio.Client.GetObject returns *minio.Object,
// but our interface returns objectReader for testability.
type minioClientAdapter struct {
	client *minio.Client
}

func (a *minioClientAdapter) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return a.client.BucketExists(ctx, bucketName)
}

func (a *minioClientAdapter) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return a.client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (a *minioClientAdapter) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
	return a.client.GetObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return a.client.RemoveObject(ctx, bucketName, objectName, opts)
}

func (a *minioClientAdapter) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return a.client.ListObjects(ctx, bucketName, opts)
}

// ClientConfig holds configuration for the MinIO client.
type ClientConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MetadataObjectStore implements repository.MetadataStore with one object per item.
// The object's LastModified time is the entry's creation time.
type MetadataObjectStore struct {
	client minioClient
	bucket string
	logger *slog.Logger
}

// Compile-time verification that MetadataObjectStore implements repository.MetadataStore.
var _ repository.MetadataStore = (*MetadataObjectStore)(nil)

// NewMetadataObjectStore creates a new MinIO-backed metadata store.
// It verifies the bucket exists during initialization to fail fast on misconfiguration.
func NewMetadataObjectStore(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*MetadataObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return newStoreWithMinioClient(ctx, &minioClientAdapter{client: client}, cfg.Bucket, logger)
}

// newStoreWithMinioClient creates a store with a given minioClient implementation.
// This is used for dependency injection in tests.
func newStoreWithMinioClient(ctx context.Context, client minioClient, bucket string, logger *slog.Logger) (*MetadataObjectStore, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrBucketNotFound, bucket)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataObjectStore{
		client: client,
		bucket: bucket,
		logger: logger,
	}, nil
}

// Load retrieves the entry for id.
func (s *MetadataObjectStore) Load(ctx context.Context, id model.ItemID) (*model.CacheEntry, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject returns a lazy reader that doesn't fail until read.
	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, repository.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	result, err := cache.DecodeResult(data)
	if err != nil {
		return nil, err
	}

	return &model.CacheEntry{
		ID:        id,
		Result:    *result,
		CreatedAt: info.LastModified,
	}, nil
}

// Save uploads the entry. The server assigns LastModified, so entry.CreatedAt is not stored.
func (s *MetadataObjectStore) Save(ctx context.Context, entry *model.CacheEntry) error {
	data, err := cache.EncodeResult(&entry.Result)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectKey(entry.ID), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Delete removes the entry for id.
func (s *MetadataObjectStore) Delete(ctx context.Context, id model.ItemID) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectKey(id), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Sweep lists the item prefix and removes objects last modified at or before cutoff.
func (s *MetadataObjectStore) Sweep(ctx context.Context, cutoff time.Time) (repository.SweepResult, error) {
	var res repository.SweepResult

	// Cancelling stops the listing goroutine if the loop exits early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: itemPrefix, Recursive: true}) {
		if obj.Err != nil {
			return res, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, itemExt) {
			continue
		}
		res.Scanned++

		if obj.LastModified.After(cutoff) {
			continue
		}

		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			res.Failed++
			s.logger.Warn("failed to remove expired cache object",
				slog.String("key", obj.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Removed++
	}

	return res, nil
}

// Ping verifies the MinIO connection is alive by checking bucket access.
func (s *MetadataObjectStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to ping minio: %w", err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (s *MetadataObjectStore) Bucket() string {
	return s.bucket
}

func objectKey(id model.ItemID) string {
	return itemPrefix + string(id) + itemExt
}
