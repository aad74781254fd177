// Package app wires configured infrastructure into the services shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidrelay/internal/config"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/cache"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/metrics"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/postgres"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/storage"
)

// Store is an opened metadata store together with its metrics label.
type Store struct {
	repository.MetadataStore
	Type  string
	ping  func(ctx context.Context) error
	close func()
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the store's connections.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects the metadata store selected by cfg.Cache.Backend.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendFile:
		fs, err := cache.NewFileStore(cfg.Cache.Dir, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using file cache", slog.String("dir", fs.Dir()))
		return &Store{MetadataStore: fs, Type: metrics.CacheTypeFile, ping: fs.Ping}, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr()))
		rs := cache.NewRedisStore(client, cfg.Cache.RetentionWindow, logger)
		return &Store{
			MetadataStore: rs,
			Type:          metrics.CacheTypeRedis,
			ping:          rs.Ping,
			close:         func() { _ = client.Close() },
		}, nil

	case config.BackendPostgres:
		pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		return &Store{
			MetadataStore: postgres.NewMetadataRepository(pgClient.Pool()),
			Type:          metrics.CacheTypePostgres,
			ping:          pgClient.Ping,
			close:         pgClient.Close,
		}, nil

	case config.BackendMinIO:
		objStore, err := storage.NewMetadataObjectStore(ctx, storage.ClientConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		logger.Info("connected to MinIO", slog.String("bucket", objStore.Bucket()))
		return &Store{MetadataStore: objStore, Type: metrics.CacheTypeMinIO, ping: objStore.Ping}, nil
	}

	return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// NewCache opens the configured store and puts a Cache in front of it.
func NewCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cache.Cache, *Store, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	c, err := cache.New(store, store.Type, cache.Config{
		FreshnessWindow: cfg.Cache.FreshnessWindow,
		RetentionWindow: cfg.Cache.RetentionWindow,
	}, logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return c, store, nil
}
