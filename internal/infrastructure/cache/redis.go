package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

const (
	// itemCacheKeyPrefix is the prefix for item cache keys in Redis.
	itemCacheKeyPrefix = "item:"

	scanBatchSize = 100
)

// RedisStore implements repository.MetadataStore using Redis as the backing store.
// Keys expire natively after the retention window; Sweep catches anything older.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	logger    *slog.Logger
}

// Compile-time verification that RedisStore implements repository.MetadataStore.
var _ repository.MetadataStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-backed metadata store.
// A zero retention stores keys without expiry.
func NewRedisStore(client *redis.Client, retention time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:    client,
		retention: retention,
		logger:    logger,
	}
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Load retrieves an entry from Redis.
func (s *RedisStore) Load(ctx context.Context, id model.ItemID) (*model.CacheEntry, error) {
	data, err := s.client.Get(ctx, s.buildKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrEntryNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	return DecodeEntry(id, data)
}

// Save stores an entry in Redis with the retention window as TTL.
func (s *RedisStore) Save(ctx context.Context, entry *model.CacheEntry) error {
	data, err := EncodeEntry(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	if err := s.client.Set(ctx, s.buildKey(entry.ID), data, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes an entry from Redis.
func (s *RedisStore) Delete(ctx context.Context, id model.ItemID) error {
	if err := s.client.Del(ctx, s.buildKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Sweep scans item keys and deletes those created at or before cutoff.
// Undecodable values are left to expire on their TTL.
func (s *RedisStore) Sweep(ctx context.Context, cutoff time.Time) (repository.SweepResult, error) {
	var res repository.SweepResult

	iter := s.client.Scan(ctx, 0, itemCacheKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		res.Scanned++

		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				res.Failed++
			}
			continue
		}

		entry, err := DecodeEntry(model.ItemID(key[len(itemCacheKeyPrefix):]), data)
		if err != nil || entry.CreatedAt.After(cutoff) {
			continue
		}

		if err := s.client.Del(ctx, key).Err(); err != nil {
			res.Failed++
			s.logger.Warn("failed to remove expired cache key",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Removed++
	}
	if err := iter.Err(); err != nil {
		return res, fmt.Errorf("redis scan: %w", err)
	}

	return res, nil
}

// buildKey constructs the Redis key for an item.
func (s *RedisStore) buildKey(id model.ItemID) string {
	return itemCacheKeyPrefix + string(id)
}
