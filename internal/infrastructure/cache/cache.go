package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/metrics"
)

// ErrInvalidWindows is returned when the freshness window is not shorter than the retention window.
var ErrInvalidWindows = errors.New("freshness window must be positive and shorter than retention window")

// Config holds the time windows governing cache entries.
type Config struct {
	// FreshnessWindow is how long an entry, including its signed URLs, is served without
	// re-resolving. It must not exceed the upstream's real signed-URL validity.
	FreshnessWindow time.Duration
	// RetentionWindow is how long an entry is kept on storage before a sweep purges it.
	RetentionWindow time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FreshnessWindow: 6 * time.Hour,
		RetentionWindow: 24 * time.Hour,
	}
}

// Cache is the metadata cache in front of a MetadataStore.
// Store faults never escape Get: a failed or corrupt read is a miss.
type Cache struct {
	store     repository.MetadataStore
	cacheType string
	freshness time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Cache over store. cacheType labels metrics (see metrics.CacheType*).
func New(store repository.MetadataStore, cacheType string, cfg Config, logger *slog.Logger) (*Cache, error) {
	if cfg.FreshnessWindow <= 0 || cfg.RetentionWindow <= cfg.FreshnessWindow {
		return nil, fmt.Errorf("%w: freshness=%s retention=%s", ErrInvalidWindows, cfg.FreshnessWindow, cfg.RetentionWindow)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:     store,
		cacheType: cacheType,
		freshness: cfg.FreshnessWindow,
		retention: cfg.RetentionWindow,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// WithNowFunc allows tests to override the time source.
func (c *Cache) WithNowFunc(now func() time.Time) {
	c.now = now
}

// Type returns the backend label used in metrics.
func (c *Cache) Type() string {
	return c.cacheType
}

// Get returns the persisted entry for id, or false when absent, unreadable or corrupt.
func (c *Cache) Get(ctx context.Context, id model.ItemID) (*model.CacheEntry, bool) {
	entry, err := c.store.Load(ctx, id)
	switch {
	case err == nil:
		c.record(metrics.CacheOpGet, metrics.CacheStatusHit)
		return entry, true
	case errors.Is(err, repository.ErrEntryNotFound):
		c.record(metrics.CacheOpGet, metrics.CacheStatusMiss)
	case errors.Is(err, repository.ErrCorruptEntry):
		c.record(metrics.CacheOpGet, metrics.CacheStatusCorrupt)
		c.logger.Warn("corrupt cache entry treated as miss",
			slog.String("item_id", id.String()),
			slog.String("error", err.Error()),
		)
	default:
		c.record(metrics.CacheOpGet, metrics.CacheStatusError)
		c.logger.Warn("cache read failed, treating as miss",
			slog.String("item_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil, false
}

// Put stores result under id stamped with the current time, replacing any existing entry.
func (c *Cache) Put(ctx context.Context, id model.ItemID, result *model.ResolutionResult) error {
	entry := &model.CacheEntry{
		ID:        id,
		Result:    *result,
		CreatedAt: c.now(),
	}
	if err := c.store.Save(ctx, entry); err != nil {
		c.record(metrics.CacheOpSet, metrics.CacheStatusError)
		return fmt.Errorf("cache save: %w", err)
	}
	c.record(metrics.CacheOpSet, metrics.CacheStatusSuccess)
	return nil
}

// IsFresh reports whether entry is younger than the freshness window.
func (c *Cache) IsFresh(entry *model.CacheEntry) bool {
	return entry.Age(c.now()) < c.freshness
}

// Invalidate removes the entry for id.
func (c *Cache) Invalidate(ctx context.Context, id model.ItemID) error {
	if err := c.store.Delete(ctx, id); err != nil {
		c.record(metrics.CacheOpDelete, metrics.CacheStatusError)
		return fmt.Errorf("cache delete: %w", err)
	}
	c.record(metrics.CacheOpDelete, metrics.CacheStatusSuccess)
	return nil
}

// SweepExpired deletes every entry whose age has reached the retention window.
// Cleanup is best-effort: entries written concurrently may or may not survive.
func (c *Cache) SweepExpired(ctx context.Context) (repository.SweepResult, error) {
	cutoff := c.now().Add(-c.retention)

	res, err := c.store.Sweep(ctx, cutoff)
	metrics.CacheSweepRemovedTotal.WithLabelValues(c.cacheType).Add(float64(res.Removed))
	if err != nil {
		c.record(metrics.CacheOpSweep, metrics.CacheStatusError)
		return res, fmt.Errorf("cache sweep: %w", err)
	}
	c.record(metrics.CacheOpSweep, metrics.CacheStatusSuccess)

	if res.Removed > 0 || res.Failed > 0 {
		c.logger.Info("cache sweep completed",
			slog.String("cache_type", c.cacheType),
			slog.Int("scanned", res.Scanned),
			slog.Int("removed", res.Removed),
			slog.Int("failed", res.Failed),
		)
	}
	return res, nil
}

func (c *Cache) record(op, status string) {
	metrics.CacheOperationsTotal.WithLabelValues(op, status, c.cacheType).Inc()
}
