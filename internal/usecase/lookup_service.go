package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/vidrelay/internal/domain/model"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/cache"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/metrics"
)

// LookupService defines the interface for resolving item references.
type LookupService interface {
	// Normalize derives the canonical item id for reference.
	// Returns model.ErrInvalidReference for unrecognized references.
	Normalize(reference string) (model.ItemID, error)

	// Resolve returns metadata and sorted variants, from the cache while the entry is
	// fresh and from the resolver otherwise. A failed live resolution wraps
	// repository.ErrResolution; stale entries are never served in its place.
	// A caller whose ctx ends first gets ctx.Err() without disturbing other waiters.
	Resolve(ctx context.Context, reference string) (*model.ResolutionResult, error)

	// Invalidate drops the cached entry for id so the next Resolve goes upstream.
	Invalidate(ctx context.Context, id model.ItemID) error
}

type lookupService struct {
	resolver repository.Resolver
	cache    *cache.Cache
	sweeper  Sweeper
	sfGroup  singleflight.Group
	logger   *slog.Logger
}

// NewLookupService creates a new LookupService.
// sweeper is triggered once per Resolve call and may be nil.
func NewLookupService(
	resolver repository.Resolver,
	metaCache *cache.Cache,
	sweeper Sweeper,
	logger *slog.Logger,
) LookupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &lookupService{
		resolver: resolver,
		cache:    metaCache,
		sweeper:  sweeper,
		logger:   logger,
	}
}

func (s *lookupService) Normalize(reference string) (model.ItemID, error) {
	if !s.resolver.Validate(reference) {
		return "", model.ErrInvalidReference
	}
	id, err := s.resolver.CanonicalID(reference)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidReference, err)
	}
	return id, nil
}

func (s *lookupService) Resolve(ctx context.Context, reference string) (*model.ResolutionResult, error) {
	id, err := s.Normalize(reference)
	if err != nil {
		return nil, err
	}

	if s.sweeper != nil {
		s.sweeper.Trigger()
	}

	if entry, ok := s.cache.Get(ctx, id); ok {
		if s.cache.IsFresh(entry) {
			return &entry.Result, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusStale, s.cache.Type()).Inc()
	}

	// Coalesce concurrent misses for the same item into one upstream call.
	// The shared call is detached from every caller; the resolver's own timeout bounds it.
	ch := s.sfGroup.DoChan(id.String(), func() (any, error) {
		return s.resolveLive(context.WithoutCancel(ctx), id, reference)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.Shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if res.Err != nil {
		return nil, res.Err
	}

	return res.Val.(*model.ResolutionResult), nil
}

// resolveLive calls the resolver and writes the result back to the cache.
func (s *lookupService) resolveLive(ctx context.Context, id model.ItemID, reference string) (*model.ResolutionResult, error) {
	result, err := s.resolver.Resolve(ctx, reference)
	if err != nil {
		metrics.ResolverRequestsTotal.WithLabelValues(metrics.ResolverError).Inc()
		return nil, fmt.Errorf("%w: %v", repository.ErrResolution, err)
	}
	metrics.ResolverRequestsTotal.WithLabelValues(metrics.ResolverSuccess).Inc()

	if result.Variants == nil {
		result.Variants = []model.Variant{}
	}
	result.SortVariants()

	if err := s.cache.Put(ctx, id, result); err != nil {
		// Serving the live result matters more than caching it.
		s.logger.Warn("failed to cache resolution result",
			slog.String("item_id", id.String()),
			slog.String("error", err.Error()),
		)
	}

	return result, nil
}

func (s *lookupService) Invalidate(ctx context.Context, id model.ItemID) error {
	return s.cache.Invalidate(ctx, id)
}
