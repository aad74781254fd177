package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

// ExpirySweeper deletes cache entries past the retention window.
// *cache.Cache satisfies this interface.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (repository.SweepResult, error)
}

// SweepService defines the interface for cache retention sweeps.
type SweepService interface {
	// Sweep runs one retention pass over the cache.
	Sweep(ctx context.Context) (repository.SweepResult, error)

	// ProcessTask handles a sweep task from the message queue.
	// Tasks older than the staleness limit are skipped: a newer one follows.
	ProcessTask(ctx context.Context, task repository.SweepTask) error
}

type sweepService struct {
	cache    ExpirySweeper
	maxDelay time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweepService creates a new SweepService.
// Queued tasks requested more than maxDelay ago are dropped; zero disables the check.
func NewSweepService(cache ExpirySweeper, maxDelay time.Duration, logger *slog.Logger) SweepService {
	if logger == nil {
		logger = slog.Default()
	}
	return &sweepService{
		cache:    cache,
		maxDelay: maxDelay,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *sweepService) Sweep(ctx context.Context) (repository.SweepResult, error) {
	return s.cache.SweepExpired(ctx)
}

func (s *sweepService) ProcessTask(ctx context.Context, task repository.SweepTask) error {
	logger := s.logger.With(
		slog.String("task_id", task.ID.String()),
		slog.String("reason", task.Reason),
	)

	if s.maxDelay > 0 && !task.RequestedAt.IsZero() && s.now().Sub(task.RequestedAt) > s.maxDelay {
		logger.Info("skipping outdated sweep task", slog.Time("requested_at", task.RequestedAt))
		return nil
	}

	start := s.now()
	res, err := s.Sweep(ctx)
	if err != nil {
		return err
	}

	logger.Info("sweep task completed",
		slog.Int("scanned", res.Scanned),
		slog.Int("removed", res.Removed),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", s.now().Sub(start)),
	)
	return nil
}
