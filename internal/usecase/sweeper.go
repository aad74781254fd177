package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/vidrelay/internal/domain/repository"
)

// Sweeper requests an opportunistic retention sweep. Trigger never blocks.
type Sweeper interface {
	Trigger()
}

// SweepFunc performs one sweep attempt.
type SweepFunc func(ctx context.Context) error

// SweeperConfig holds configuration for BackgroundSweeper.
type SweeperConfig struct {
	// Timeout bounds a single sweep attempt.
	Timeout time.Duration
	// MinInterval is the minimum time between the starts of two attempts.
	MinInterval time.Duration
}

// DefaultSweeperConfig returns the default configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Timeout:     30 * time.Second,
		MinInterval: time.Minute,
	}
}

// BackgroundSweeper runs a SweepFunc on a tracked goroutine.
// Triggers arriving while an attempt runs, or within MinInterval of the last start,
// are coalesced into nothing. Drain stops new attempts and waits for the running one.
type BackgroundSweeper struct {
	sweep       SweepFunc
	timeout     time.Duration
	minInterval time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	running  bool
	draining bool
	last     time.Time
	wg       sync.WaitGroup
}

// Compile-time verification that BackgroundSweeper implements Sweeper.
var _ Sweeper = (*BackgroundSweeper)(nil)

// NewBackgroundSweeper creates a new BackgroundSweeper.
func NewBackgroundSweeper(sweep SweepFunc, cfg SweeperConfig, logger *slog.Logger) *BackgroundSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSweeperConfig().Timeout
	}
	return &BackgroundSweeper{
		sweep:       sweep,
		timeout:     cfg.Timeout,
		minInterval: cfg.MinInterval,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNowFunc allows tests to override the time source.
func (b *BackgroundSweeper) WithNowFunc(now func() time.Time) {
	b.now = now
}

// Trigger starts a sweep attempt unless one is running, one started recently,
// or the sweeper is draining.
func (b *BackgroundSweeper) Trigger() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.draining || b.running {
		return
	}
	if !b.last.IsZero() && now.Sub(b.last) < b.minInterval {
		return
	}

	b.running = true
	b.last = now
	b.wg.Add(1)
	go b.run()
}

func (b *BackgroundSweeper) run() {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := b.sweep(ctx); err != nil {
		b.logger.Warn("cache sweep failed", slog.String("error", err.Error()))
	}
}

// Drain stops accepting triggers and waits for a running attempt to finish,
// or for ctx to be done.
func (b *BackgroundSweeper) Drain(ctx context.Context) error {
	b.mu.Lock()
	b.draining = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain sweeper: %w", ctx.Err())
	}
}

// LocalSweep returns a SweepFunc that sweeps in this process.
func LocalSweep(svc SweepService) SweepFunc {
	return func(ctx context.Context) error {
		_, err := svc.Sweep(ctx)
		return err
	}
}

// QueuedSweep returns a SweepFunc that delegates the sweep to a worker through queue.
func QueuedSweep(queue repository.TaskQueue, reason string) SweepFunc {
	return func(ctx context.Context) error {
		task := repository.SweepTask{
			ID:          uuid.New(),
			RequestedAt: time.Now().UTC(),
			Reason:      reason,
		}
		if err := queue.PublishSweepTask(ctx, task); err != nil {
			return fmt.Errorf("failed to publish sweep task: %w", err)
		}
		return nil
	}
}
