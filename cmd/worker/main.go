package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hszk-dev/vidrelay/internal/app"
	"github.com/hszk-dev/vidrelay/internal/config"
	"github.com/hszk-dev/vidrelay/internal/domain/repository"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/queue"
	"github.com/hszk-dev/vidrelay/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// The worker sweeps the same store the API instances write to.
	metaCache, store, err := app.NewCache(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer store.Close()

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer func() { _ = queueClient.Close() }()
	logger.Info("connected to RabbitMQ")

	sweepSvc := usecase.NewSweepService(metaCache, cfg.Worker.TaskMaxDelay, logger)

	// Setup signal handling for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// WaitGroup to track in-flight tasks
	var wg sync.WaitGroup

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming sweep tasks", slog.String("cache_type", store.Type))
		err := queueClient.ConsumeSweepTasks(ctx, func(task repository.SweepTask) error {
			wg.Add(1)
			defer wg.Done()

			// In-flight sweeps finish on their own timeout rather than the consumer's context.
			taskCtx, taskCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Cache.SweepTimeout)
			defer taskCancel()

			return sweepSvc.ProcessTask(taskCtx, task)
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Cancel the main context to stop consuming new messages
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	logger.Info("worker stopped")
	return nil
}
