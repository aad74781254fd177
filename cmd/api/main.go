package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/vidrelay/internal/api/handler"
	"github.com/hszk-dev/vidrelay/internal/api/middleware"
	"github.com/hszk-dev/vidrelay/internal/app"
	"github.com/hszk-dev/vidrelay/internal/config"
	"github.com/hszk-dev/vidrelay/internal/infrastructure/queue"
	"github.com/hszk-dev/vidrelay/internal/resolver"
	"github.com/hszk-dev/vidrelay/internal/usecase"
)

const readyTimeout = 2 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	metaCache, store, err := app.NewCache(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer store.Close()

	// Sweep in process, or hand the sweep to the worker through RabbitMQ.
	var sweep usecase.SweepFunc
	switch cfg.Cache.SweepMode {
	case config.SweepModeQueue:
		queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()), logger)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer func() { _ = queueClient.Close() }()
		logger.Info("connected to RabbitMQ")
		sweep = usecase.QueuedSweep(queueClient, "lookup")
	default:
		sweep = usecase.LocalSweep(usecase.NewSweepService(metaCache, 0, logger))
	}
	sweeper := usecase.NewBackgroundSweeper(sweep, usecase.SweeperConfig{
		Timeout:     cfg.Cache.SweepTimeout,
		MinInterval: cfg.Cache.SweepMinInterval,
	}, logger)

	ytdlp := resolver.NewYTDLP(cfg.Resolver.BinaryPath, cfg.Resolver.Timeout)
	lookupSvc := usecase.NewLookupService(ytdlp, metaCache, sweeper, logger)

	streamCfg := usecase.StreamServiceConfig{
		UserAgent:             cfg.Proxy.UserAgent,
		Referer:               cfg.Proxy.Referer,
		DialTimeout:           cfg.Proxy.DialTimeout,
		TLSHandshakeTimeout:   cfg.Proxy.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.Proxy.ResponseHeaderTimeout,
	}
	streamSvc := usecase.NewStreamService(lookupSvc, usecase.NewUpstreamClient(streamCfg), streamCfg, logger)

	itemHandler := handler.NewItemHandler(lookupSvc, streamSvc, logger)

	var limiter middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	r := setupRouter(logger, itemHandler, store, limiter, cfg.RateLimit.TrustForwarded)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.Int("port", cfg.Server.Port),
			slog.String("cache_backend", cfg.Cache.Backend),
			slog.String("sweep_mode", cfg.Cache.SweepMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// A sweep may still be running after the last request finished.
	if err := sweeper.Drain(shutdownCtx); err != nil {
		logger.Warn("cache sweep did not finish before shutdown", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(logger *slog.Logger, items *handler.ItemHandler, backend handler.Pinger, limiter middleware.RateLimiter, trustForwarded bool) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health)
	r.Get("/ready", handler.Ready(backend, readyTimeout))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, trustForwarded))
		r.Post("/info", items.Info)
		r.Get("/download", items.Download)
	})

	return r
}
