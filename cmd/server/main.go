// Package main is the entrypoint for the storepulse API server.
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

	"github.com/kiranshivaraju/storepulse/internal/ai"
	"github.com/kiranshivaraju/storepulse/internal/api"
	"github.com/kiranshivaraju/storepulse/internal/api/handler"
	mw "github.com/kiranshivaraju/storepulse/internal/api/middleware"
	"github.com/kiranshivaraju/storepulse/internal/cache"
	"github.com/kiranshivaraju/storepulse/internal/config"
	"github.com/kiranshivaraju/storepulse/internal/feedback"
	"github.com/kiranshivaraju/storepulse/internal/report"
	"github.com/kiranshivaraju/storepulse/internal/store"
	"github.com/kiranshivaraju/storepulse/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	// 6. Create store and services, build router
	pgStore := store.NewPostgresStore(pool)
	router, feedbackSvc := newRouter(cfg, pgStore, redisCache, aiProvider)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AI.InferenceTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	feedbackSvc.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

// newRouter wires services and handlers. The returned feedback service must
// be drained with Wait on shutdown.
func newRouter(cfg *config.Config, st store.Store, ca cache.Cache, provider models.AIProvider) (http.Handler, *feedback.Service) {
	reports := report.NewService(st, ca)
	worker := report.NewWorker(st, provider, report.WorkerConfig{
		MaxRows:              cfg.Report.MaxRows,
		MaxFieldBytes:        cfg.Report.MaxFieldBytes,
		InferenceTimeout:     cfg.AI.InferenceTimeout,
		PlaceholderOnFailure: cfg.Report.PlaceholderOnFailure,
	})
	feedbackSvc := feedback.NewService(st, ca, provider, feedback.Config{
		Timeout:       cfg.Enrichment.Timeout,
		MaxConcurrent: cfg.Enrichment.MaxConcurrent,
		RatePerSec:    cfg.Enrichment.RatePerSec,
	})

	deps := api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(ca, cfg.RateLimit.PerMinute),

		HealthHandler:         handler.NewHealthHandler(st, ca),
		EnqueueJobHandler:     handler.NewEnqueueJobHandler(reports),
		PollJobHandler:        handler.NewPollJobHandler(reports),
		ListJobsHandler:       handler.NewListJobsHandler(reports),
		LatestSnapshotHandler: handler.NewLatestSnapshotHandler(reports),
		FeedbackHandler:       handler.NewFeedbackHandler(feedbackSvc),
		RunWorkerHandler:      handler.NewRunWorkerHandler(worker),
		AdminActionsHandler:   handler.NewAdminActionsHandler(reports),
		CreateKeyHandler:      handler.NewCreateKeyHandler(st),
		ListKeysHandler:       handler.NewListKeysHandler(st),
		RevokeKeyHandler:      handler.NewRevokeKeyHandler(st),
	}
	return api.NewRouter(deps), feedbackSvc
}
