// Package main is the entrypoint for the triad recommendation API server.
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

	"github.com/joho/godotenv"
	"github.com/melodydashora/triad/internal/api"
	"github.com/melodydashora/triad/internal/api/handler"
	mw "github.com/melodydashora/triad/internal/api/middleware"
	"github.com/melodydashora/triad/internal/api/response"
	"github.com/melodydashora/triad/internal/breaker"
	"github.com/melodydashora/triad/internal/cache"
	"github.com/melodydashora/triad/internal/config"
	"github.com/melodydashora/triad/internal/pipeline"
	"github.com/melodydashora/triad/internal/provider"
	"github.com/melodydashora/triad/internal/store"
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
	// 1. Load config — fail fast on invalid config. A .env file is optional;
	// real deployments set environment variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"strategist", cfg.Pipeline.Strategist.Provider,
		"planner", cfg.Pipeline.Planner.Provider,
		"validator", cfg.Pipeline.Validator.Provider)

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
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
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

	// 5. Create store
	pgStore := store.NewPostgresStore(pool)

	// 6. Build the three pipeline stages. Each stage gets its own provider and
	// its own breaker so one failing provider cannot block the others.
	strategist, err := newStage(ctx, cfg, "strategist", cfg.Pipeline.Strategist)
	if err != nil {
		return err
	}
	planner, err := newStage(ctx, cfg, "planner", cfg.Pipeline.Planner)
	if err != nil {
		return err
	}
	validator, err := newStage(ctx, cfg, "validator", cfg.Pipeline.Validator)
	if err != nil {
		return err
	}

	orch := pipeline.New(pgStore, redisCache, strategist, planner, validator, cfg.Pipeline)
	slog.Info("pipeline initialized",
		"total_budget", cfg.Pipeline.TotalBudget,
		"poll_max_wait", cfg.Pipeline.PollMaxWait)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:    healthHandler(pgStore, redisCache),
		RecommendHandler: handler.NewRecommendHandler(pgStore, orch),
		PollHandler:      handler.NewPollHandler(orch),
		StagesHandler:    handler.NewStagesHandler(pgStore),
		MetricsHandler:   handler.NewMetricsHandler(pgStore),
		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Pipeline.TotalBudget + 30*time.Second,
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

	slog.Info("server stopped gracefully")
	return nil
}

// newStage builds one pipeline stage from its config: the provider client plus
// a breaker named after the stage.
func newStage(ctx context.Context, cfg *config.Config, name string, sc config.StageConfig) (pipeline.Stage, error) {
	p, err := provider.New(ctx, cfg, sc)
	if err != nil {
		return pipeline.Stage{}, fmt.Errorf("create %s provider: %w", name, err)
	}
	slog.Info("stage provider initialized", "stage", name, "provider", p.Name(), "model", sc.Model)

	b := breaker.New(name, breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetInterval:    cfg.Breaker.ResetInterval,
	})

	return pipeline.Stage{
		Name:     name,
		Provider: p,
		Breaker:  b,
		Config:   sc,
	}, nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
