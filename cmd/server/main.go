// Package main is the entrypoint for the URBAN API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/urban-yield/urban-api/internal/api"
	"github.com/urban-yield/urban-api/internal/api/handler"
	mw "github.com/urban-yield/urban-api/internal/api/middleware"
	"github.com/urban-yield/urban-api/internal/api/response"
	"github.com/urban-yield/urban-api/internal/cache"
	"github.com/urban-yield/urban-api/internal/config"
	"github.com/urban-yield/urban-api/internal/filestore"
	"github.com/urban-yield/urban-api/internal/inference"
	"github.com/urban-yield/urban-api/internal/jobs"
	"github.com/urban-yield/urban-api/internal/scenario"
	"github.com/urban-yield/urban-api/internal/staging"
	"github.com/urban-yield/urban-api/internal/store"
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
	// 1. Load config, seeding the environment from .env when present
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"store", cfg.Store.Backend,
		"file_store", cfg.FileStore.Backend,
		"workers", cfg.Jobs.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]pinger{}

	// 2. Repository
	var repo store.Store
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		repo = store.NewPostgresStore(pool)
		checks["database"] = repo
	default:
		repo = store.NewMemoryStore()
		slog.Warn("using in-memory store; jobs and scenarios are lost on restart")
	}

	// 3. Optional Redis: job read cache and rate limiting
	var rateLimit *mw.RateLimit
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")

		repo = store.NewCachedJobs(repo, redisCache, cfg.Redis.JobCacheTTL)
		rateLimit = mw.NewRateLimit(redisCache, cfg.Redis.RequestsPerM)
		checks["cache"] = redisCache
	}

	// 4. File store
	files, err := newFileStore(ctx, cfg)
	if err != nil {
		return err
	}
	checks["file_store"] = files

	// 5. Prediction pipeline
	stager := staging.New(
		staging.WithVariableOverrides(cfg.Staging.VariableOverrides),
		staging.WithSegmentSize(cfg.Staging.SegmentSize),
	)
	model := inference.NewHTTPClient(cfg.Model.BaseURL, cfg.Model.Timeout)
	workers := jobs.NewPool(cfg.Jobs.Workers)
	tracker := jobs.NewTracker(repo, files, stager, model, workers)
	scenarios := scenario.NewService(repo)

	// 6. Build router with dependencies
	maxBytes := cfg.Uploads.MaxBytes
	deps := api.Dependencies{
		Auth:           mw.NewAuth(cfg.Auth.APIKeyHash),
		RateLimit:      rateLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,

		RootHandler:   handler.NewRootHandler(),
		HealthHandler: healthHandler(checks),

		UploadUrban:            handler.NewUploadUrbanHandler(files, maxBytes),
		UploadClimate:          handler.NewUploadClimateHandler(files, maxBytes),
		UploadHistoricalYields: handler.NewUploadHistoricalYieldsHandler(files, maxBytes),

		CreatePrediction: handler.NewCreatePredictionHandler(tracker),
		GetPrediction:    handler.NewGetPredictionHandler(tracker),
		ListPredictions:  handler.NewListPredictionsHandler(tracker),

		CreateScenario:   handler.NewCreateScenarioHandler(scenarios),
		ListScenarios:    handler.NewListScenariosHandler(scenarios),
		GetScenario:      handler.NewGetScenarioHandler(scenarios),
		PatchScenario:    handler.NewPatchScenarioHandler(scenarios),
		DeleteScenario:   handler.NewDeleteScenarioHandler(scenarios),
		CompareScenarios: handler.NewCompareScenariosHandler(scenarios),

		RegionAnalytics: handler.NewRegionAnalyticsHandler(),
		ModelMetrics:    handler.NewModelMetricsHandler(),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout: stop taking requests, then let queued jobs finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := workers.Shutdown(shutdownCtx); err != nil {
		slog.Warn("prediction jobs still running at shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newFileStore builds the configured upload store.
func newFileStore(ctx context.Context, cfg *config.Config) (filestore.Store, error) {
	switch cfg.FileStore.Backend {
	case config.BackendMinio:
		client, err := filestore.NewMinIOClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("create minio client: %w", err)
		}
		s, err := filestore.NewMinio(ctx, client, cfg.Minio.Bucket, cfg.Minio.Region, filepath.Join(cfg.Uploads.Dir, ".cache"))
		if err != nil {
			return nil, fmt.Errorf("create minio file store: %w", err)
		}
		slog.Info("minio file store ready", "endpoint", cfg.Minio.Endpoint, "bucket", cfg.Minio.Bucket)
		return s, nil
	default:
		s, err := filestore.NewLocal(cfg.Uploads.Dir)
		if err != nil {
			return nil, fmt.Errorf("create local file store: %w", err)
		}
		slog.Info("local file store ready", "dir", cfg.Uploads.Dir)
		return s, nil
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler reports each dependency as ok or degraded.
func healthHandler(checks map[string]pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := make(map[string]string, len(checks))
		degraded := false
		for name, p := range checks {
			services[name] = "ok"
			if err := p.Ping(r.Context()); err != nil {
				slog.Warn("health check failed", "service", name, "error", err)
				services[name] = "degraded"
				degraded = true
			}
		}

		if degraded {
			response.Status(w, http.StatusServiceUnavailable, map[string]any{
				"status":   "degraded",
				"services": services,
			})
			return
		}

		response.JSON(w, map[string]any{
			"status":   "healthy",
			"services": services,
		})
	}
}
