// Package main is the entrypoint for the swipequeue API server.
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

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobdeck/swipequeue/internal/api"
	"github.com/jobdeck/swipequeue/internal/api/handler"
	mw "github.com/jobdeck/swipequeue/internal/api/middleware"
	"github.com/jobdeck/swipequeue/internal/api/response"
	"github.com/jobdeck/swipequeue/internal/batch"
	"github.com/jobdeck/swipequeue/internal/cache"
	"github.com/jobdeck/swipequeue/internal/config"
	"github.com/jobdeck/swipequeue/internal/queue"
	"github.com/jobdeck/swipequeue/internal/session"
	"github.com/jobdeck/swipequeue/internal/snapshot"
	"github.com/jobdeck/swipequeue/internal/store"
	"github.com/jobdeck/swipequeue/internal/workerapi"
)

const (
	shutdownTimeout = 30 * time.Second

	// How long a worker readiness probe is trusted before the health
	// endpoint asks again.
	workerReadyTTL = 30 * time.Second
)

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
	// 1. Load config; a .env file is a development convenience, env vars win
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"db_driver", cfg.Database.Driver,
		"env", cfg.Server.Env,
		"debounce", cfg.Queue.DebounceInterval.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the store (embedded sqlite by default, postgres when configured)
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	slog.Info("store opened", "driver", cfg.Database.Driver)

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Cache: redis when configured, in-process memory otherwise
	c, err := newCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	// 5. Worker client
	worker := workerapi.NewHTTPClient(cfg.Worker.BaseURL, cfg.Worker.APIToken, cfg.Worker.Timeout)

	// 6. Queue manager, warm started from persisted automation refs
	manager := queue.NewManager(st, worker, queue.WithMaxAttempts(cfg.Queue.MaxAttempts))
	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize queue manager: %w", err)
	}

	// 7. Snapshot cache
	snaps := snapshot.NewCache(st, cfg.Snapshot.Capacity)
	if err := snaps.EnsureLoaded(ctx); err != nil {
		return fmt.Errorf("load snapshot cache: %w", err)
	}

	// 8. Swipe session
	sess := session.New(manager, snaps, batch.Options{
		DebounceInterval: cfg.Queue.DebounceInterval,
		MaxAttempts:      cfg.Queue.MaxAttempts,
		MaxBatchSize:     cfg.Queue.MaxBatchSize,
		MaxBatchAge:      cfg.Queue.MaxBatchAge,
		RetryBackoffBase: cfg.Queue.RetryBackoffBase,
		RetryBackoffMax:  cfg.Queue.RetryBackoffMax,
	}, batch.Hooks{
		OnBatchSent: func(automationID uuid.UUID, jobCount int) {
			slog.Info("batch sent", "automation_id", automationID, "jobs", jobCount)
		},
		OnBatchError: func(err error) {
			slog.Warn("batch submission errors", "error", err)
		},
	})

	// 9. Reconcile anything a previous run left unacknowledged
	go func() {
		syncCtx, cancel := context.WithTimeout(ctx, cfg.Worker.Timeout*4)
		defer cancel()
		if _, err := manager.SyncPendingURLs(syncCtx); err != nil {
			slog.Warn("startup pending-url sync failed", "error", err)
		}
	}()

	// 10. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(c, 0),
		Metrics:   promhttp.Handler(),

		HealthHandler:          healthHandler(st, c, worker),
		SelectProfileHandler:   handler.NewSelectProfileHandler(sess),
		ResumeSettingsHandler:  handler.NewResumeSettingsHandler(sess),
		SwipeHandler:           handler.NewSwipeHandler(sess),
		FlushHandler:           handler.NewFlushHandler(sess),
		QueueStatsHandler:      handler.NewQueueStatsHandler(sess, manager),
		PendingCountHandler:    handler.NewPendingCountHandler(manager),
		SyncHandler:            handler.NewSyncHandler(manager),
		CachedJobsHandler:      handler.NewCachedJobsHandler(snaps),
		CleanupProfilesHandler: handler.NewCleanupProfilesHandler(manager),
	}

	router := api.NewRouter(deps)

	// 11. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Final flush: batched swipes get one last submission attempt. Whatever
	// the worker does not acknowledge stays in the pending table and the
	// startup sync picks it up next run.
	if err := sess.Close(shutdownCtx); err != nil {
		slog.Warn("final flush incomplete", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newCache picks the cache backend: redis when a URL is configured, process
// memory otherwise.
func newCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, error) {
	if cfg.URL == "" {
		slog.Info("cache backend: memory")
		return cache.NewMemoryCache(), nil
	}

	rc, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("cache backend: redis")
	return rc, nil
}

// healthHandler checks store, cache, and worker reachability. The worker
// probe is cached briefly so health polling cannot hammer it.
func healthHandler(s store.Store, c cache.Cache, worker workerapi.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"store":  "ok",
			"cache":  "ok",
			"worker": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["store"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := workerReady(r.Context(), c, worker); err != nil {
			checks["worker"] = "degraded"
		}

		for _, status := range checks {
			if status != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}

func workerReady(ctx context.Context, c cache.Cache, worker workerapi.Client) error {
	key := cache.WorkerReadyKey()
	if val, ok, err := c.Get(ctx, key); err == nil && ok && string(val) == "ok" {
		return nil
	}

	if err := worker.Ready(ctx); err != nil {
		return err
	}
	if err := c.Set(ctx, key, []byte("ok"), workerReadyTTL); err != nil {
		slog.Warn("worker readiness not cached", "error", err)
	}
	return nil
}
