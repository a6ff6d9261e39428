package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/phrazzld/scry-notes/internal/cache"
	"github.com/phrazzld/scry-notes/internal/config"
	"github.com/phrazzld/scry-notes/internal/events"
	"github.com/phrazzld/scry-notes/internal/generation"
	"github.com/phrazzld/scry-notes/internal/platform/postgres"
	"github.com/phrazzld/scry-notes/internal/store"
	"github.com/phrazzld/scry-notes/internal/task"
	"github.com/redis/go-redis/v9"
)

// application holds the shared dependencies of the server process and
// releases them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client

	registry  *task.Registry
	hub       *events.Hub
	scheduler *task.Scheduler
	reaper    *task.Reaper
}

// newApplication wires the orchestration core. db may be nil, in which case
// artifacts are kept in memory.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	provider generation.Provider,
	db *sql.DB,
) (*application, error) {
	app := &application{config: cfg, logger: logger, db: db}

	var (
		resultCache cache.ResultCache
		pruner      cache.Pruner
	)
	if cfg.Cache.RedisAddr != "" {
		app.redis = cache.NewRedisClient(cfg.Cache.RedisAddr)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := app.redis.Ping(pingCtx).Err(); err != nil {
			// Cache failures degrade to misses, so an unreachable Redis is not fatal.
			logger.Warn("redis unreachable at startup", "addr", cfg.Cache.RedisAddr, "error", err)
		}
		cancel()
		resultCache = cache.NewRedisCache(app.redis, cfg.Cache.TTL())
		logger.Info("result cache initialized", "backend", "redis", "ttl", cfg.Cache.TTL())
	} else {
		mem := cache.NewMemoryCache()
		resultCache, pruner = mem, mem
		logger.Info("result cache initialized", "backend", "memory")
	}

	var artifacts store.ArtifactStore
	if db != nil {
		artifacts = postgres.NewArtifactStore(db, logger)
		logger.Info("artifact store initialized", "backend", "postgres")
	} else {
		artifacts = store.NewMemoryArtifactStore()
		logger.Info("artifact store initialized", "backend", "memory")
	}

	prompts, err := generation.NewPrompts(cfg.LLM.PromptDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	pipeline, err := task.NewPipeline(logger, task.PipelineDeps{
		Provider: provider,
		Prompts:  prompts,
		Cache:    resultCache,
		Store:    artifacts,
	}, task.PipelineConfig{
		CorrectionMaxRetries: cfg.Task.CorrectionMaxRetries,
		RetryBaseDelay:       cfg.Task.RetryBaseDelay(),
		ConfidenceThreshold:  cfg.Task.ConfidenceThreshold,
		ProviderCallTimeout:  cfg.Task.ProviderCallTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	app.registry = task.NewRegistry()
	app.hub = events.NewHub(logger, 0)
	app.scheduler = task.NewScheduler(logger, app.registry, app.hub, pipeline, task.SchedulerConfig{
		MaxConcurrentTasks: cfg.Task.MaxConcurrentTasks,
		MinMultiInputs:     cfg.Task.MinMultiInputs,
		TaskTimeout:        cfg.Task.Timeout(),
	})
	app.reaper = task.NewReaper(logger, app.registry, app.hub, app.scheduler, pruner, task.ReaperConfig{
		Retention: cfg.Task.Retention(),
		Interval:  cfg.Task.ReapInterval(),
	})

	logger.Info("application initialized",
		"max_concurrent_tasks", cfg.Task.MaxConcurrentTasks,
		"task_timeout", cfg.Task.Timeout(),
		"retention", cfg.Task.Retention())
	return app, nil
}

// run starts the scheduler and serves until ctx is cancelled, a shutdown
// signal arrives or an actor fails.
func (app *application) run(ctx context.Context) error {
	app.scheduler.Start()

	var g run.Group

	// HTTP server. Request contexts derive from baseCtx so open event
	// streams end when shutdown begins.
	{
		baseCtx, cancelBase := context.WithCancel(context.Background())
		defer cancelBase()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
			Handler:           app.setupRouter(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		}
		g.Add(
			func() error {
				app.logger.Info("starting server", "port", app.config.Server.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			},
			func(error) {
				cancelBase()
				timeout := time.Duration(app.config.Server.ShutdownTimeoutSeconds) * time.Second
				shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					app.logger.Error("server shutdown failed", "error", err)
				}
			},
		)
	}

	// Reaper.
	{
		reapCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		g.Add(
			func() error { return app.reaper.Run(reapCtx) },
			func(error) { cancel() },
		)
	}

	// Signals and parent cancellation.
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err := g.Run()

	var sigErr run.SignalError
	switch {
	case errors.As(err, &sigErr):
		app.logger.Info("shutdown signal received", "signal", sigErr.Signal.String())
		return nil
	case errors.Is(err, context.Canceled):
		app.logger.Info("shutting down")
		return nil
	default:
		return err
	}
}

// cleanup stops the scheduler and closes external connections.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
