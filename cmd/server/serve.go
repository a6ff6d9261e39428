package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phrazzld/scry-notes/internal/config"
	"github.com/phrazzld/scry-notes/internal/platform/gemini"
	"github.com/phrazzld/scry-notes/internal/platform/logger"
	"github.com/phrazzld/scry-notes/internal/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server, scheduler and reaper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database", cfg.Database.URL != "",
		"redis", cfg.Cache.RedisAddr != "")

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer shutdownTracer()

	var db *sql.DB
	if cfg.Database.URL != "" {
		if db, err = setupAppDatabase(ctx, cfg.Database.URL, log); err != nil {
			return err
		}
	}

	provider, err := gemini.NewProvider(ctx, log, cfg.LLM)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}

	app, err := newApplication(ctx, cfg, log, provider, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return err
	}
	defer app.cleanup()

	return app.run(ctx)
}
