package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/phrazzld/scry-notes/internal/config"
	"github.com/phrazzld/scry-notes/internal/platform/logger"
	"github.com/phrazzld/scry-notes/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var (
		dbURL    string
		logLevel string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "migrate [up|down|reset|status|version]",
		Short: "Run database migrations",
		Long: `Apply or inspect the artifact schema migrations embedded in the binary.

The database URL is read from --database-url or the SCRY_DATABASE_URL
environment variable.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := args[0]
			if !slices.Contains(postgres.MigrationCommands, command) {
				return fmt.Errorf("unknown migration command %q (expected one of %v)",
					command, postgres.MigrationCommands)
			}
			if dbURL == "" {
				return fmt.Errorf("database URL is required (--database-url or %s_DATABASE_URL)", config.EnvPrefix)
			}

			log := logger.Setup(config.ServerConfig{LogLevel: logLevel})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := setupAppDatabase(ctx, dbURL, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return postgres.Migrate(ctx, db, command, log)
		},
	}

	cmd.Flags().StringVar(&dbURL, "database-url", os.Getenv(config.EnvPrefix+"_DATABASE_URL"), "PostgreSQL connection URL")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug | info | warn | error")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall migration timeout")
	return cmd
}
