package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// setupAppDatabase opens a pgx-backed connection pool and verifies it.
func setupAppDatabase(ctx context.Context, dbURL string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established", "url", maskPassword(dbURL))
	return db, nil
}

// maskPassword masks the password in a database URL for logging.
func maskPassword(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil || parsedURL.User == nil {
		return dbURL
	}

	if _, hasPassword := parsedURL.User.Password(); hasPassword {
		parsedURL.User = url.UserPassword(parsedURL.User.Username(), "****")
	}

	return parsedURL.String()
}
