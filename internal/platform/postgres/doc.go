// Package postgres implements store.ArtifactStore on PostgreSQL through the
// pgx database/sql driver, and carries the goose migrations for the
// artifact tables.
package postgres
