// Package store defines the persistence boundary for task artifacts.
// The pipeline depends only on ArtifactStore; Postgres and in-memory
// implementations live in internal/platform/postgres and this package.
package store
