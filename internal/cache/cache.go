// Package cache provides content-addressed storage of stage outputs so that
// identical text submitted to the same stage is never sent to a provider twice.
package cache

import (
	"context"
	"errors"
	"time"
)

// Kind identifies the stage an artifact was produced by. A cache entry for one
// kind is never returned for a lookup of another kind.
type Kind string

// Cacheable stage kinds
const (
	KindCorrection    Kind = "correction"
	KindSummary       Kind = "summary"
	KindKnowledge     Kind = "knowledge"
	KindComprehensive Kind = "comprehensive"
)

// ErrEmptyArtifact is returned when storing an empty artifact.
var ErrEmptyArtifact = errors.New("cannot cache an empty artifact")

// ResultCache maps (fingerprint, kind) pairs to previously computed outputs.
type ResultCache interface {
	// Lookup returns the cached artifact and true on a hit.
	Lookup(ctx context.Context, fp Fingerprint, kind Kind) (string, bool, error)

	// Store records an artifact for later lookups.
	Store(ctx context.Context, fp Fingerprint, kind Kind, artifact string) error
}

// Pruner is implemented by caches that hold entries in process memory and
// rely on the reaper for eviction.
type Pruner interface {
	// Prune removes entries stored before the cutoff and returns how many
	// were removed.
	Prune(before time.Time) int
}
