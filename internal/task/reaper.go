package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/cache"
	"github.com/phrazzld/scry-notes/internal/events"
	"github.com/phrazzld/scry-notes/internal/telemetry"
)

// Aborter cancels the run of an active task.
type Aborter interface {
	Abort(taskID uuid.UUID)
}

// ReaperConfig holds the eviction schedule.
type ReaperConfig struct {
	// Retention is how long a task stays queryable after creation.
	Retention time.Duration
	// Interval is the time between sweeps.
	Interval time.Duration
}

// Reaper evicts tasks older than the retention window along with their
// hub topics and, for in-process caches, expired cache entries.
type Reaper struct {
	logger   *slog.Logger
	registry *Registry
	hub      *events.Hub
	aborter  Aborter
	pruner   cache.Pruner
	cfg      ReaperConfig
	now      func() time.Time
}

// NewReaper creates a reaper. aborter and pruner may be nil.
func NewReaper(
	logger *slog.Logger,
	registry *Registry,
	hub *events.Hub,
	aborter Aborter,
	pruner cache.Pruner,
	cfg ReaperConfig,
) *Reaper {
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Reaper{
		logger:   logger.With("component", "reaper"),
		registry: registry,
		hub:      hub,
		aborter:  aborter,
		pruner:   pruner,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on every tick until ctx is cancelled. It always returns
// ctx.Err(), which suits a run.Group actor.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.cfg.Interval, "retention", r.cfg.Retention)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep evicts everything created before now minus the retention window
// and returns the number of tasks removed.
func (r *Reaper) Sweep() int {
	cutoff := r.now().Add(-r.cfg.Retention)

	removed := 0
	for _, id := range r.registry.OlderThan(cutoff) {
		if t, err := r.registry.Get(id); err == nil && t.Status.IsActive() && r.aborter != nil {
			r.logger.Warn("evicting task that is still active", "task_id", id, "status", t.Status)
			r.aborter.Abort(id)
		}
		if r.registry.Remove(id) {
			removed++
		}
		r.hub.Drop(id)
	}
	telemetry.TasksReaped.Add(float64(removed))

	pruned := 0
	if r.pruner != nil {
		pruned = r.pruner.Prune(cutoff)
	}

	if removed > 0 || pruned > 0 {
		r.logger.Info("sweep finished",
			"tasks_removed", removed,
			"cache_entries_pruned", pruned,
			"cutoff", cutoff)
	}
	return removed
}
