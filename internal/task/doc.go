// Package task is the orchestration core: it owns the in-memory task
// registry, admits submissions under a concurrency ceiling, runs each task's
// pipeline on a bounded worker pool, and evicts expired tasks.
//
// The moving parts are:
//   - Registry: the authoritative map of tasks, mutated only under its lock.
//   - Scheduler: admission, cancellation and run lifecycle.
//   - TaskQueue and WorkerPool: the bounded execution substrate.
//   - Pipeline: the ordered stages of one task (extraction, correction,
//     summarization, reconciliation, knowledge record, persistence, tagging).
//   - Reaper: periodic eviction after the retention window.
//
// Progress flows out through events.Hub; nothing polls the registry.
package task
