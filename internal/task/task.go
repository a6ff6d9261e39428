package task

import (
	"context"

	"github.com/google/uuid"
)

// Job is a unit of work executed by the WorkerPool.
type Job interface {
	// ID returns the id of the task the job runs.
	ID() uuid.UUID

	// Execute runs the job. ctx is cancelled when the pool stops.
	Execute(ctx context.Context) error
}

// JobFunc adapts a function to the Job interface.
type JobFunc struct {
	TaskID uuid.UUID
	Fn     func(ctx context.Context) error
}

// ID implements Job.
func (j JobFunc) ID() uuid.UUID { return j.TaskID }

// Execute implements Job.
func (j JobFunc) Execute(ctx context.Context) error { return j.Fn(ctx) }

// TaskQueueReader provides read-only access to the job channel
// allowing workers to consume jobs without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming jobs
	GetChannel() <-chan Job
}

// TaskQueueWriter provides write access to the job queue
type TaskQueueWriter interface {
	// Enqueue adds a job to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(job Job) error

	// Close closes the queue, preventing further submission
	Close()
}
