package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(1, logger.Discard())

	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 3}, logger.Discard())
	assert.Equal(t, 3, pool.WorkerCount())

	pool = NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 0}, logger.Discard())
	assert.Equal(t, 1, pool.WorkerCount())
}

func TestWorkerPool_RunsJobs(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(10, logger.Discard())
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 2}, logger.Discard())

	var wg sync.WaitGroup
	var executed atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, queue.Enqueue(JobFunc{TaskID: uuid.New(), Fn: func(context.Context) error {
			defer wg.Done()
			executed.Add(1)
			return nil
		}}))
	}

	pool.Start()
	pool.Start()
	wg.Wait()

	queue.Close()
	pool.Stop()
	assert.Equal(t, int32(5), executed.Load())
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 2
	queue := NewTaskQueue(10, logger.Discard())
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: workers}, logger.Discard())

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		require.NoError(t, queue.Enqueue(JobFunc{TaskID: uuid.New(), Fn: func(context.Context) error {
			defer wg.Done()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return nil
		}}))
	}

	pool.Start()
	wg.Wait()
	queue.Close()
	pool.Stop()

	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestWorkerPool_SurvivesPanicsAndErrors(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(10, logger.Discard())
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 1}, logger.Discard())

	var ran atomic.Bool
	require.NoError(t, queue.Enqueue(JobFunc{TaskID: uuid.New(), Fn: func(context.Context) error { panic("bad job") }}))
	require.NoError(t, queue.Enqueue(JobFunc{TaskID: uuid.New(), Fn: func(context.Context) error { return errors.New("boom") }}))
	require.NoError(t, queue.Enqueue(JobFunc{TaskID: uuid.New(), Fn: func(context.Context) error {
		ran.Store(true)
		return nil
	}}))

	pool.Start()
	queue.Close()
	pool.Stop()

	// The single worker outlives both bad jobs.
	assert.True(t, ran.Load())
}

func TestWorkerPool_StopCancelsJobContext(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(1, logger.Discard())
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 1}, logger.Discard())

	started := make(chan struct{})
	var observed error
	require.NoError(t, queue.Enqueue(JobFunc{TaskID: uuid.New(), Fn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		observed = ctx.Err()
		return nil
	}}))

	pool.Start()
	<-started
	queue.Close()
	pool.Stop()

	assert.ErrorIs(t, observed, context.Canceled)
}
