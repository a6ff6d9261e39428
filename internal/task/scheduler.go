package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/domain"
	"github.com/phrazzld/scry-notes/internal/events"
	"github.com/phrazzld/scry-notes/internal/redact"
	"github.com/phrazzld/scry-notes/internal/telemetry"
)

// SchedulerConfig holds the admission and run limits.
type SchedulerConfig struct {
	// MaxConcurrentTasks caps pending plus running tasks and sizes the
	// worker pool.
	MaxConcurrentTasks int
	// MinMultiInputs is the smallest input count accepted for the
	// multi-input path. A single input is always accepted.
	MinMultiInputs int
	// TaskTimeout is the wall-clock budget of one run, measured from the
	// moment a worker starts it.
	TaskTimeout time.Duration
}

// StatusView is the externally visible state of a task without its result.
type StatusView struct {
	ID           uuid.UUID                   `json:"id"`
	OwnerID      uuid.UUID                   `json:"-"`
	Status       domain.TaskStatus           `json:"status"`
	CurrentStage domain.Stage                `json:"current_stage,omitempty"`
	Progress     int                         `json:"progress"`
	CreatedAt    time.Time                   `json:"created_at"`
	StartedAt    *time.Time                  `json:"started_at,omitempty"`
	CompletedAt  *time.Time                  `json:"completed_at,omitempty"`
	ErrorMessage string                      `json:"error_message,omitempty"`
	FailedStage  domain.Stage                `json:"failed_stage,omitempty"`
	InputCount   int                         `json:"input_count"`
	Intermediate []domain.IntermediateResult `json:"intermediate_results"`
}

// NewStatusView projects a task onto its status view.
func NewStatusView(t *domain.Task) StatusView {
	return StatusView{
		ID:           t.ID,
		OwnerID:      t.OwnerID,
		Status:       t.Status,
		CurrentStage: t.CurrentStage,
		Progress:     t.Progress,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		ErrorMessage: t.ErrorMessage,
		FailedStage:  t.FailedStage,
		InputCount:   len(t.Inputs),
		Intermediate: t.Intermediate,
	}
}

// Scheduler admits tasks, runs them on a bounded worker pool and handles
// cancellation.
type Scheduler struct {
	logger   *slog.Logger
	registry *Registry
	hub      *events.Hub
	runner   Runner
	queue    *TaskQueue
	pool     *WorkerPool
	cfg      SchedulerConfig
	now      func() time.Time

	// admitMu serializes the admission check with task creation.
	admitMu sync.Mutex

	runsMu sync.Mutex
	runs   map[uuid.UUID]context.CancelFunc

	stopOnce sync.Once
}

// NewScheduler wires a scheduler around an explicit registry and hub.
func NewScheduler(
	logger *slog.Logger,
	registry *Registry,
	hub *events.Hub,
	runner Runner,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	if cfg.MinMultiInputs < 2 {
		cfg.MinMultiInputs = 2
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}

	logger = logger.With("component", "scheduler")
	// Cancelled pending jobs stay queued until a worker discards them, so
	// the buffer is larger than the admission ceiling.
	queue := NewTaskQueue(cfg.MaxConcurrentTasks*4, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: cfg.MaxConcurrentTasks}, logger)

	return &Scheduler{
		logger:   logger,
		registry: registry,
		hub:      hub,
		runner:   runner,
		queue:    queue,
		pool:     pool,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		runs:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	s.pool.Start()
}

// Stop refuses new submissions, cancels running tasks and waits for the
// workers to exit. Queued tasks that never started are cancelled.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.admitMu.Lock()
		s.queue.Close()
		s.admitMu.Unlock()

		s.pool.Stop()
	})
}

// Submit validates the inputs, applies the admission ceiling and queues a
// new task. Rejected submissions create no task.
func (s *Scheduler) Submit(ctx context.Context, ownerID uuid.UUID, inputs []domain.InputRef) (uuid.UUID, error) {
	if err := s.validate(inputs); err != nil {
		telemetry.TasksRejected.WithLabelValues("validation").Inc()
		return uuid.Nil, err
	}

	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	if active := s.registry.CountActive(); active >= s.cfg.MaxConcurrentTasks {
		telemetry.TasksRejected.WithLabelValues("admission").Inc()
		s.logger.WarnContext(ctx, "submission rejected",
			"owner_id", ownerID,
			"active", active,
			"max_concurrent_tasks", s.cfg.MaxConcurrentTasks)
		return uuid.Nil, fmt.Errorf("%w: %d of %d slots in use",
			domain.ErrAdmissionRejected, active, s.cfg.MaxConcurrentTasks)
	}

	t, err := s.registry.Create(ownerID, inputs)
	if err != nil {
		telemetry.TasksRejected.WithLabelValues("validation").Inc()
		return uuid.Nil, err
	}
	s.hub.Publish(t.ID, events.NewStatusEvent(t))

	if err := s.queue.Enqueue(s.job(t.ID)); err != nil {
		s.registry.Remove(t.ID)
		s.hub.Drop(t.ID)
		telemetry.TasksRejected.WithLabelValues("admission").Inc()
		return uuid.Nil, fmt.Errorf("%w: %w", domain.ErrAdmissionRejected, err)
	}

	telemetry.TasksSubmitted.Inc()
	s.logger.InfoContext(ctx, "task submitted",
		"task_id", t.ID,
		"owner_id", ownerID,
		"input_count", len(inputs))
	return t.ID, nil
}

func (s *Scheduler) validate(inputs []domain.InputRef) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrNoInputs)
	}
	if len(inputs) > 1 && len(inputs) < s.cfg.MinMultiInputs {
		return fmt.Errorf("%w: multi-input submissions need at least %d inputs, got %d",
			domain.ErrValidation, s.cfg.MinMultiInputs, len(inputs))
	}
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return fmt.Errorf("%w: input %d: %w", domain.ErrValidation, i, err)
		}
	}
	return nil
}

// Cancel stops a task owned by ownerID. It returns false when the task is
// unknown, owned by someone else, or already terminal.
func (s *Scheduler) Cancel(ownerID, taskID uuid.UUID) bool {
	t, err := s.registry.Mutate(taskID, func(t *domain.Task) error {
		if t.OwnerID != ownerID {
			return domain.ErrUnauthorized
		}
		return t.Cancel(s.now())
	})
	if err != nil {
		s.logger.Debug("cancel refused", "task_id", taskID, "owner_id", ownerID, "reason", err)
		return false
	}

	s.abort(taskID)
	s.hub.Publish(taskID, events.NewStatusEvent(t))
	telemetry.TasksFinished.WithLabelValues(string(domain.TaskStatusCancelled)).Inc()
	s.logger.Info("task cancelled", "task_id", taskID, "owner_id", ownerID)
	return true
}

// Get returns a copy of the task.
func (s *Scheduler) Get(taskID uuid.UUID) (*domain.Task, error) {
	return s.registry.Get(taskID)
}

// GetStatus returns the task's status view.
func (s *Scheduler) GetStatus(taskID uuid.UUID) (StatusView, error) {
	t, err := s.registry.Get(taskID)
	if err != nil {
		return StatusView{}, err
	}
	return NewStatusView(t), nil
}

// GetResult returns the result of a completed task, or domain.ErrNotReady.
func (s *Scheduler) GetResult(taskID uuid.UUID) (*domain.Result, error) {
	t, err := s.registry.Get(taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TaskStatusCompleted || t.Result == nil {
		return nil, fmt.Errorf("%w: task is %s", domain.ErrNotReady, t.Status)
	}
	return t.Result, nil
}

// List returns the owner's tasks, newest first.
func (s *Scheduler) List(ownerID uuid.UUID, limit int) []StatusView {
	tasks := s.registry.ListByOwner(ownerID, limit)
	views := make([]StatusView, len(tasks))
	for i, t := range tasks {
		views[i] = NewStatusView(t)
	}
	return views
}

// Subscribe opens an event stream for an existing task. The registry is
// consulted under the hub lock so an eviction cannot slip in between the
// lookup and the subscription.
func (s *Scheduler) Subscribe(taskID uuid.UUID) (*events.Subscription, error) {
	sub, ok := s.hub.SubscribeIfLive(taskID, func() bool { return s.registry.Has(taskID) })
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return sub, nil
}

// Abort cancels the run context of a task without changing its status. The
// reaper uses it before evicting a task.
func (s *Scheduler) Abort(taskID uuid.UUID) {
	s.abort(taskID)
}

func (s *Scheduler) abort(taskID uuid.UUID) {
	s.runsMu.Lock()
	cancel, ok := s.runs[taskID]
	s.runsMu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Scheduler) job(taskID uuid.UUID) Job {
	return JobFunc{TaskID: taskID, Fn: func(ctx context.Context) error {
		return s.execute(ctx, taskID)
	}}
}

// execute runs one task on a worker goroutine. ctx is the pool context.
func (s *Scheduler) execute(ctx context.Context, taskID uuid.UUID) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Registered before Start so a Cancel that lands after Start can always
	// find the run.
	s.runsMu.Lock()
	s.runs[taskID] = cancelRun
	s.runsMu.Unlock()
	defer func() {
		s.runsMu.Lock()
		delete(s.runs, taskID)
		s.runsMu.Unlock()
	}()

	if ctx.Err() != nil {
		s.cancelAfterRun(taskID)
		return nil
	}

	t, err := s.registry.Mutate(taskID, func(t *domain.Task) error { return t.Start(s.now()) })
	if err != nil {
		// Cancelled while queued, or already evicted.
		s.logger.Debug("skipping task", "task_id", taskID, "reason", err)
		return nil
	}

	telemetry.TasksRunning.Inc()
	defer telemetry.TasksRunning.Dec()

	logger := s.logger.With("task_id", taskID, "owner_id", t.OwnerID)
	logger.Info("task started", "input_count", len(t.Inputs), "timeout", s.cfg.TaskTimeout)
	s.hub.Publish(taskID, events.NewStatusEvent(t))

	timeoutCtx, cancelTimeout := context.WithTimeout(runCtx, s.cfg.TaskTimeout)
	defer cancelTimeout()

	result, runErr := s.runner.Run(timeoutCtx, t, &reporter{s: s, taskID: taskID})
	s.finish(logger, taskID, runCtx, timeoutCtx, result, runErr)
	return nil
}

// finish records the terminal state of a run. A run whose budget expired
// is timed out even if the runner returned a result after the deadline.
func (s *Scheduler) finish(
	logger *slog.Logger,
	taskID uuid.UUID,
	runCtx, timeoutCtx context.Context,
	result *domain.Result,
	runErr error,
) {
	if runErr == nil && result == nil {
		runErr = errors.New("pipeline returned no result")
	}

	current := domain.StageNone
	if t, err := s.registry.Get(taskID); err == nil {
		current = t.CurrentStage
	}

	switch {
	case runCtx.Err() != nil:
		// Cancelled by the owner (already terminal), by the reaper, or by shutdown.
		s.cancelAfterRun(taskID)

	case errors.Is(timeoutCtx.Err(), context.DeadlineExceeded):
		stage := stageOf(runErr, current)
		msg := fmt.Sprintf("task exceeded its %s timeout during %s stage", s.cfg.TaskTimeout, stage)
		t, err := s.registry.Mutate(taskID, func(t *domain.Task) error { return t.TimeOut(stage, msg, s.now()) })
		if err != nil {
			logger.Debug("timeout not recorded", "reason", err)
			return
		}
		telemetry.TasksFinished.WithLabelValues(string(domain.TaskStatusTimedOut)).Inc()
		logger.Warn("task timed out", "stage", stage)
		s.hub.Publish(taskID, events.NewErrorEvent(t))

	case runErr != nil:
		stage := stageOf(runErr, current)
		msg := redact.Error(runErr)
		t, err := s.registry.Mutate(taskID, func(t *domain.Task) error { return t.Fail(stage, msg, s.now()) })
		if err != nil {
			logger.Debug("failure not recorded", "reason", err)
			return
		}
		telemetry.TasksFinished.WithLabelValues(string(domain.TaskStatusFailed)).Inc()
		logger.Error("task failed", "stage", stage, "error", msg)
		s.hub.Publish(taskID, events.NewErrorEvent(t))

	default:
		t, err := s.registry.Mutate(taskID, func(t *domain.Task) error { return t.Complete(result, s.now()) })
		if err != nil {
			logger.Debug("completion discarded", "reason", err)
			return
		}
		telemetry.TasksFinished.WithLabelValues(string(domain.TaskStatusCompleted)).Inc()
		logger.Info("task completed", "content_id", result.ContentID)
		s.hub.Publish(taskID, events.NewCompleteEvent(taskID, t.Result))
	}
}

// cancelAfterRun cancels a task that is still active after its run
// context ended. Tasks already terminal are left alone.
func (s *Scheduler) cancelAfterRun(taskID uuid.UUID) {
	t, err := s.registry.Mutate(taskID, func(t *domain.Task) error { return t.Cancel(s.now()) })
	if err != nil {
		return
	}
	telemetry.TasksFinished.WithLabelValues(string(domain.TaskStatusCancelled)).Inc()
	s.logger.Info("task cancelled after its run ended", "task_id", taskID)
	s.hub.Publish(taskID, events.NewStatusEvent(t))
}

// reporter applies pipeline progress to the registry and hub.
type reporter struct {
	s      *Scheduler
	taskID uuid.UUID
}

func (r *reporter) Advance(stage domain.Stage, progress int) error {
	t, err := r.s.registry.Mutate(r.taskID, func(t *domain.Task) error { return t.Advance(stage, progress) })
	if err != nil {
		return err
	}
	r.s.hub.Publish(r.taskID, events.NewStatusEvent(t))
	return nil
}

func (r *reporter) Record(entry domain.IntermediateResult) error {
	if _, err := r.s.registry.Mutate(r.taskID, func(t *domain.Task) error { return t.Record(entry) }); err != nil {
		return err
	}
	r.s.hub.Publish(r.taskID, events.NewIntermediateEvent(r.taskID, entry))
	return nil
}
