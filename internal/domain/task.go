package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusTimedOut  TaskStatus = "timed_out"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true if no further state transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusTimedOut, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the task counts against the concurrency ceiling.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusPending || s == TaskStatusRunning
}

// Stage names one discrete step of the processing pipeline.
type Stage string

// Pipeline stages in execution order. StageNone means no stage is in progress.
const (
	StageNone            Stage = ""
	StageExtraction      Stage = "extraction"
	StageCorrection      Stage = "correction"
	StageSummarization   Stage = "summarization"
	StageReconciliation  Stage = "reconciliation"
	StageKnowledgeRecord Stage = "knowledge_record"
	StagePersistence     Stage = "persistence"
	StageTagging         Stage = "tagging"
)

// Progress checkpoints reported when a stage finishes.
const (
	ProgressStarted   = 5
	ProgressCompleted = 100
)

var stageCheckpoints = map[Stage]int{
	StageExtraction:      20,
	StageCorrection:      40,
	StageSummarization:   60,
	StageReconciliation:  70,
	StageKnowledgeRecord: 80,
	StagePersistence:     90,
	StageTagging:         95,
}

// Checkpoint returns the progress value reached once the stage completes.
func (s Stage) Checkpoint() int {
	return stageCheckpoints[s]
}

// InputRef is one piece of content submitted for processing. An input that
// carries image bytes goes through text extraction first.
type InputRef struct {
	ID       string `json:"id,omitempty"`
	Text     string `json:"text,omitempty"`
	Image    []byte `json:"-"`
	MimeType string `json:"mime_type,omitempty"`
}

// IsImage reports whether the input needs the extraction stage.
func (in InputRef) IsImage() bool {
	return len(in.Image) > 0
}

// Validate checks that the input carries something to process.
func (in InputRef) Validate() error {
	if !in.IsImage() && strings.TrimSpace(in.Text) == "" {
		return ErrEmptyInput
	}
	return nil
}

// KnowledgeRecord is the short structured record derived from a summary.
type KnowledgeRecord struct {
	Title   string `json:"title"`
	Date    string `json:"date"`
	Preview string `json:"preview"`
	// Fallback is true when the record was extracted heuristically because
	// the provider response could not be parsed.
	Fallback bool `json:"fallback"`
}

// ConfidenceReport records how well a composite summary agrees with each of
// the individual summaries it was synthesized from.
type ConfidenceReport struct {
	InitialScores  []float64 `json:"initial_scores"`
	Scores         []float64 `json:"scores"`
	Mean           float64   `json:"mean"`
	Threshold      float64   `json:"threshold"`
	Corrected      bool      `json:"corrected"`
	CorrectedIndex int       `json:"corrected_index"`
	BelowThreshold bool      `json:"below_threshold"`
}

// Result holds the artifacts produced by a completed task.
type Result struct {
	Transcripts         []string          `json:"transcripts"`
	CorrectedText       string            `json:"corrected_text"`
	Summary             string            `json:"summary"`
	IndividualSummaries []string          `json:"individual_summaries,omitempty"`
	Confidence          *ConfidenceReport `json:"confidence,omitempty"`
	Knowledge           KnowledgeRecord   `json:"knowledge"`
	ContentID           string            `json:"content_id"`
	Tags                []string          `json:"tags,omitempty"`
	TagIDs              []string          `json:"tag_ids,omitempty"`
}

// IntermediateResult is one entry of a task's append-only stage log.
type IntermediateResult struct {
	Stage   Stage     `json:"stage"`
	Payload string    `json:"payload,omitempty"`
	Cached  bool      `json:"cached"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

// Task is one request's worth of pipeline work, tracked end to end.
// Its fields are mutated only through the transition methods below so the
// status, progress, result and error invariants always hold.
type Task struct {
	ID           uuid.UUID            `json:"id"`
	OwnerID      uuid.UUID            `json:"owner_id"`
	Inputs       []InputRef           `json:"inputs"`
	Status       TaskStatus           `json:"status"`
	CurrentStage Stage                `json:"current_stage,omitempty"`
	Progress     int                  `json:"progress"`
	CreatedAt    time.Time            `json:"created_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	Result       *Result              `json:"result,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	FailedStage  Stage                `json:"failed_stage,omitempty"`
	Intermediate []IntermediateResult `json:"intermediate_results"`
}

// NewTask creates a pending task for the given owner and inputs.
func NewTask(ownerID uuid.UUID, inputs []InputRef) (*Task, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrEmptyOwnerID)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrNoInputs)
	}
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("%w: input %d: %w", ErrValidation, i, err)
		}
	}

	copied := make([]InputRef, len(inputs))
	copy(copied, inputs)

	return &Task{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		Inputs:       copied,
		Status:       TaskStatusPending,
		CreatedAt:    time.Now().UTC(),
		Intermediate: []IntermediateResult{},
	}, nil
}

// IsMultiInput reports whether the task runs the multi-input summarization path.
func (t *Task) IsMultiInput() bool {
	return len(t.Inputs) > 1
}

// Start moves a pending task to running.
func (t *Task) Start(now time.Time) error {
	if err := t.requireStatus(TaskStatusPending); err != nil {
		return err
	}
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	t.setProgress(ProgressStarted)
	return nil
}

// Advance marks the given stage as the one in progress and raises progress
// to at least the given value. Progress never goes backwards.
func (t *Task) Advance(stage Stage, progress int) error {
	if err := t.requireStatus(TaskStatusRunning); err != nil {
		return err
	}
	t.CurrentStage = stage
	t.setProgress(progress)
	return nil
}

// Record appends an entry to the intermediate-result log.
func (t *Task) Record(entry IntermediateResult) error {
	if err := t.requireStatus(TaskStatusRunning); err != nil {
		return err
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	t.Intermediate = append(t.Intermediate, entry)
	return nil
}

// Complete finishes a running task with its result.
func (t *Task) Complete(result *Result, now time.Time) error {
	if result == nil {
		return fmt.Errorf("%w: completed task requires a result", ErrInvalidTransition)
	}
	if err := t.requireStatus(TaskStatusRunning); err != nil {
		return err
	}
	t.finish(TaskStatusCompleted, now)
	t.Progress = ProgressCompleted
	t.Result = result
	return nil
}

// Fail finishes a running task with an error attributed to a stage.
func (t *Task) Fail(stage Stage, message string, now time.Time) error {
	if err := t.requireStatus(TaskStatusRunning); err != nil {
		return err
	}
	t.finish(TaskStatusFailed, now)
	t.FailedStage = stage
	t.ErrorMessage = nonEmpty(message, fmt.Sprintf("%s stage failed", stage))
	return nil
}

// TimeOut finishes a running task whose wall-clock budget was exceeded.
func (t *Task) TimeOut(stage Stage, message string, now time.Time) error {
	if err := t.requireStatus(TaskStatusRunning); err != nil {
		return err
	}
	t.finish(TaskStatusTimedOut, now)
	t.FailedStage = stage
	t.ErrorMessage = nonEmpty(message, fmt.Sprintf("timed out during %s stage", stage))
	return nil
}

// Cancel finishes a pending or running task at the owner's request.
func (t *Task) Cancel(now time.Time) error {
	if t.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	t.finish(TaskStatusCancelled, now)
	return nil
}

// Clone returns a deep copy safe to hand to readers outside the registry.
func (t *Task) Clone() *Task {
	c := *t
	c.Inputs = append([]InputRef(nil), t.Inputs...)
	c.Intermediate = append([]IntermediateResult{}, t.Intermediate...)
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	if t.Result != nil {
		c.Result = t.Result.Clone()
	}
	return &c
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	c := *r
	c.Transcripts = append([]string(nil), r.Transcripts...)
	c.IndividualSummaries = append([]string(nil), r.IndividualSummaries...)
	c.Tags = append([]string(nil), r.Tags...)
	c.TagIDs = append([]string(nil), r.TagIDs...)
	if r.Confidence != nil {
		conf := *r.Confidence
		conf.Scores = append([]float64(nil), r.Confidence.Scores...)
		conf.InitialScores = append([]float64(nil), r.Confidence.InitialScores...)
		c.Confidence = &conf
	}
	return &c
}

func (t *Task) requireStatus(want TaskStatus) error {
	if t.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if t.Status != want {
		return fmt.Errorf("%w: task is %s, expected %s", ErrInvalidTransition, t.Status, want)
	}
	return nil
}

func (t *Task) finish(status TaskStatus, now time.Time) {
	t.Status = status
	t.CurrentStage = StageNone
	t.CompletedAt = &now
}

func (t *Task) setProgress(p int) {
	if p > ProgressCompleted {
		p = ProgressCompleted
	}
	if p > t.Progress {
		t.Progress = p
	}
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
