package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/domain"
)

// EventType names the kind of payload an Event carries.
type EventType string

// Event types delivered to subscribers.
const (
	TypeStatus       EventType = "status"
	TypeIntermediate EventType = "intermediate"
	TypeComplete     EventType = "complete"
	TypeError        EventType = "error"
	TypeHeartbeat    EventType = "heartbeat"
)

// Event is one notification about a task.
type Event struct {
	Type     EventType `json:"type"`
	TaskID   uuid.UUID `json:"task_id"`
	Sequence uint64    `json:"sequence"`
	At       time.Time `json:"at"`
	Data     any       `json:"data,omitempty"`
}

// StatusData reports a lifecycle or progress change.
type StatusData struct {
	Status   domain.TaskStatus `json:"status"`
	Stage    domain.Stage      `json:"stage,omitempty"`
	Progress int               `json:"progress"`
}

// IntermediateData carries the output of a finished stage.
type IntermediateData struct {
	Stage   domain.Stage `json:"stage"`
	Payload string       `json:"payload,omitempty"`
	Cached  bool         `json:"cached"`
	Note    string       `json:"note,omitempty"`
}

// CompleteData carries the final result.
type CompleteData struct {
	Result *domain.Result `json:"result"`
}

// ErrorData reports a failed or timed-out task.
type ErrorData struct {
	Status  domain.TaskStatus `json:"status"`
	Stage   domain.Stage      `json:"stage,omitempty"`
	Message string            `json:"message"`
}

// IsTerminal reports whether no further events will follow for the task.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case TypeComplete, TypeError:
		return true
	case TypeStatus:
		if d, ok := e.Data.(StatusData); ok {
			return d.Status.IsTerminal()
		}
	}
	return false
}

// NewStatusEvent describes the current status of t.
func NewStatusEvent(t *domain.Task) Event {
	return Event{
		Type:   TypeStatus,
		TaskID: t.ID,
		Data:   StatusData{Status: t.Status, Stage: t.CurrentStage, Progress: t.Progress},
	}
}

// NewIntermediateEvent wraps a recorded stage output.
func NewIntermediateEvent(taskID uuid.UUID, r domain.IntermediateResult) Event {
	return Event{
		Type:   TypeIntermediate,
		TaskID: taskID,
		Data:   IntermediateData{Stage: r.Stage, Payload: r.Payload, Cached: r.Cached, Note: r.Note},
	}
}

// NewCompleteEvent wraps the result of a completed task.
func NewCompleteEvent(taskID uuid.UUID, result *domain.Result) Event {
	return Event{Type: TypeComplete, TaskID: taskID, Data: CompleteData{Result: result}}
}

// NewErrorEvent describes a failed or timed-out task.
func NewErrorEvent(t *domain.Task) Event {
	return Event{
		Type:   TypeError,
		TaskID: t.ID,
		Data:   ErrorData{Status: t.Status, Stage: t.FailedStage, Message: t.ErrorMessage},
	}
}

// NewHeartbeatEvent is sent by stream adapters to keep idle connections open.
// Heartbeats are not sequenced.
func NewHeartbeatEvent(taskID uuid.UUID, at time.Time) Event {
	return Event{Type: TypeHeartbeat, TaskID: taskID, At: at}
}
