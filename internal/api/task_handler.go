package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/scry-notes/internal/api/shared"
	"github.com/phrazzld/scry-notes/internal/domain"
	"github.com/phrazzld/scry-notes/internal/events"
	"github.com/phrazzld/scry-notes/internal/platform/logger"
	"github.com/phrazzld/scry-notes/internal/task"
)

// TaskService is the subset of the scheduler the handlers use.
type TaskService interface {
	Submit(ctx context.Context, ownerID uuid.UUID, inputs []domain.InputRef) (uuid.UUID, error)
	GetStatus(taskID uuid.UUID) (task.StatusView, error)
	GetResult(taskID uuid.UUID) (*domain.Result, error)
	List(ownerID uuid.UUID, limit int) []task.StatusView
	Cancel(ownerID, taskID uuid.UUID) bool
	Subscribe(taskID uuid.UUID) (*events.Subscription, error)
}

// DefaultHeartbeatInterval is used when the handler is built with a
// non-positive interval.
const DefaultHeartbeatInterval = 15 * time.Second

// TaskHandler serves the task endpoints and their event streams.
type TaskHandler struct {
	tasks     TaskService
	logger    *slog.Logger
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService, logger *slog.Logger, heartbeat time.Duration) *TaskHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &TaskHandler{
		tasks:     tasks,
		logger:    logger.With("component", "task_handler"),
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Routes registers the task endpoints on r. Callers apply authentication.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Post("/tasks", h.SubmitTask)
	r.Get("/tasks", h.ListTasks)
	r.Get("/tasks/{id}", h.GetTask)
	r.Delete("/tasks/{id}", h.CancelTask)
	r.Get("/tasks/{id}/result", h.GetResult)
	r.Get("/tasks/{id}/events", h.StreamEvents)
	r.Get("/tasks/{id}/ws", h.StreamWebSocket)
}

func (h *TaskHandler) log(r *http.Request) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), h.logger)
}

// SubmitTask handles POST /api/tasks.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)

	userID, ok := shared.GetUserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization required")
		return
	}

	var req SubmitRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		if errors.Is(err, shared.ErrEmptyBody) {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	inputs, err := req.ToInputs()
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	taskID, err := h.tasks.Submit(r.Context(), userID, inputs)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	log.Info("task accepted", "task_id", taskID, "input_count", len(inputs))
	w.Header().Set("Location", "/api/tasks/"+taskID.String())
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitResponse{
		TaskID: taskID,
		Status: domain.TaskStatusPending,
	})
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.GetUserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization required")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: h.tasks.List(userID, limit)})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", h.log(r))
	if !ok {
		return
	}

	view, err := h.ownedStatus(userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// GetResult handles GET /api/tasks/{id}/result.
func (h *TaskHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", h.log(r))
	if !ok {
		return
	}

	if _, err := h.ownedStatus(userID, taskID); err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}

	result, err := h.tasks.GetResult(taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task result")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ResultResponse{TaskID: taskID, Result: result})
}

// CancelTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	if _, err := h.ownedStatus(userID, taskID); err != nil {
		HandleAPIError(w, r, err, "Failed to cancel task")
		return
	}

	if !h.tasks.Cancel(userID, taskID) {
		// The task finished, or was evicted, between the lookup and the cancel.
		view, err := h.tasks.GetStatus(taskID)
		if err != nil {
			HandleAPIError(w, r, err, "Failed to cancel task")
			return
		}
		log.Debug("cancel refused", "task_id", taskID, "status", view.Status)
		HandleAPIError(w, r, domain.ErrAlreadyTerminal, "")
		return
	}

	log.Info("task cancelled by owner", "task_id", taskID)
	w.WriteHeader(http.StatusNoContent)
}

// ownedStatus returns the task's status when userID owns it.
func (h *TaskHandler) ownedStatus(userID, taskID uuid.UUID) (task.StatusView, error) {
	view, err := h.tasks.GetStatus(taskID)
	if err != nil {
		return task.StatusView{}, err
	}
	if view.OwnerID != userID {
		return task.StatusView{}, domain.ErrUnauthorized
	}
	return view, nil
}
