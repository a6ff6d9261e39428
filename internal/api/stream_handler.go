package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phrazzld/scry-notes/internal/api/shared"
	"github.com/phrazzld/scry-notes/internal/events"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 512
)

// eventSink writes one event to a stream client.
type eventSink func(e events.Event) error

// StreamEvents handles GET /api/tasks/{id}/events as a Server-Sent Events
// stream. The stream ends after the task's terminal event.
func (h *TaskHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}
	if _, err := h.ownedStatus(userID, taskID); err != nil {
		HandleAPIError(w, r, err, "Failed to open event stream")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	sub, err := h.tasks.Subscribe(taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to open event stream")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log = log.With("task_id", taskID, "transport", "sse")
	log.Debug("event stream opened")

	h.pump(r.Context(), log, sub, func(e events.Event) error {
		if err := writeSSE(w, e); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

// StreamWebSocket handles GET /api/tasks/{id}/ws. Each event is sent as one
// JSON text message; the server closes the connection after the terminal
// event.
func (h *TaskHandler) StreamWebSocket(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}
	if _, err := h.ownedStatus(userID, taskID); err != nil {
		HandleAPIError(w, r, err, "Failed to open event stream")
		return
	}

	sub, err := h.tasks.Subscribe(taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to open event stream")
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	log = log.With("task_id", taskID, "transport", "websocket")
	log.Debug("event stream opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Clients only send control frames; a read error means they went away.
	conn.SetReadLimit(wsMaxMessageSize)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	h.pump(ctx, log, sub, func(e events.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(e)
	})

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"),
		time.Now().Add(wsWriteWait),
	)
}

// pump forwards hub events to sink, interleaving heartbeats, until the
// subscription closes, the client goes away or a write fails.
func (h *TaskHandler) pump(ctx context.Context, log *slog.Logger, sub *events.Subscription, sink eventSink) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("event stream closed by client")
			return

		case now := <-ticker.C:
			if err := sink(events.NewHeartbeatEvent(sub.TaskID, now.UTC())); err != nil {
				log.Debug("heartbeat write failed", "error", err)
				return
			}

		case e, ok := <-sub.Events():
			if !ok {
				log.Debug("event stream ended")
				return
			}
			if err := sink(e); err != nil {
				log.Debug("event write failed", "error", err, "sequence", e.Sequence)
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if e.Sequence > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", e.Sequence); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	return err
}
