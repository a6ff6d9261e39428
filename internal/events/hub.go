package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 64

// Subscription receives the events of one task.
type Subscription struct {
	TaskID uuid.UUID
	ch     chan Event
	hub    *Hub
}

// Events returns the delivery channel. It is closed after a terminal event,
// on Unsubscribe, when the topic is dropped, or when the subscriber falls
// too far behind.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

type topic struct {
	seq    uint64
	last   *Event
	sealed bool
	subs   map[*Subscription]struct{}
}

// Hub is an in-process publish/subscribe hub keyed by task id.
type Hub struct {
	logger     *slog.Logger
	bufferSize int
	now        func() time.Time

	mu     sync.Mutex
	topics map[uuid.UUID]*topic
}

// NewHub creates a Hub. A non-positive bufferSize selects DefaultBufferSize.
func NewHub(logger *slog.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		logger:     logger.With("component", "notification_hub"),
		bufferSize: bufferSize,
		now:        time.Now,
		topics:     make(map[uuid.UUID]*topic),
	}
}

// topicLocked returns the topic for id, creating it. h.mu must be held.
func (h *Hub) topicLocked(id uuid.UUID) *topic {
	t, ok := h.topics[id]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		h.topics[id] = t
	}
	return t
}

// Subscribe registers a subscriber for taskID. The latest event, if any, is
// delivered first. Subscribing to a sealed topic yields the terminal snapshot
// on an already-closed channel.
func (h *Hub) Subscribe(taskID uuid.UUID) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.subscribeLocked(taskID)
}

func (h *Hub) subscribeLocked(taskID uuid.UUID) *Subscription {
	t := h.topicLocked(taskID)
	sub := &Subscription{TaskID: taskID, ch: make(chan Event, h.bufferSize), hub: h}

	if t.last != nil {
		sub.ch <- *t.last
	}
	if t.sealed {
		close(sub.ch)
		return sub
	}

	t.subs[sub] = struct{}{}
	h.logger.Debug("subscriber added", "task_id", taskID, "subscriber_count", len(t.subs))
	return sub
}

// SubscribeIfLive subscribes only when live reports that the task still
// exists. live runs under the hub lock, so a Drop that follows a successful
// check always sees and closes the new subscription. When live returns false
// no topic is created and ok is false.
func (h *Hub) SubscribeIfLive(taskID uuid.UUID, live func() bool) (sub *Subscription, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !live() {
		return nil, false
	}
	return h.subscribeLocked(taskID), true
}

// Publish assigns the next sequence number to e and delivers it to every
// subscriber of taskID. It never blocks: a subscriber whose buffer is full is
// disconnected. Events published after a terminal event are dropped.
func (h *Hub) Publish(taskID uuid.UUID, e Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topicLocked(taskID)
	if t.sealed {
		h.logger.Debug("dropping event for finished task", "task_id", taskID, "event_type", e.Type)
		return e
	}

	t.seq++
	e.TaskID = taskID
	e.Sequence = t.seq
	if e.At.IsZero() {
		e.At = h.now()
	}
	if e.Type != TypeHeartbeat {
		snapshot := e
		t.last = &snapshot
	}

	for sub := range t.subs {
		select {
		case sub.ch <- e:
		default:
			delete(t.subs, sub)
			close(sub.ch)
			h.logger.Warn("disconnecting slow subscriber",
				"task_id", taskID,
				"buffer_size", h.bufferSize)
		}
	}

	if e.IsTerminal() {
		t.sealed = true
		for sub := range t.subs {
			delete(t.subs, sub)
			close(sub.ch)
		}
	}

	return e
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[sub.TaskID]
	if !ok {
		return
	}
	if _, ok := t.subs[sub]; ok {
		delete(t.subs, sub)
		close(sub.ch)
	}
}

// Drop closes every subscriber of taskID and forgets the topic.
func (h *Hub) Drop(taskID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[taskID]
	if !ok {
		return
	}
	for sub := range t.subs {
		close(sub.ch)
	}
	delete(h.topics, taskID)
}

// SubscriberCount returns the number of live subscribers for taskID.
func (h *Hub) SubscriberCount(taskID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.topics[taskID]; ok {
		return len(t.subs)
	}
	return 0
}
