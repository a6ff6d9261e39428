package task

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/domain"
)

// Registry is the authoritative in-memory store of tasks. Readers always
// receive deep copies; writers go through Mutate so every change happens
// under the registry lock.
type Registry struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[uuid.UUID]*domain.Task)}
}

// Create validates the inputs and stores a new pending task.
func (r *Registry) Create(ownerID uuid.UUID, inputs []domain.InputRef) (*domain.Task, error) {
	t, err := domain.NewTask(ownerID, inputs)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
	return t.Clone(), nil
}

// Get returns a copy of the task.
func (r *Registry) Get(id uuid.UUID) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return t.Clone(), nil
}

// ListByOwner returns copies of the owner's tasks, newest first. A
// non-positive limit returns all of them.
func (r *Registry) ListByOwner(ownerID uuid.UUID, limit int) []*domain.Task {
	r.mu.RLock()
	out := make([]*domain.Task, 0)
	for _, t := range r.tasks {
		if t.OwnerID == ownerID {
			out = append(out, t.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Mutate applies fn to the task under the registry lock and returns a copy
// of the result. fn works on a copy, so when it returns an error the stored
// task is left unchanged.
func (r *Registry) Mutate(id uuid.UUID, fn func(t *domain.Task) error) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	r.tasks[id] = working
	return working.Clone(), nil
}

// Has reports whether the task is held.
func (r *Registry) Has(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tasks[id]
	return ok
}

// Remove deletes the task and reports whether it existed.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.tasks[id]
	delete(r.tasks, id)
	return ok
}

// CountActive returns the number of pending and running tasks.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, t := range r.tasks {
		if t.Status.IsActive() {
			n++
		}
	}
	return n
}

// CountByStatus returns how many tasks are in the given status.
func (r *Registry) CountByStatus(status domain.TaskStatus) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, t := range r.tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// OlderThan returns the ids of tasks created before cutoff.
func (r *Registry) OlderThan(cutoff time.Time) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []uuid.UUID
	for id, t := range r.tasks {
		if t.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of tasks held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
