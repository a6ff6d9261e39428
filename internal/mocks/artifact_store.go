package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/domain"
	"github.com/phrazzld/scry-notes/internal/store"
)

// MockArtifactStore implements store.ArtifactStore for testing.
type MockArtifactStore struct {
	PersistArtifactsFn func(ctx context.Context, ownerID uuid.UUID, inputs []domain.InputRef,
		result *domain.Result) (string, error)
	SaveTagsFn func(ctx context.Context, ownerID uuid.UUID, contentID string, tags []string) ([]string, error)

	mu           sync.Mutex
	PersistCalls int
	SavedTags    [][]string
	LastResult   *domain.Result
}

var _ store.ArtifactStore = (*MockArtifactStore)(nil)

// PersistArtifacts implements store.ArtifactStore. Without a hook it returns
// a fresh id.
func (m *MockArtifactStore) PersistArtifacts(
	ctx context.Context,
	ownerID uuid.UUID,
	inputs []domain.InputRef,
	result *domain.Result,
) (string, error) {
	m.mu.Lock()
	m.PersistCalls++
	if result != nil {
		m.LastResult = result.Clone()
	}
	m.mu.Unlock()

	if m.PersistArtifactsFn != nil {
		return m.PersistArtifactsFn(ctx, ownerID, inputs, result)
	}
	return uuid.NewString(), nil
}

// SaveTags implements store.ArtifactStore. Without a hook it returns one id
// per tag.
func (m *MockArtifactStore) SaveTags(
	ctx context.Context,
	ownerID uuid.UUID,
	contentID string,
	tags []string,
) ([]string, error) {
	m.mu.Lock()
	m.SavedTags = append(m.SavedTags, append([]string(nil), tags...))
	m.mu.Unlock()

	if m.SaveTagsFn != nil {
		return m.SaveTagsFn(ctx, ownerID, contentID, tags)
	}
	ids := make([]string, len(tags))
	for i := range tags {
		ids[i] = uuid.NewString()
	}
	return ids, nil
}

// Persisted returns the number of PersistArtifacts calls.
func (m *MockArtifactStore) Persisted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PersistCalls
}
