package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/domain"
)

// StoredContent is one persisted task output.
type StoredContent struct {
	ID      string
	OwnerID uuid.UUID
	Inputs  []domain.InputRef
	Result  domain.Result
	TagIDs  []string
}

// MemoryArtifactStore is an ArtifactStore that keeps everything in process
// memory. It is used when no database is configured.
type MemoryArtifactStore struct {
	mu      sync.RWMutex
	content map[string]*StoredContent
	tags    map[string]string // name -> id
}

var _ ArtifactStore = (*MemoryArtifactStore)(nil)

// NewMemoryArtifactStore creates an empty store.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{
		content: make(map[string]*StoredContent),
		tags:    make(map[string]string),
	}
}

// PersistArtifacts implements ArtifactStore.
func (s *MemoryArtifactStore) PersistArtifacts(
	ctx context.Context,
	ownerID uuid.UUID,
	inputs []domain.InputRef,
	result *domain.Result,
) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	if result == nil {
		return "", fmt.Errorf("%w: %w: result is nil", ErrPersistenceFailed, ErrInvalidEntity)
	}

	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[id] = &StoredContent{
		ID:      id,
		OwnerID: ownerID,
		Inputs:  append([]domain.InputRef(nil), inputs...),
		Result:  *result.Clone(),
	}
	return id, nil
}

// SaveTags implements ArtifactStore.
func (s *MemoryArtifactStore) SaveTags(
	ctx context.Context,
	_ uuid.UUID,
	contentID string,
	tags []string,
) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.content[contentID]
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, ErrContentNotFound)
	}

	normalized := NormalizeTags(tags)
	ids := make([]string, 0, len(normalized))
	for _, name := range normalized {
		id, ok := s.tags[name]
		if !ok {
			id = uuid.NewString()
			s.tags[name] = id
		}
		ids = append(ids, id)
	}
	c.TagIDs = append(c.TagIDs, ids...)
	return ids, nil
}

// Get returns a copy of the stored content.
func (s *MemoryArtifactStore) Get(contentID string) (StoredContent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.content[contentID]
	if !ok {
		return StoredContent{}, false
	}
	out := *c
	out.Result = *c.Result.Clone()
	out.TagIDs = append([]string(nil), c.TagIDs...)
	return out, true
}
