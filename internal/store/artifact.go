package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/domain"
)

// ArtifactStore persists what a completed pipeline produced.
type ArtifactStore interface {
	// PersistArtifacts stores the transcripts, summary and knowledge record
	// of a task and returns the id of the stored content. Errors wrap
	// ErrPersistenceFailed.
	PersistArtifacts(ctx context.Context, ownerID uuid.UUID, inputs []domain.InputRef,
		result *domain.Result) (string, error)

	// SaveTags attaches tags to stored content, creating unknown tags, and
	// returns the tag ids in the order given.
	SaveTags(ctx context.Context, ownerID uuid.UUID, contentID string, tags []string) ([]string, error)
}

// NormalizeTags lowercases, trims and de-duplicates tags, dropping empty
// ones and keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimLeft(tag, "#")))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
