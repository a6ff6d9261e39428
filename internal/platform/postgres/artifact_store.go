package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/domain"
	"github.com/phrazzld/scry-notes/internal/platform/logger"
	"github.com/phrazzld/scry-notes/internal/store"
)

// ArtifactStore implements store.ArtifactStore on PostgreSQL. Every call
// runs in its own transaction.
type ArtifactStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure ArtifactStore implements store.ArtifactStore interface
var _ store.ArtifactStore = (*ArtifactStore)(nil)

// NewArtifactStore creates a store over an open pgx-backed *sql.DB.
// If logger is nil, the default logger is used.
func NewArtifactStore(db *sql.DB, logger *slog.Logger) *ArtifactStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactStore{
		db:     db,
		logger: logger.With("component", "artifact_store"),
	}
}

// PersistArtifacts implements store.ArtifactStore. It writes the result row
// and one row per input, returning the new content id.
func (s *ArtifactStore) PersistArtifacts(
	ctx context.Context,
	ownerID uuid.UUID,
	inputs []domain.InputRef,
	result *domain.Result,
) (string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if result == nil {
		return "", fmt.Errorf("%w: %w: result is nil", store.ErrPersistenceFailed, store.ErrInvalidEntity)
	}

	transcripts, err := json.Marshal(result.Transcripts)
	if err != nil {
		return "", fmt.Errorf("%w: encode transcripts: %w", store.ErrPersistenceFailed, err)
	}
	individual, err := nullableJSON(result.IndividualSummaries, len(result.IndividualSummaries) > 0)
	if err != nil {
		return "", fmt.Errorf("%w: encode summaries: %w", store.ErrPersistenceFailed, err)
	}
	confidence, err := nullableJSON(result.Confidence, result.Confidence != nil)
	if err != nil {
		return "", fmt.Errorf("%w: encode confidence: %w", store.ErrPersistenceFailed, err)
	}

	contentID := uuid.New()
	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO content_artifacts (
				id, owner_id, input_count, transcripts, corrected_text, summary,
				individual_summaries, confidence, title, record_date, preview, knowledge_fallback
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			contentID,
			ownerID,
			len(inputs),
			transcripts,
			result.CorrectedText,
			result.Summary,
			individual,
			confidence,
			result.Knowledge.Title,
			result.Knowledge.Date,
			result.Knowledge.Preview,
			result.Knowledge.Fallback,
		)
		if err != nil {
			return persistError("content", "persist", err)
		}

		return insertInputs(ctx, tx, contentID, inputs)
	})
	if err != nil {
		log.Error("failed to persist artifacts",
			"error", err,
			"owner_id", ownerID,
			"input_count", len(inputs))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", store.ErrPersistenceFailed, ctxErr)
		}
		return "", ensurePersistenceFailed(err)
	}

	log.Info("artifacts persisted",
		"content_id", contentID,
		"owner_id", ownerID,
		"input_count", len(inputs))
	return contentID.String(), nil
}

// SaveTags implements store.ArtifactStore. Tag names are shared across
// owners; an existing tag keeps its id.
func (s *ArtifactStore) SaveTags(
	ctx context.Context,
	ownerID uuid.UUID,
	contentID string,
	tags []string,
) ([]string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	content, err := uuid.Parse(contentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: invalid content id %q", store.ErrPersistenceFailed, store.ErrContentNotFound, contentID)
	}

	names := store.NormalizeTags(tags)
	ids := make([]string, 0, len(names))

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		ids = ids[:0]
		for _, name := range names {
			var tagID uuid.UUID
			err := tx.QueryRowContext(ctx, `
				INSERT INTO tags (id, name)
				VALUES ($1, $2)
				ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
				RETURNING id
			`, uuid.New(), name).Scan(&tagID)
			if err != nil {
				return persistError("tag", "save_tags", err)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO content_tags (content_id, tag_id, owner_id)
				VALUES ($1, $2, $3)
				ON CONFLICT (content_id, tag_id) DO NOTHING
			`, content, tagID, ownerID)
			if err != nil {
				if IsForeignKeyViolation(err) {
					return fmt.Errorf("%w: %w", store.ErrPersistenceFailed, store.ErrContentNotFound)
				}
				return persistError("content_tag", "save_tags", err)
			}
			ids = append(ids, tagID.String())
		}
		return nil
	})
	if err != nil {
		log.Warn("failed to save tags",
			"error", err,
			"content_id", contentID,
			"tag_count", len(names))
		return nil, ensurePersistenceFailed(err)
	}

	log.Debug("tags saved", "content_id", contentID, "tag_count", len(ids))
	return ids, nil
}

// insertInputs records one row per input. Image bytes are not stored.
func insertInputs(ctx context.Context, q store.DBTX, contentID uuid.UUID, inputs []domain.InputRef) error {
	for i, in := range inputs {
		_, err := q.ExecContext(ctx, `
			INSERT INTO content_inputs (content_id, position, source_id, mime_type, body, has_image)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
		`, contentID, i, in.ID, in.MimeType, in.Text, in.IsImage())
		if err != nil {
			return persistError("content_input", "persist", err)
		}
	}
	return nil
}

func nullableJSON(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

func ensurePersistenceFailed(err error) error {
	if errors.Is(err, store.ErrPersistenceFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", store.ErrPersistenceFailed, err)
}
