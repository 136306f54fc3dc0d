package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/draftly/draftly/internal/draft/domain"
	"github.com/draftly/draftly/internal/draft/repository"
	"github.com/draftly/draftly/internal/mailbox"
)

type pgDraftRepository struct {
	db repository.Querier
}

func NewPgDraftRepository(db repository.Querier) repository.DraftRepository {
	return &pgDraftRepository{db: db}
}

const draftColumns = `id, user_id, thread_id, message_id, tone, prompt, context_snapshot, body, status, idempotency_key, created_at, updated_at`

func (r *pgDraftRepository) UpsertByKey(ctx context.Context, draft *domain.Draft) (*domain.Draft, error) {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	if draft.IdempotencyKey == "" {
		draft.IdempotencyKey = uuid.NewString()
	}
	snapshot, err := json.Marshal(domain.SanitizeSnapshot(draft.ContextSnapshot))
	if err != nil {
		return nil, fmt.Errorf("failed to encode context snapshot: %w", err)
	}
	now := time.Now().UTC()

	// A single conditional statement keeps concurrent regenerations for the
	// same key from racing into duplicate rows. The conflict arm never
	// touches id or idempotency_key, preserving lineage on regeneration.
	query := `
		INSERT INTO drafts (id, user_id, thread_id, message_id, tone, prompt, context_snapshot, body, status, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (user_id, thread_id, message_id) DO UPDATE
		SET tone = EXCLUDED.tone,
		    prompt = EXCLUDED.prompt,
		    context_snapshot = EXCLUDED.context_snapshot,
		    body = EXCLUDED.body,
		    updated_at = EXCLUDED.updated_at
		RETURNING ` + draftColumns
	row := r.db.QueryRow(ctx, query,
		draft.ID, draft.UserID, draft.ThreadID, draft.MessageID, draft.Tone, draft.Prompt,
		string(snapshot), draft.Body, domain.StatusDrafted, draft.IdempotencyKey, now,
	)
	return scanDraft(row)
}

func (r *pgDraftRepository) SetBody(ctx context.Context, id, body string) (*domain.Draft, error) {
	query := `UPDATE drafts SET body = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + draftColumns
	return r.fetchOne(ctx, query, id, body)
}

func (r *pgDraftRepository) SetStatus(ctx context.Context, id string, status domain.Status) (*domain.Draft, error) {
	query := `UPDATE drafts SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + draftColumns
	return r.fetchOne(ctx, query, id, status)
}

func (r *pgDraftRepository) GetByID(ctx context.Context, id string) (*domain.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = $1`
	return r.fetchOne(ctx, query, id)
}

func (r *pgDraftRepository) GetByIDForUser(ctx context.Context, id, userID string) (*domain.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = $1 AND user_id = $2`
	return r.fetchOne(ctx, query, id, userID)
}

func (r *pgDraftRepository) GetByKey(ctx context.Context, userID, threadID, messageID string) (*domain.Draft, error) {
	query := `
		SELECT ` + draftColumns + ` FROM drafts
		WHERE user_id = $1 AND thread_id = $2 AND message_id = $3
		ORDER BY updated_at DESC
		LIMIT 1`
	return r.fetchOne(ctx, query, userID, threadID, messageID)
}

func (r *pgDraftRepository) ListByUser(ctx context.Context, userID string) ([]domain.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []domain.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *d)
	}
	return drafts, rows.Err()
}

func (r *pgDraftRepository) fetchOne(ctx context.Context, query string, args ...any) (*domain.Draft, error) {
	d, err := scanDraft(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrDraftNotFound
		}
		return nil, err
	}
	return d, nil
}

func scanDraft(row pgx.Row) (*domain.Draft, error) {
	d := &domain.Draft{}
	var snapshot []byte
	err := row.Scan(
		&d.ID, &d.UserID, &d.ThreadID, &d.MessageID, &d.Tone, &d.Prompt,
		&snapshot, &d.Body, &d.Status, &d.IdempotencyKey, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		var snap mailbox.MessageContext
		if err := json.Unmarshal(snapshot, &snap); err != nil {
			return nil, fmt.Errorf("failed to decode context snapshot for draft %s: %w", d.ID, err)
		}
		d.ContextSnapshot = snap
	}
	return d, nil
}
