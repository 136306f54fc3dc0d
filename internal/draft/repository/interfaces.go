package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/draftly/draftly/internal/draft/domain"
)

var (
	ErrDraftNotFound   = errors.New("draft not found")
	ErrSendLogNotFound = errors.New("send log not found")
	// ErrDuplicateSuccess is returned when inserting a second success row for
	// a draft; the storage-level unique constraint makes the send pipeline's
	// idempotency guarantee hold even across concurrent attempts.
	ErrDuplicateSuccess = errors.New("a success send log already exists for this draft")
)

// Querier is satisfied by *pgxpool.Pool, pgx.Tx and the pgxmock pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DraftRepository interface {
	// UpsertByKey atomically updates the unique row for
	// (UserID, ThreadID, MessageID), overwriting tone, prompt, snapshot and
	// body, or inserts a fresh row with status "drafted". ID and
	// IdempotencyKey of an existing row are preserved.
	UpsertByKey(ctx context.Context, draft *domain.Draft) (*domain.Draft, error)
	SetBody(ctx context.Context, id, body string) (*domain.Draft, error)
	SetStatus(ctx context.Context, id string, status domain.Status) (*domain.Draft, error)
	GetByID(ctx context.Context, id string) (*domain.Draft, error)
	GetByKey(ctx context.Context, userID, threadID, messageID string) (*domain.Draft, error)
	GetByIDForUser(ctx context.Context, id, userID string) (*domain.Draft, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Draft, error)
}

type SendLogRepository interface {
	// LatestSuccess returns the most recent success row for the draft, or
	// ErrSendLogNotFound if delivery never succeeded.
	LatestSuccess(ctx context.Context, draftID string) (*domain.SendLog, error)
	// NextAttempt computes max(attempt)+1 for the draft.
	NextAttempt(ctx context.Context, draftID string) (int, error)
	// Insert appends a log row. Inserting a second success row for the same
	// draft fails with ErrDuplicateSuccess.
	Insert(ctx context.Context, log *domain.SendLog) (*domain.SendLog, error)
}
