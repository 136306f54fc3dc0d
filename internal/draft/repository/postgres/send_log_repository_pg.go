package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/draftly/draftly/internal/draft/domain"
	"github.com/draftly/draftly/internal/draft/repository"
)

const pgUniqueViolation = "23505"

type pgSendLogRepository struct {
	db repository.Querier
}

func NewPgSendLogRepository(db repository.Querier) repository.SendLogRepository {
	return &pgSendLogRepository{db: db}
}

const sendLogColumns = `id, draft_id, attempt, status, error_code, error_message, timestamp`

func (r *pgSendLogRepository) LatestSuccess(ctx context.Context, draftID string) (*domain.SendLog, error) {
	query := `
		SELECT ` + sendLogColumns + ` FROM send_logs
		WHERE draft_id = $1 AND status = 'success'
		ORDER BY timestamp DESC
		LIMIT 1`
	log, err := scanSendLog(r.db.QueryRow(ctx, query, draftID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrSendLogNotFound
		}
		return nil, err
	}
	return log, nil
}

func (r *pgSendLogRepository) NextAttempt(ctx context.Context, draftID string) (int, error) {
	var next int
	query := `SELECT COALESCE(MAX(attempt), 0) + 1 FROM send_logs WHERE draft_id = $1`
	if err := r.db.QueryRow(ctx, query, draftID).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *pgSendLogRepository) Insert(ctx context.Context, log *domain.SendLog) (*domain.SendLog, error) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO send_logs (id, draft_id, attempt, status, error_code, error_message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + sendLogColumns
	row := r.db.QueryRow(ctx, query,
		log.ID, log.DraftID, log.Attempt, log.Status, log.ErrorCode, log.ErrorMessage, log.Timestamp,
	)
	inserted, err := scanSendLog(row)
	if err != nil {
		// The partial unique index on (draft_id) WHERE status='success'
		// closes the check-then-insert race: the second of two concurrent
		// dispatches fails here instead of double-recording delivery.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, repository.ErrDuplicateSuccess
		}
		return nil, err
	}
	return inserted, nil
}

func scanSendLog(row pgx.Row) (*domain.SendLog, error) {
	l := &domain.SendLog{}
	err := row.Scan(&l.ID, &l.DraftID, &l.Attempt, &l.Status, &l.ErrorCode, &l.ErrorMessage, &l.Timestamp)
	if err != nil {
		return nil, err
	}
	return l, nil
}
