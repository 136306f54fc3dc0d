package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/draftly/draftly/internal/user/domain"
	"github.com/draftly/draftly/internal/user/repository"
)

type pgUserRepository struct {
	db repository.Querier
}

func NewPgUserRepository(db repository.Querier) repository.UserRepository {
	return &pgUserRepository{db: db}
}

const userColumns = `id, email, google_id, access_token, refresh_token, token_expiry, draftly_refresh_token, created_at`

func (r *pgUserRepository) UpsertFromGoogle(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (email, google_id, access_token, refresh_token, token_expiry, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (google_id) DO UPDATE
		SET email = EXCLUDED.email,
		    access_token = EXCLUDED.access_token,
		    -- Google only returns a refresh token on first consent; keep the
		    -- stored one when the exchange omitted it.
		    refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), users.refresh_token),
		    token_expiry = EXCLUDED.token_expiry
		RETURNING ` + userColumns
	row := r.db.QueryRow(ctx, query,
		user.Email, user.GoogleID, user.GoogleAccessToken, user.GoogleRefreshToken, user.TokenExpiry,
	)
	return scanUser(row)
}

func (r *pgUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *pgUserRepository) SetRefreshCredential(ctx context.Context, id string, credential *string) error {
	query := `UPDATE users SET draftly_refresh_token = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, credential)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.GoogleID, &u.GoogleAccessToken, &u.GoogleRefreshToken,
		&u.TokenExpiry, &u.RefreshCredential, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}
