package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/draftly/draftly/internal/user/domain"
)

var ErrUserNotFound = errors.New("user not found")

// Querier is satisfied by *pgxpool.Pool, pgx.Tx and the pgxmock pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository interface {
	// UpsertFromGoogle inserts the user on first login and refreshes the
	// stored OAuth material on subsequent logins, keyed on google_id.
	UpsertFromGoogle(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// SetRefreshCredential overwrites (or, with nil, clears) the stored
	// Draftly refresh credential, revoking every outstanding one.
	SetRefreshCredential(ctx context.Context, id string, credential *string) error
}
