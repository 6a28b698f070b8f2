package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/models"
)

type TokenRepo struct {
	DB DBTX
}

const createToken = `-- name: CreateToken
INSERT INTO access_tokens (article_slug, token_id, email, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING article_slug, token_id, email, created_at, expires_at
`

func (r *TokenRepo) Create(ctx context.Context, token models.AccessToken) (models.AccessToken, error) {
	rows, _ := r.DB.Query(ctx, createToken, token.ArticleSlug, token.TokenID, token.Email, token.CreatedAt, token.ExpiresAt)
	created, err := pgx.CollectOneRow(rows, rowToToken)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrTokenCollision
		}

		return created, dbError(err)
	}

	return created, nil
}

const getToken = `-- name: GetToken
SELECT article_slug, token_id, email, created_at, expires_at
FROM access_tokens
WHERE article_slug = $1 AND token_id = $2
`

// Get token
// It returns the token even if it is expired already
func (r *TokenRepo) Get(ctx context.Context, articleSlug string, tokenID string) (models.AccessToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, articleSlug, tokenID)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, dbError(err)
	}
}

const extendToken = `-- name: ExtendToken
UPDATE access_tokens
SET expires_at = $4
WHERE article_slug = $1 AND token_id = $2 AND email = $3
RETURNING article_slug, token_id, email, created_at, expires_at
`

// Extend overwrites expiration in place
// Last write wins if called concurrently, each write leaves valid token
func (r *TokenRepo) Extend(ctx context.Context, articleSlug string, tokenID string, email string, expiresAt time.Time) (models.AccessToken, error) {
	rows, _ := r.DB.Query(ctx, extendToken, articleSlug, tokenID, email, expiresAt)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, dbError(err)
	}
}

func rowToToken(row pgx.CollectableRow) (models.AccessToken, error) {
	var t models.AccessToken
	err := row.Scan(&t.ArticleSlug, &t.TokenID, &t.Email, &t.CreatedAt, &t.ExpiresAt)
	return t, err
}
