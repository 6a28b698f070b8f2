package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/models"
)

type PaymentRepo struct {
	DB DBTX
}

const insertPayment = `-- name: InsertPayment
INSERT INTO payments (id, payment_id, email, article_slug, amount, currency, paid_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (payment_id) DO NOTHING
`

const lockPayment = `-- name: LockPayment
SELECT id, payment_id, email, article_slug, amount, currency, token_id, paid_at
FROM payments
WHERE payment_id = $1
FOR UPDATE
`

// Record payment once per PaymentID
// Concurrent callers with the same PaymentID wait for each other on the row lock
func (r *PaymentRepo) Record(ctx context.Context, record models.PaymentRecord) (models.PaymentRecord, bool, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	tag, err := r.DB.Exec(ctx, insertPayment,
		record.ID, record.PaymentID, record.Email, record.ArticleSlug, record.Amount, record.Currency, record.PaidAt,
	)
	if err != nil {
		return models.PaymentRecord{}, false, dbError(err)
	}

	rows, _ := r.DB.Query(ctx, lockPayment, record.PaymentID)
	stored, err := pgx.CollectOneRow(rows, rowToPayment)
	if err != nil {
		return stored, false, dbError(err)
	}

	return stored, tag.RowsAffected() == 1, nil
}

const getLatestPayment = `-- name: GetLatestPayment
SELECT id, payment_id, email, article_slug, amount, currency, token_id, paid_at
FROM payments
WHERE email = $1 AND article_slug = $2
ORDER BY paid_at DESC
LIMIT 1
`

func (r *PaymentRepo) Get(ctx context.Context, email string, articleSlug string) (models.PaymentRecord, error) {
	rows, _ := r.DB.Query(ctx, getLatestPayment, email, articleSlug)
	payment, err := pgx.CollectOneRow(rows, rowToPayment)

	switch {
	case err == nil:
		return payment, nil
	case errors.Is(err, pgx.ErrNoRows):
		return payment, apperrors.ErrPaymentNotFound
	default:
		return payment, dbError(err)
	}
}

const linkToken = `-- name: LinkToken
UPDATE payments
SET token_id = $2
WHERE payment_id = $1
`

func (r *PaymentRepo) LinkToken(ctx context.Context, paymentID string, tokenID string) error {
	tag, err := r.DB.Exec(ctx, linkToken, paymentID, tokenID)
	if err != nil {
		return dbError(err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrPaymentNotFound
	}

	return nil
}

func rowToPayment(row pgx.CollectableRow) (models.PaymentRecord, error) {
	var p models.PaymentRecord
	err := row.Scan(&p.ID, &p.PaymentID, &p.Email, &p.ArticleSlug, &p.Amount, &p.Currency, &p.TokenID, &p.PaidAt)
	return p, err
}
