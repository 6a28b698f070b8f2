package repository

import (
	"context"
	"time"

	"github.com/nkiryanov/paywall/internal/models"
)

// Access token repository interface
type TokenRepo interface {
	// Create token
	// If the pair (articleSlug, tokenID) is taken already must return apperrors.ErrTokenCollision
	Create(ctx context.Context, token models.AccessToken) (models.AccessToken, error)

	// Get token even if it is expired
	// If token not found must return apperrors.ErrTokenNotFound
	Get(ctx context.Context, articleSlug string, tokenID string) (models.AccessToken, error)

	// Move token expiration to expiresAt
	// Only the token owned by email is touched, otherwise apperrors.ErrTokenNotFound returned
	Extend(ctx context.Context, articleSlug string, tokenID string, email string, expiresAt time.Time) (models.AccessToken, error)
}

// Payment record repository interface
type PaymentRepo interface {
	// Record payment if payment with the same PaymentID not recorded yet
	// Returns stored record (locked till the end of transaction) and whether it was created by the call
	Record(ctx context.Context, record models.PaymentRecord) (stored models.PaymentRecord, created bool, err error)

	// Get the latest payment of email for the article
	// If nothing paid must return apperrors.ErrPaymentNotFound
	Get(ctx context.Context, email string, articleSlug string) (models.PaymentRecord, error)

	// Bind issued access token to the payment
	LinkToken(ctx context.Context, paymentID string, tokenID string) error
}

type Storage interface {
	Token() TokenRepo
	Payment() PaymentRepo

	// Run fn in transaction
	// Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
