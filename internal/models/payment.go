package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRecord is durable proof that Email paid for ArticleSlug
type PaymentRecord struct {
	ID          uuid.UUID
	PaymentID   string // provider assigned, idempotency key
	Email       string
	ArticleSlug string
	Amount      *decimal.Decimal // nil if provider did not report it
	Currency    string
	TokenID     *string // nil until access token for the payment issued
	PaidAt      time.Time
}

// Granted reports whether access token was already issued for the payment
func (p PaymentRecord) Granted() bool {
	return p.TokenID != nil
}
