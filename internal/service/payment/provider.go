package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/paywall/internal/apperrors"
)

// Supported payment providers
const (
	ProviderStripe = "stripe"
)

const defaultTimeout = 10 * time.Second

// Metadata keys attached to checkout session so that webhook may recover them
const (
	MetadataArticleSlug = "articleSlug"
	MetadataEmail       = "email"
)

// Event is verified webhook event
// Payment is set for relevant (completed and paid) events only
type Event struct {
	ID      string
	Type    string
	Payment *Payment
}

// Payment is normalized data of completed payment
// Email or ArticleSlug may be empty if provider did not send them, caller must check
type Payment struct {
	PaymentID   string
	Email       string
	ArticleSlug string
	Amount      *decimal.Decimal
	Currency    string
	PaidAt      time.Time
}

type CheckoutParams struct {
	PriceID    string
	SuccessURL string
	CancelURL  string

	// Prefilled purchaser email, optional
	Email string

	Metadata map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Provider is payment provider capability
type Provider interface {
	Name() string

	// SignatureHeader names request header carrying webhook signature
	SignatureHeader() string

	// VerifySignature checks payload was signed by provider with the shared secret
	// Returns apperrors.ErrSignatureInvalid otherwise
	VerifySignature(payload []byte, signature string, secret string) error

	// ParseEvent decodes verified payload
	// Returns apperrors.ErrEventMalformed if payload can't be decoded
	ParseEvent(payload []byte) (Event, error)

	CreateCheckout(ctx context.Context, params CheckoutParams) (CheckoutSession, error)
}

type Config struct {
	// One of ProviderStripe
	Provider string

	APIKey string

	// Provider API base url, provider default if empty
	APIURL string

	Timeout time.Duration
}

// New constructs configured provider
func New(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: payment api key must not be empty", apperrors.ErrConfiguration)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case ProviderStripe:
		return NewStripe(cfg.APIKey, cfg.APIURL, client), nil
	default:
		return nil, fmt.Errorf("%w: unknown payment provider %q", apperrors.ErrConfiguration, cfg.Provider)
	}
}
