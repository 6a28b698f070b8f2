package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/paywall/internal/apperrors"
)

// Supported email providers
const (
	ProviderSendGrid = "sendgrid"
	ProviderResend   = "resend"
)

const defaultTimeout = 10 * time.Second

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Notifier delivers email
// Every failure is reported as *DeliveryError matching apperrors.ErrDeliveryFailed
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	// One of ProviderSendGrid, ProviderResend
	Provider string

	APIKey string

	// Provider API base url, provider default if empty
	APIURL string

	// Sender address
	From string

	// Upper bound for one delivery attempt
	Timeout time.Duration
}

// New constructs notifier for configured provider
func New(cfg Config) (Notifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: email api key must not be empty", apperrors.ErrConfiguration)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: email sender must not be empty", apperrors.ErrConfiguration)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case ProviderSendGrid:
		return newSendGrid(cfg, client), nil
	case ProviderResend:
		return newResend(cfg, client), nil
	default:
		return nil, fmt.Errorf("%w: unknown email provider %q", apperrors.ErrConfiguration, cfg.Provider)
	}
}

type DeliveryError struct {
	Provider string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("provider: %s, error: %v", e.Provider, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{apperrors.ErrDeliveryFailed, e.Err}
}
