package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/nkiryanov/paywall/internal/apperrors"
)

const (
	stripeURL = "https://api.stripe.com"

	// Signed events older than this are replays
	stripeTolerance = 5 * time.Minute

	EventCheckoutCompleted = string(stripe.EventTypeCheckoutSessionCompleted)
)

// Currencies Stripe reports in whole units
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

// Stripe checkout sessions API and webhooks
type Stripe struct {
	sessions session.Client
}

// NewStripe builds provider with its own backend, global stripe.Key is never touched
func NewStripe(apiKey string, apiURL string, client *http.Client) *Stripe {
	if apiURL == "" {
		apiURL = stripeURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        client,
		URL:               stripe.String(apiURL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})

	return &Stripe{sessions: session.Client{B: backend, Key: apiKey}}
}

func (s *Stripe) Name() string {
	return ProviderStripe
}

func (s *Stripe) SignatureHeader() string {
	return "Stripe-Signature"
}

// VerifySignature checks Stripe-Signature header "t=<unix>,v1=<hex hmac>[,v1=...]"
func (s *Stripe) VerifySignature(payload []byte, signature string, secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: webhook secret must not be empty", apperrors.ErrConfiguration)
	}

	if err := webhook.ValidatePayloadWithTolerance(payload, signature, secret, stripeTolerance); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrSignatureInvalid, err)
	}

	return nil
}

// ParseEvent decodes event, only paid checkout.session.completed carries Payment
func (s *Stripe) ParseEvent(payload []byte) (Event, error) {
	var raw stripe.Event
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %w", apperrors.ErrEventMalformed, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return Event{}, fmt.Errorf("%w: event has no id or type", apperrors.ErrEventMalformed)
	}

	event := Event{ID: raw.ID, Type: string(raw.Type)}
	if raw.Type != stripe.EventTypeCheckoutSessionCompleted {
		return event, nil
	}
	if raw.Data == nil {
		return Event{}, fmt.Errorf("%w: event has no data", apperrors.ErrEventMalformed)
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw.Data.Raw, &cs); err != nil {
		return Event{}, fmt.Errorf("%w: %w", apperrors.ErrEventMalformed, err)
	}
	if cs.ID == "" {
		return Event{}, fmt.Errorf("%w: %w", apperrors.ErrEventMalformed, errors.New("session has no id"))
	}
	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return event, nil
	}

	p := &Payment{
		PaymentID:   cs.ID,
		ArticleSlug: strings.TrimSpace(cs.Metadata[MetadataArticleSlug]),
		Currency:    strings.ToLower(string(cs.Currency)),
		PaidAt:      time.Unix(raw.Created, 0).UTC(),
	}

	switch {
	case cs.CustomerDetails != nil && cs.CustomerDetails.Email != "":
		p.Email = cs.CustomerDetails.Email
	case cs.CustomerEmail != "":
		p.Email = cs.CustomerEmail
	default:
		p.Email = cs.Metadata[MetadataEmail]
	}

	// AmountTotal is plain int64, absent and zero differ only in the raw object
	if raw.Data.Object["amount_total"] != nil {
		exp := int32(-2)
		if _, ok := zeroDecimalCurrencies[p.Currency]; ok {
			exp = 0
		}
		amount := decimal.New(cs.AmountTotal, exp)
		p.Amount = &amount
	}

	event.Payment = p
	return event, nil
}

// CreateCheckout creates one time payment checkout session for the price
func (s *Stripe) CreateCheckout(ctx context.Context, params CheckoutParams) (CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(params.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	if params.Email != "" {
		p.CustomerEmail = stripe.String(params.Email)
	}
	for key, value := range params.Metadata {
		p.AddMetadata(key, value)
	}
	p.Context = ctx

	cs, err := s.sessions.New(p)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("error while creating checkout session. Err: %w", err)
	}

	if cs.ID == "" || cs.URL == "" {
		return CheckoutSession{}, errors.New("checkout session has no id or url")
	}

	return CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}

// StripeSignatureHeader builds Stripe-Signature header value for payload, used to replay events locally
func StripeSignatureHeader(payload []byte, secret string, t time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: t,
		Scheme:    "v1",
	})
	return signed.Header
}
