package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/logger"
	"github.com/nkiryanov/paywall/internal/metrics"
	"github.com/nkiryanov/paywall/internal/models"
	"github.com/nkiryanov/paywall/internal/repository"
	"github.com/nkiryanov/paywall/internal/service/notify"
	"github.com/nkiryanov/paywall/internal/service/payment"
	"github.com/nkiryanov/paywall/internal/service/tokens"
)

const defaultStoreTimeout = 5 * time.Second

// Processing statuses of accepted event
const (
	StatusIgnored   = "ignored"
	StatusGranted   = "granted"
	StatusDuplicate = "duplicate"
	StatusUnhandled = "unhandled"
)

type Result struct {
	Status    string
	EventID   string
	PaymentID string

	// Issued token, set for StatusGranted only
	Token *models.AccessToken

	// Whether magic link email was accepted by provider
	Notified bool
}

// Linker composes magic link for the token
type Linker interface {
	Link(token models.AccessToken) (string, error)
}

type Config struct {
	// Shared webhook signing secret
	// Required to be set
	Secret string

	// Upper bound for record-and-grant transaction
	StoreTimeout time.Duration
}

// Processor turns payment provider events into access grants
type Processor struct {
	secret  string
	timeout time.Duration

	provider payment.Provider
	storage  repository.Storage
	tokens   *tokens.Service
	links    Linker
	notifier notify.Notifier

	logger  logger.Logger
	metrics *metrics.Metrics
}

func New(
	cfg Config,
	provider payment.Provider,
	storage repository.Storage,
	tokens *tokens.Service,
	links Linker,
	notifier notify.Notifier,
	logger logger.Logger,
	metrics *metrics.Metrics,
) (*Processor, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: webhook secret must not be empty", apperrors.ErrConfiguration)
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}

	return &Processor{
		secret:   cfg.Secret,
		timeout:  cfg.StoreTimeout,
		provider: provider,
		storage:  storage,
		tokens:   tokens,
		links:    links,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// SignatureHeader names request header the provider signs deliveries in
func (p *Processor) SignatureHeader() string {
	return p.provider.SignatureHeader()
}

// Process handles raw webhook delivery
//
// Errors:
//   - apperrors.ErrSignatureInvalid: delivery not signed by provider, nothing touched
//   - apperrors.ErrEventMalformed: signed but undecodable payload
//   - apperrors.ErrPaymentMetadataMissing: paid, but no email or article to grant, Result is StatusUnhandled
//   - apperrors.ErrStoreUnavailable: nothing committed, provider should retry
//
// Notification failure is not an error: the grant is durable and may be resent.
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) (Result, error) {
	if err := p.provider.VerifySignature(payload, signature, p.secret); err != nil {
		p.metrics.WebhookEvent(metrics.OutcomeRejected)
		p.logger.Warn("webhook rejected", "provider", p.provider.Name(), "error", err)
		return Result{}, err
	}

	event, err := p.provider.ParseEvent(payload)
	if err != nil {
		p.metrics.WebhookEvent(metrics.OutcomeMalformed)
		p.logger.Warn("webhook event malformed", "provider", p.provider.Name(), "error", err)
		return Result{}, err
	}

	if event.Payment == nil {
		p.metrics.WebhookEvent(metrics.OutcomeIgnored)
		p.logger.Debug("webhook event ignored", "event_id", event.ID, "type", event.Type)
		return Result{Status: StatusIgnored, EventID: event.ID}, nil
	}

	paid := *event.Payment
	paid.Email = models.NormalizeEmail(paid.Email)
	if paid.Email == "" || paid.ArticleSlug == "" {
		p.metrics.WebhookEvent(metrics.OutcomeUnhandled)
		p.logger.Error("paid event can not be granted, manual action required",
			"event_id", event.ID,
			"payment_id", paid.PaymentID,
			"has_email", paid.Email != "",
			"has_article", paid.ArticleSlug != "",
		)
		return Result{Status: StatusUnhandled, EventID: event.ID, PaymentID: paid.PaymentID}, apperrors.ErrPaymentMetadataMissing
	}

	result := Result{EventID: event.ID, PaymentID: paid.PaymentID}

	token, granted, err := p.grant(ctx, paid)
	if err != nil {
		p.metrics.WebhookEvent(metrics.OutcomeFailed)
		p.logger.Error("payment grant failed", "event_id", event.ID, "payment_id", paid.PaymentID, "error", err)
		return result, err
	}

	if !granted {
		p.metrics.WebhookEvent(metrics.OutcomeDuplicate)
		p.logger.Info("payment already granted", "event_id", event.ID, "payment_id", paid.PaymentID)
		result.Status = StatusDuplicate
		return result, nil
	}

	p.metrics.WebhookEvent(metrics.OutcomeGranted)
	p.logger.Info("payment granted", "event_id", event.ID, "payment_id", paid.PaymentID, "article", token.ArticleSlug)
	result.Status = StatusGranted
	result.Token = &token

	err = p.notify(ctx, token)
	if err != nil {
		p.metrics.Notification(metrics.NotificationFailed)
		p.logger.Error("magic link delivery failed, grant kept", "payment_id", paid.PaymentID, "article", token.ArticleSlug, "error", err)
		return result, nil
	}

	p.metrics.Notification(metrics.NotificationSent)
	result.Notified = true
	return result, nil
}

// grant records payment and issues token in one transaction
// Returns granted=false if the payment has token already (redelivery)
func (p *Processor) grant(ctx context.Context, paid payment.Payment) (token models.AccessToken, granted bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.storage.InTx(ctx, func(tx repository.Storage) error {
		stored, _, err := tx.Payment().Record(ctx, models.PaymentRecord{
			PaymentID:   paid.PaymentID,
			Email:       paid.Email,
			ArticleSlug: paid.ArticleSlug,
			Amount:      paid.Amount,
			Currency:    paid.Currency,
			PaidAt:      paid.PaidAt,
		})
		if err != nil {
			return fmt.Errorf("error while recording payment. Err: %w", err)
		}

		if stored.Granted() {
			return nil
		}

		token, err = p.tokens.WithRepo(tx.Token()).Issue(ctx, stored.ArticleSlug, stored.Email)
		if err != nil {
			return err
		}

		err = tx.Payment().LinkToken(ctx, stored.PaymentID, token.TokenID)
		if err != nil {
			return fmt.Errorf("error while linking token to payment. Err: %w", err)
		}

		granted = true
		return nil
	})
	if err != nil {
		return models.AccessToken{}, false, err
	}

	return token, granted, nil
}

func (p *Processor) notify(ctx context.Context, token models.AccessToken) error {
	link, err := p.links.Link(token)
	if err != nil {
		return err
	}

	msg, err := notify.AccessMessage(token.Email, token.ArticleSlug, link)
	if err != nil {
		return err
	}

	return p.notifier.Send(ctx, msg)
}
