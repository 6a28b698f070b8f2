package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/logger"
	"github.com/nkiryanov/paywall/internal/metrics"
	"github.com/nkiryanov/paywall/internal/models"
	"github.com/nkiryanov/paywall/internal/repository"
	"github.com/nkiryanov/paywall/internal/service/tokens"
)

const defaultStoreTimeout = 3 * time.Second

// State the gate decided in
type State string

const (
	StateNoToken      State = "NO_TOKEN"
	StateTokenExpired State = "TOKEN_EXPIRED"
	StateTokenValid   State = "TOKEN_VALID"
	StatePaidNoToken  State = "PAID_NO_TOKEN"
	StateNoAccess     State = "NO_ACCESS"
)

// Decision of the gate
// When Issued is set Token is new or renewed and must be delivered to the caller (cookie)
type Decision struct {
	Granted bool
	State   State
	Token   models.AccessToken
	Issued  bool
}

func deny() Decision {
	return Decision{State: StateNoAccess}
}

type Config struct {
	StoreTimeout time.Duration
}

// Gate decides at request time whether caller may read an article
// Every store failure is returned as error, never as denial
type Gate struct {
	timeout  time.Duration
	tokens   *tokens.Service
	payments repository.PaymentRepo
	logger   logger.Logger
	metrics  *metrics.Metrics
}

func NewGate(cfg Config, tokens *tokens.Service, payments repository.PaymentRepo, logger logger.Logger, metrics *metrics.Metrics) *Gate {
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}

	return &Gate{
		timeout:  cfg.StoreTimeout,
		tokens:   tokens,
		payments: payments,
		logger:   logger,
		metrics:  metrics,
	}
}

// Check decides for the token presented by anonymous caller
//
//   - no token: deny, anonymous caller has no email to look payment up
//   - valid token: grant, nothing written
//   - expired token: renew the same token id if its owner still has a payment for the article
//   - unknown token: deny without telling why
func (g *Gate) Check(ctx context.Context, articleSlug string, tokenID string) (Decision, error) {
	d, err := g.check(ctx, articleSlug, tokenID)
	if err != nil {
		return d, err
	}

	g.metrics.AccessDecision(string(d.State), d.Granted)
	return d, nil
}

func (g *Gate) check(ctx context.Context, articleSlug string, tokenID string) (Decision, error) {
	if tokenID == "" {
		return Decision{State: StateNoToken}, nil
	}

	token, err := g.tokens.Validate(ctx, articleSlug, tokenID)
	switch {
	case err == nil:
		return Decision{Granted: true, State: StateTokenValid, Token: token}, nil
	case errors.Is(err, apperrors.ErrTokenNotFound):
		return deny(), nil
	case errors.Is(err, apperrors.ErrTokenExpired):
		return g.renew(ctx, token)
	default:
		return deny(), err
	}
}

// renew extends expired token if payment still backs it
func (g *Gate) renew(ctx context.Context, expired models.AccessToken) (Decision, error) {
	paid, err := g.paid(ctx, expired.Email, expired.ArticleSlug)
	if err != nil || !paid {
		return deny(), err
	}

	token, err := g.tokens.Renew(ctx, expired.ArticleSlug, expired.TokenID, expired.Email)
	switch {
	case err == nil:
		g.logger.Info("access token renewed", "article", token.ArticleSlug)
		return Decision{Granted: true, State: StateTokenExpired, Token: token, Issued: true}, nil
	case errors.Is(err, apperrors.ErrTokenNotFound):
		return deny(), nil
	default:
		return deny(), err
	}
}

// Reissue issues new token to email which paid for the article but has no usable token
// Denies if email has no payment for the article
func (g *Gate) Reissue(ctx context.Context, articleSlug string, email string) (Decision, error) {
	email = models.NormalizeEmail(email)

	paid, err := g.paid(ctx, email, articleSlug)
	if err != nil {
		return deny(), err
	}
	if !paid {
		g.metrics.AccessDecision(string(StateNoAccess), false)
		return deny(), nil
	}

	token, err := g.tokens.Issue(ctx, articleSlug, email)
	if err != nil {
		return deny(), err
	}

	g.metrics.AccessDecision(string(StatePaidNoToken), true)
	return Decision{Granted: true, State: StatePaidNoToken, Token: token, Issued: true}, nil
}

func (g *Gate) paid(ctx context.Context, email string, articleSlug string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	_, err := g.payments.Get(ctx, email, articleSlug)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperrors.ErrPaymentNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("error while getting payment. Err: %w", err)
	}
}
