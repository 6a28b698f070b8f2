package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/nkiryanov/paywall/internal/handlers/middleware"
	"github.com/nkiryanov/paywall/internal/logger"
	"github.com/nkiryanov/paywall/internal/metrics"
	"github.com/nkiryanov/paywall/internal/service/access"
	"github.com/nkiryanov/paywall/internal/service/content"
	"github.com/nkiryanov/paywall/internal/service/payment"
	"github.com/nkiryanov/paywall/internal/service/webhook"
)

const DefaultArticlePath = "/post/{slug}/"

type Config struct {
	// Public site url, checkout and magic link redirects are built on it
	BaseURL string

	// Article page path, "{slug}" is replaced with article slug
	ArticlePath string
}

// articleURL returns absolute url of the article page
func (c Config) articleURL(slug string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + strings.ReplaceAll(c.ArticlePath, "{slug}", slug)
}

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// Services the router dispatches to
// Content is optional: premium content endpoint is mounted only if it is set
type Services struct {
	Gate     accessGate
	Resender resender
	Webhooks webhookProcessor
	Checkout checkoutProvider
	Links    linkVerifier
	Content  contentStore
}

func NewRouter(cfg Config, s Services, logger logger.Logger, m *metrics.Metrics) http.Handler {
	if cfg.ArticlePath == "" {
		cfg.ArticlePath = DefaultArticlePath
	}

	api := http.NewServeMux()

	api.Handle("GET /articles/{slug}/access", handleCheckAccess(s.Gate, logger))
	api.Handle("POST /articles/{slug}/resend", handleResend(s.Resender, logger))
	api.Handle("POST /checkout", handleCheckout(cfg, s.Checkout, logger))
	api.Handle("POST /webhooks/payment", handleWebhook(s.Webhooks))

	if s.Content != nil {
		requireAccess := middleware.RequireAccess(s.Gate, logger)
		api.Handle("GET /articles/{slug}/content", requireAccess(handleContent(s.Content, logger)))
	}

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /access", handleRedeemLink(cfg, s.Links, s.Gate, logger))
	root.Handle("GET /metrics", m.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
		middleware.MetricsMiddleware(m),
	)

	return handler
}

type accessGate interface {
	// Decide for token presented in cookie, empty tokenID means no cookie
	// Error means store failure and must never be treated as denial
	Check(ctx context.Context, articleSlug string, tokenID string) (access.Decision, error)
}

type resender interface {
	// Has to return nil whether email paid for the article or not
	Resend(ctx context.Context, articleSlug string, email string) error
}

type webhookProcessor interface {
	SignatureHeader() string
	Process(ctx context.Context, payload []byte, signature string) (webhook.Result, error)
}

type checkoutProvider interface {
	CreateCheckout(ctx context.Context, params payment.CheckoutParams) (payment.CheckoutSession, error)
}

type linkVerifier interface {
	// Has to return apperrors.ErrLinkInvalid if sig was not issued for the article and token
	Verify(articleSlug string, tokenID string, sig string) error
}

type contentStore interface {
	// Has to return apperrors.ErrContentNotFound if article has no premium body
	Get(ctx context.Context, slug string) (content.Article, error)
}
