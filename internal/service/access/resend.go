package access

import (
	"context"

	"github.com/nkiryanov/paywall/internal/logger"
	"github.com/nkiryanov/paywall/internal/metrics"
	"github.com/nkiryanov/paywall/internal/models"
	"github.com/nkiryanov/paywall/internal/service/notify"
)

// Linker composes magic link for the token
type Linker interface {
	Link(token models.AccessToken) (string, error)
}

// Resender sends a fresh magic link to email that paid for the article
type Resender struct {
	gate     *Gate
	links    Linker
	notifier notify.Notifier
	logger   logger.Logger
	metrics  *metrics.Metrics
}

func NewResender(gate *Gate, links Linker, notifier notify.Notifier, logger logger.Logger, metrics *metrics.Metrics) *Resender {
	return &Resender{
		gate:     gate,
		links:    links,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Resend issues new token and emails the link if email paid for the article
// Caller can't tell paid from not paid: both return nil.
// Only store failures are returned, delivery failures are logged.
func (r *Resender) Resend(ctx context.Context, articleSlug string, email string) error {
	d, err := r.gate.Reissue(ctx, articleSlug, email)
	if err != nil {
		return err
	}

	if !d.Granted {
		r.logger.Info("resend requested without payment", "article", articleSlug)
		return nil
	}

	link, err := r.links.Link(d.Token)
	if err != nil {
		r.logger.Error("magic link not composed", "article", articleSlug, "error", err)
		return nil
	}

	msg, err := notify.AccessMessage(d.Token.Email, articleSlug, link)
	if err == nil {
		err = r.notifier.Send(ctx, msg)
	}
	if err != nil {
		r.metrics.Notification(metrics.NotificationFailed)
		r.logger.Error("magic link resend failed", "article", articleSlug, "error", err)
		return nil
	}

	r.metrics.Notification(metrics.NotificationSent)
	r.logger.Info("magic link resent", "article", articleSlug)
	return nil
}
