package handlers

import (
	"net/http"

	"github.com/nkiryanov/paywall/internal/handlers/render"
	"github.com/nkiryanov/paywall/internal/logger"
	"github.com/nkiryanov/paywall/internal/service/payment"
)

func handleCheckout(cfg Config, provider checkoutProvider, l logger.Logger) http.Handler {
	type request struct {
		PriceID     string `json:"priceId" validate:"required,max=255"`
		ArticleSlug string `json:"articleSlug" validate:"required,slug"`
		Email       string `json:"email" validate:"omitempty,email"`
	}
	type response struct {
		CheckoutURL string `json:"checkoutUrl"`
		SessionID   string `json:"sessionId"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		articleURL := cfg.articleURL(data.ArticleSlug)
		metadata := map[string]string{payment.MetadataArticleSlug: data.ArticleSlug}
		if data.Email != "" {
			metadata[payment.MetadataEmail] = data.Email
		}

		session, err := provider.CreateCheckout(r.Context(), payment.CheckoutParams{
			PriceID:    data.PriceID,
			SuccessURL: articleURL + "?purchase=success",
			CancelURL:  articleURL,
			Email:      data.Email,
			Metadata:   metadata,
		})
		if err != nil {
			l.Error("checkout session not created", "article", data.ArticleSlug, "error", err)
			render.ServiceError(w, "Checkout is not available", http.StatusBadGateway)
			return
		}

		w.Header().Set("Location", session.URL)
		render.JSON(w, response{CheckoutURL: session.URL, SessionID: session.ID})
	})
}
