package handlers

import (
	"net/http"

	"github.com/nkiryanov/paywall/internal/handlers/cookies"
	"github.com/nkiryanov/paywall/internal/handlers/render"
	"github.com/nkiryanov/paywall/internal/logger"
)

func handleCheckAccess(gate accessGate, l logger.Logger) http.Handler {
	type response struct {
		HasAccess    bool `json:"hasAccess"`
		TokenRenewed bool `json:"tokenRenewed"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := r.PathValue("slug")
		if !render.IsSlug(slug) {
			render.ServiceError(w, "Invalid article slug", http.StatusBadRequest)
			return
		}

		d, err := gate.Check(r.Context(), slug, cookies.TokenID(r, slug))
		if err != nil {
			l.Error("access check failed", "article", slug, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !d.Granted {
			render.JSONWithStatus(w, response{}, http.StatusUnauthorized)
			return
		}

		if d.Issued {
			cookies.Set(w, d.Token)
		}
		render.JSON(w, response{HasAccess: true, TokenRenewed: d.Issued})
	})
}

// handleRedeemLink establishes access from magic link and sends browser to the article
func handleRedeemLink(cfg Config, links linkVerifier, gate accessGate, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		slug, tokenID, sig := q.Get("article"), q.Get("token"), q.Get("sig")

		if !render.IsSlug(slug) {
			render.ServiceError(w, "Invalid access link", http.StatusUnauthorized)
			return
		}

		err := links.Verify(slug, tokenID, sig)
		if err != nil {
			l.Warn("magic link rejected", "article", slug, "error", err)
			render.ServiceError(w, "Invalid access link", http.StatusUnauthorized)
			return
		}

		d, err := gate.Check(r.Context(), slug, tokenID)
		if err != nil {
			l.Error("access check failed", "article", slug, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !d.Granted {
			render.ServiceError(w, "Invalid access link", http.StatusUnauthorized)
			return
		}

		cookies.Set(w, d.Token)
		http.Redirect(w, r, cfg.articleURL(slug), http.StatusSeeOther)
	})
}
