package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/handlers/accessctx"
	"github.com/nkiryanov/paywall/internal/handlers/render"
	"github.com/nkiryanov/paywall/internal/logger"
)

// handleContent serves premium body, access is checked by middleware
func handleContent(store contentStore, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := accessctx.FromContext(r.Context())
		if !ok || !d.Granted {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		slug := d.Token.ArticleSlug

		article, err := store.Get(r.Context(), slug)
		switch {
		case err == nil:
			w.Header().Set("Content-Type", article.ContentType)
			w.Header().Set("Cache-Control", "private, no-store")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(article.Body)
		case errors.Is(err, apperrors.ErrContentNotFound):
			render.ServiceError(w, "Article not found", http.StatusNotFound)
		default:
			l.Error("failed to get article content", "article", slug, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
