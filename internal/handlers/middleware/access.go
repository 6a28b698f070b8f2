package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/paywall/internal/handlers/accessctx"
	"github.com/nkiryanov/paywall/internal/handlers/cookies"
	"github.com/nkiryanov/paywall/internal/handlers/render"
	"github.com/nkiryanov/paywall/internal/service/access"
)

type accessGate interface {
	Check(ctx context.Context, articleSlug string, tokenID string) (access.Decision, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

// RequireAccess lets request through only if access gate grants the article from {slug} path value
// Renewed token is set as cookie before the next handler writes anything
func RequireAccess(gate accessGate, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
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
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if d.Issued {
				cookies.Set(w, d.Token)
			}

			ctx := accessctx.New(r.Context(), d)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
