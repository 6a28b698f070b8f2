package cookies

import (
	"net/http"

	"github.com/nkiryanov/paywall/internal/models"
)

// Set writes access cookie: named by article, valued by token id, expiring with the token
func Set(w http.ResponseWriter, token models.AccessToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     token.ArticleSlug,
		Value:    token.TokenID,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenID reads access token id for the article, empty if there is no cookie
func TokenID(r *http.Request, articleSlug string) string {
	cookie, err := r.Cookie(articleSlug)
	if err != nil {
		return ""
	}
	return cookie.Value
}
