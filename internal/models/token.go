package models

import (
	"strings"
	"time"
)

// AccessToken grants one email time limited access to one article.
// Identity is the pair (ArticleSlug, TokenID), TokenID alone is not unique.
type AccessToken struct {
	ArticleSlug string
	TokenID     string
	Email       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// IsValid reports whether token is still valid at the moment.
// Exactly at ExpiresAt the token is already expired.
func (t AccessToken) IsValid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// NormalizeEmail lower-cases and trims email so it may be used as store key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
