package magiclink

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/models"
)

const (
	// Path the link points to
	AccessPath = "/access"

	audience = "magic-link"
	keyInfo  = "paywall magic link v1"
	keyLen   = 32
)

// Query parameters of the link
const (
	ParamArticle   = "article"
	ParamToken     = "token"
	ParamSignature = "sig"
)

// Service composes and verifies magic links
// Link carries the token id and a signature binding it to the article, so links can't be forged or retargeted
type Service struct {
	baseURL *url.URL
	key     []byte
	alg     jwt.SigningMethod
	now     func() time.Time
}

func New(baseURL string, secretKey string) (*Service, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("%w: secret key must not be empty", apperrors.ErrConfiguration)
	}

	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base url must be absolute, got %q", apperrors.ErrConfiguration, baseURL)
	}

	// Links are signed with derived key, never with the secret itself
	key := make([]byte, keyLen)
	_, err = io.ReadFull(hkdf.New(sha256.New, []byte(secretKey), nil, []byte(keyInfo)), key)
	if err != nil {
		return nil, fmt.Errorf("error while deriving link key. Err: %w", err)
	}

	return &Service{
		baseURL: u,
		key:     key,
		alg:     jwt.SigningMethodHS256,
		now:     time.Now,
	}, nil
}

// Link returns absolute URL which establishes access to token's article when visited
func (s *Service) Link(token models.AccessToken) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       token.TokenID,
		Subject:  token.ArticleSlug,
		Audience: jwt.ClaimStrings{audience},
		IssuedAt: jwt.NewNumericDate(s.now()),
	}

	sig, err := jwt.NewWithClaims(s.alg, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("error while signing magic link. Err: %w", err)
	}

	u := s.baseURL.JoinPath(AccessPath)
	u.RawQuery = url.Values{
		ParamArticle:   {token.ArticleSlug},
		ParamToken:     {token.TokenID},
		ParamSignature: {sig},
	}.Encode()

	return u.String(), nil
}

// Verify checks signature was issued for exactly this article and token id
// Any mismatch is apperrors.ErrLinkInvalid
func (s *Service) Verify(articleSlug string, tokenID string, sig string) error {
	if articleSlug == "" || tokenID == "" || sig == "" {
		return apperrors.ErrLinkInvalid
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		sig,
		claims,
		func(t *jwt.Token) (any, error) {
			return s.key, nil
		},
		jwt.WithValidMethods([]string{s.alg.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithSubject(articleSlug),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrLinkInvalid, err)
	}

	if claims.ID != tokenID {
		return fmt.Errorf("%w: %w", apperrors.ErrLinkInvalid, errors.New("token id mismatch"))
	}

	return nil
}
