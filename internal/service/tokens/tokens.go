package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/models"
	"github.com/nkiryanov/paywall/internal/repository"
)

const (
	DefaultTTL          = 30 * 24 * time.Hour
	defaultStoreTimeout = 3 * time.Second

	// 128 bit random id encoded as hex
	idBytes = 16
)

// Token service config with sensible defaults
type Config struct {
	// Token lifetime, used both on issue and renewal
	TTL time.Duration

	// Upper bound for every store call
	StoreTimeout time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

// Service owns every decision about token shape and validity
type Service struct {
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	repo repository.TokenRepo
}

func New(cfg Config, repo repository.TokenRepo) *Service {
	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.TTL, DefaultTTL)
	setDefaultDuration(&cfg.StoreTimeout, defaultStoreTimeout)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		ttl:     cfg.TTL,
		timeout: cfg.StoreTimeout,
		now:     cfg.Now,
		repo:    repo,
	}
}

// WithRepo returns copy of the service bound to another repo, e.g. the one of running transaction
func (s *Service) WithRepo(repo repository.TokenRepo) *Service {
	c := *s
	c.repo = repo
	return &c
}

// Issue creates fresh token for email valid for the whole TTL
func (s *Service) Issue(ctx context.Context, articleSlug string, email string) (models.AccessToken, error) {
	tokenID, err := newTokenID()
	if err != nil {
		return models.AccessToken{}, err
	}

	now := s.storeNow()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := s.repo.Create(ctx, models.AccessToken{
		ArticleSlug: articleSlug,
		TokenID:     tokenID,
		Email:       models.NormalizeEmail(email),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	})
	if err != nil {
		return token, fmt.Errorf("error while saving access token. Err: %w", err)
	}

	return token, nil
}

// Validate looks up the token without touching it
// Returns apperrors.ErrTokenNotFound or apperrors.ErrTokenExpired if access must be denied.
// Expired token is returned along with the error so caller may learn its owner.
func (s *Service) Validate(ctx context.Context, articleSlug string, tokenID string) (models.AccessToken, error) {
	if !isTokenID(tokenID) {
		return models.AccessToken{}, apperrors.ErrTokenNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := s.repo.Get(ctx, articleSlug, tokenID)
	switch {
	case errors.Is(err, apperrors.ErrTokenNotFound):
		return token, apperrors.ErrTokenNotFound
	case err != nil:
		return token, fmt.Errorf("error while getting access token. Err: %w", err)
	case !token.IsValid(s.now()):
		return token, apperrors.ErrTokenExpired
	default:
		return token, nil
	}
}

// Renew moves expiration to exactly now+TTL keeping the same token id
// Calling it twice just extends by the same window again
func (s *Service) Renew(ctx context.Context, articleSlug string, tokenID string, email string) (models.AccessToken, error) {
	expiresAt := s.storeNow().Add(s.ttl)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	token, err := s.repo.Extend(ctx, articleSlug, tokenID, models.NormalizeEmail(email), expiresAt)
	if err != nil {
		return token, fmt.Errorf("error while renewing access token. Err: %w", err)
	}

	return token, nil
}

// storeNow is current time at the precision the store keeps
func (s *Service) storeNow() time.Time {
	return s.now().Truncate(time.Microsecond)
}

func newTokenID() (string, error) {
	b := make([]byte, idBytes)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("error while generate token id. Err: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Reject garbage before it reaches the store
func isTokenID(tokenID string) bool {
	if len(tokenID) != hex.EncodedLen(idBytes) {
		return false
	}
	_, err := hex.DecodeString(tokenID)
	return err == nil
}
