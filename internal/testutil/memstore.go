package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/paywall/internal/apperrors"
	"github.com/nkiryanov/paywall/internal/models"
	"github.com/nkiryanov/paywall/internal/repository"
)

type tokenKey struct {
	slug    string
	tokenID string
}

// MemStorage is in-memory repository.Storage for service and handler tests
// Transactions are serialized and rolled back by restoring a snapshot
type MemStorage struct {
	txMu sync.Mutex

	mu       sync.Mutex
	tokens   map[tokenKey]models.AccessToken
	payments []models.PaymentRecord
	err      error
}

func NewMemStorage() *MemStorage {
	return &MemStorage{tokens: make(map[tokenKey]models.AccessToken)}
}

// Fail makes every following call return err wrapped with apperrors.ErrStoreUnavailable
// Pass nil to recover
func (s *MemStorage) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Tokens returns copy of all stored tokens
func (s *MemStorage) Tokens() []models.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.tokens))
}

// Payments returns copy of all stored payments
func (s *MemStorage) Payments() []models.PaymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.payments)
}

func (s *MemStorage) Token() repository.TokenRepo {
	return &memTokenRepo{s: s}
}

func (s *MemStorage) Payment() repository.PaymentRepo {
	return &memPaymentRepo{s: s}
}

func (s *MemStorage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	tokens := maps.Clone(s.tokens)
	payments := slices.Clone(s.payments)
	s.mu.Unlock()

	err := fn(memTx{s})
	if err != nil {
		s.mu.Lock()
		s.tokens = tokens
		s.payments = payments
		s.mu.Unlock()
	}

	return err
}

// check reports injected failure or exceeded deadline
func (s *MemStorage) check(ctx context.Context) error {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("db error: %w: %w", apperrors.ErrStoreUnavailable, err)
	}

	return nil
}

// memTx runs nested transactions inline
type memTx struct {
	*MemStorage
}

func (tx memTx) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	return fn(tx)
}

type memTokenRepo struct {
	s *MemStorage
}

func (r *memTokenRepo) Create(ctx context.Context, token models.AccessToken) (models.AccessToken, error) {
	if err := r.s.check(ctx); err != nil {
		return models.AccessToken{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := tokenKey{token.ArticleSlug, token.TokenID}
	if _, ok := r.s.tokens[key]; ok {
		return models.AccessToken{}, apperrors.ErrTokenCollision
	}

	r.s.tokens[key] = token
	return token, nil
}

func (r *memTokenRepo) Get(ctx context.Context, articleSlug string, tokenID string) (models.AccessToken, error) {
	if err := r.s.check(ctx); err != nil {
		return models.AccessToken{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	token, ok := r.s.tokens[tokenKey{articleSlug, tokenID}]
	if !ok {
		return token, apperrors.ErrTokenNotFound
	}

	return token, nil
}

func (r *memTokenRepo) Extend(ctx context.Context, articleSlug string, tokenID string, email string, expiresAt time.Time) (models.AccessToken, error) {
	if err := r.s.check(ctx); err != nil {
		return models.AccessToken{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := tokenKey{articleSlug, tokenID}
	token, ok := r.s.tokens[key]
	if !ok || token.Email != email {
		return models.AccessToken{}, apperrors.ErrTokenNotFound
	}

	token.ExpiresAt = expiresAt
	r.s.tokens[key] = token
	return token, nil
}

type memPaymentRepo struct {
	s *MemStorage
}

func (r *memPaymentRepo) Record(ctx context.Context, record models.PaymentRecord) (models.PaymentRecord, bool, error) {
	if err := r.s.check(ctx); err != nil {
		return models.PaymentRecord{}, false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.payments {
		if p.PaymentID == record.PaymentID {
			return p, false, nil
		}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	r.s.payments = append(r.s.payments, record)

	return record, true, nil
}

func (r *memPaymentRepo) Get(ctx context.Context, email string, articleSlug string) (models.PaymentRecord, error) {
	if err := r.s.check(ctx); err != nil {
		return models.PaymentRecord{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var (
		latest models.PaymentRecord
		found  bool
	)
	for _, p := range r.s.payments {
		if p.Email != email || p.ArticleSlug != articleSlug {
			continue
		}
		if !found || p.PaidAt.After(latest.PaidAt) {
			latest, found = p, true
		}
	}

	if !found {
		return latest, apperrors.ErrPaymentNotFound
	}

	return latest, nil
}

func (r *memPaymentRepo) LinkToken(ctx context.Context, paymentID string, tokenID string) error {
	if err := r.s.check(ctx); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i := range r.s.payments {
		if r.s.payments[i].PaymentID == paymentID {
			r.s.payments[i].TokenID = &tokenID
			return nil
		}
	}

	return apperrors.ErrPaymentNotFound
}
