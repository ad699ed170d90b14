package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/repository"

	"github.com/google/uuid"
)

const DefaultTokenTTL = time.Hour

// TokenStore issues and redeems single-use tokens. A store returned by WithTx
// runs every statement in the caller's transaction and locks redeemed rows.
type TokenStore struct {
	db   *sql.DB
	tx   *sql.Tx
	repo *repository.TokenRepository
	ttl  time.Duration
	now  func() time.Time
}

type TokenStoreOption func(*TokenStore)

func WithTokenClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTokenStore(db *sql.DB, ttl time.Duration, opts ...TokenStoreOption) *TokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	store := &TokenStore{
		db:   db,
		repo: repository.NewTokenRepository(db),
		ttl:  ttl,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *TokenStore) WithTx(tx *sql.Tx) *TokenStore {
	return &TokenStore{
		db:   s.db,
		tx:   tx,
		repo: repository.NewTokenRepository(tx),
		ttl:  s.ttl,
		now:  s.now,
	}
}

// Issue replaces any live token for (email, purpose) with a fresh one.
func (s *TokenStore) Issue(ctx context.Context, email string, purpose entity.TokenPurpose) (*entity.Token, error) {
	if s.tx != nil {
		return s.issue(ctx, s.repo, email, purpose)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	token, err := s.issue(ctx, repository.NewTokenRepository(tx), email, purpose)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *TokenStore) issue(ctx context.Context, repo *repository.TokenRepository, email string, purpose entity.TokenPurpose) (*entity.Token, error) {
	if _, err := repo.DeleteByEmailAndPurpose(ctx, email, purpose); err != nil {
		return nil, err
	}

	now := s.now()
	token := &entity.Token{
		Email:     email,
		Value:     uuid.New().String(),
		Purpose:   purpose,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := repo.Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Redeem looks a token up without deleting it. Expired tokens stay in place.
func (s *TokenStore) Redeem(ctx context.Context, value string, purpose entity.TokenPurpose) (*entity.Token, error) {
	if value == "" {
		return nil, ErrTokenNotFound
	}

	var (
		token *entity.Token
		err   error
	)
	if s.tx != nil {
		token, err = s.repo.FindByValueForUpdate(ctx, value, purpose)
	} else {
		token, err = s.repo.FindByValue(ctx, value, purpose)
	}
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	if token.IsExpiredAt(s.now()) {
		return nil, ErrTokenExpired
	}
	return token, nil
}

// Consume deletes a redeemed token. Losing a concurrent redemption race
// surfaces as ErrTokenNotFound.
func (s *TokenStore) Consume(ctx context.Context, token *entity.Token) error {
	rows, err := s.repo.DeleteByID(ctx, token.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *TokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
