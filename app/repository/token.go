package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
)

const tokenColumns = `id, email, token, purpose, expires_at, created_at`

type TokenRepository struct {
	db DBTX
}

func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token *entity.Token) error {
	query := `
		INSERT INTO account_tokens (email, token, purpose, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		token.Email,
		token.Value,
		string(token.Purpose),
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	token.ID = uint64(id)
	return nil
}

func (r *TokenRepository) FindByValue(ctx context.Context, value string, purpose entity.TokenPurpose) (*entity.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM account_tokens WHERE token = ? AND purpose = ?`
	return r.findOne(ctx, query, value, string(purpose))
}

// FindByValueForUpdate locks the row until the surrounding transaction ends.
func (r *TokenRepository) FindByValueForUpdate(ctx context.Context, value string, purpose entity.TokenPurpose) (*entity.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM account_tokens WHERE token = ? AND purpose = ? FOR UPDATE`
	return r.findOne(ctx, query, value, string(purpose))
}

func (r *TokenRepository) DeleteByEmailAndPurpose(ctx context.Context, email string, purpose entity.TokenPurpose) (int64, error) {
	query := `DELETE FROM account_tokens WHERE email = ? COLLATE utf8mb4_bin AND purpose = ?`
	return r.exec(ctx, query, email, string(purpose))
}

func (r *TokenRepository) DeleteByID(ctx context.Context, id uint64) (int64, error) {
	query := `DELETE FROM account_tokens WHERE id = ?`
	return r.exec(ctx, query, id)
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM account_tokens WHERE expires_at < ?`
	return r.exec(ctx, query, now)
}

func (r *TokenRepository) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *TokenRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Token, error) {
	token := &entity.Token{}
	var purpose string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&token.ID,
		&token.Email,
		&token.Value,
		&purpose,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	token.Purpose = entity.TokenPurpose(purpose)
	return token, nil
}
