package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
)

const userColumns = `id, email, display_name, password_hash, role, is_verified, auth_method, picture_url, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		string(user.Role),
		user.IsVerified,
		string(user.AuthMethod),
		user.PictureURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return translateError(err)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ? COLLATE utf8mb4_bin`
	return r.findOne(ctx, query, email)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *UserRepository) MarkVerified(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE users SET is_verified = 1, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, now, id)
	return err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	query := `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, passwordHash, now, id)
	return err
}

func (r *UserRepository) UpdateDisplayName(ctx context.Context, id, displayName string, now time.Time) error {
	query := `UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, displayName, now, id)
	return err
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(scan rowScanner) (*entity.User, error) {
	user := &entity.User{}
	var role, authMethod string
	if err := scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&role,
		&user.IsVerified,
		&authMethod,
		&user.PictureURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = entity.Role(role)
	user.AuthMethod = entity.AuthMethod(authMethod)
	return user, nil
}
