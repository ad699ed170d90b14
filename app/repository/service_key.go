package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
)

const serviceKeyColumns = `id, service_name, key_prefix, key_hash, grants_json, revoked_at, last_used_at, created_at`

type ServiceKeyRepository struct {
	db DBTX
}

func NewServiceKeyRepository(db DBTX) *ServiceKeyRepository {
	return &ServiceKeyRepository{db: db}
}

func (r *ServiceKeyRepository) Create(ctx context.Context, key *entity.ServiceKey) error {
	grants, err := encodeGrants(key.Grants)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO service_keys (service_name, key_prefix, key_hash, grants_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		key.ServiceName,
		key.KeyPrefix,
		key.KeyHash,
		grants,
		key.CreatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	key.ID = uint64(id)
	return nil
}

// FindByHash returns the key whatever its state; revocation and grant expiry
// are decided by the caller.
func (r *ServiceKeyRepository) FindByHash(ctx context.Context, keyHash string) (*entity.ServiceKey, error) {
	query := `SELECT ` + serviceKeyColumns + ` FROM service_keys WHERE key_hash = ?`
	key, err := scanServiceKey(r.db.QueryRowContext(ctx, query, keyHash).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *ServiceKeyRepository) ListByService(ctx context.Context, serviceName string) ([]*entity.ServiceKey, error) {
	query := `SELECT ` + serviceKeyColumns + ` FROM service_keys WHERE service_name = ? ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query, serviceName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*entity.ServiceKey
	for rows.Next() {
		key, err := scanServiceKey(rows.Scan)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *ServiceKeyRepository) RevokeByService(ctx context.Context, serviceName string, now time.Time) (int64, error) {
	query := `UPDATE service_keys SET revoked_at = ? WHERE service_name = ? AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, now, serviceName)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// TouchLastUsed records a use unless one was already recorded after notBefore,
// so a busy caller costs at most one write per interval.
func (r *ServiceKeyRepository) TouchLastUsed(ctx context.Context, id uint64, now, notBefore time.Time) error {
	query := `UPDATE service_keys SET last_used_at = ? WHERE id = ? AND (last_used_at IS NULL OR last_used_at < ?)`
	_, err := r.db.ExecContext(ctx, query, now, id, notBefore)
	return err
}

func encodeGrants(grants map[string]time.Time) (string, error) {
	if grants == nil {
		grants = map[string]time.Time{}
	}
	payload, err := json.Marshal(grants)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func scanServiceKey(scan rowScanner) (*entity.ServiceKey, error) {
	key := &entity.ServiceKey{}
	var grantsJSON string
	if err := scan(
		&key.ID,
		&key.ServiceName,
		&key.KeyPrefix,
		&key.KeyHash,
		&grantsJSON,
		&key.RevokedAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(grantsJSON), &key.Grants); err != nil {
		return nil, err
	}
	return key, nil
}
