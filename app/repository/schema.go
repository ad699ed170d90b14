package repository

import (
	"context"
	"fmt"
)

// Emails and token values compare byte for byte: "User@x.io" and "user@x.io"
// are different accounts. The queries repeat the collation so a table created
// with the server default still matches exactly.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id CHAR(26) NOT NULL PRIMARY KEY,
		email VARCHAR(320) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
		display_name VARCHAR(100) NOT NULL,
		password_hash VARCHAR(255) NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'REGULAR',
		is_verified TINYINT(1) NOT NULL DEFAULT 0,
		auth_method VARCHAR(16) NOT NULL DEFAULT 'CREDENTIALS',
		picture_url VARCHAR(2048) NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS account_tokens (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(320) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
		token VARCHAR(64) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
		purpose VARCHAR(32) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_account_tokens_token (token, purpose),
		KEY idx_account_tokens_email (email, purpose),
		KEY idx_account_tokens_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS service_keys (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		service_name VARCHAR(100) NOT NULL,
		key_prefix VARCHAR(32) NOT NULL,
		key_hash CHAR(64) NOT NULL,
		grants_json JSON NOT NULL,
		revoked_at DATETIME(6) NULL,
		last_used_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_service_keys_hash (key_hash),
		KEY idx_service_keys_service (service_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

// Migrate creates the tables the account service needs. It is safe to run
// against an existing database.
func Migrate(ctx context.Context, db DBTX) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
