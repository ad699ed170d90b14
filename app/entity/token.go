package entity

import "time"

type TokenPurpose string

const (
	TokenPurposeVerification  TokenPurpose = "VERIFICATION"
	TokenPurposePasswordReset TokenPurpose = "PASSWORD_RESET"
)

type Token struct {
	ID        uint64
	Email     string
	Value     string
	Purpose   TokenPurpose
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *Token) IsExpiredAt(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
