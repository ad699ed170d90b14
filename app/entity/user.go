package entity

import (
	"database/sql"
	"time"
)

type Role string

const (
	RoleRegular Role = "REGULAR"
	RoleAdmin   Role = "ADMIN"
)

type AuthMethod string

const (
	AuthMethodCredentials AuthMethod = "CREDENTIALS"
	AuthMethodGoogle      AuthMethod = "GOOGLE"
	AuthMethodYandex      AuthMethod = "YANDEX"
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash sql.NullString
	Role         Role
	IsVerified   bool
	AuthMethod   AuthMethod
	PictureURL   sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanUsePassword reports whether the account can authenticate with a password.
func (u *User) CanUsePassword() bool {
	return u.AuthMethod == AuthMethodCredentials && u.PasswordHash.Valid && u.PasswordHash.String != ""
}
