package dto

import "github.com/vibast-solutions/ms-go-account/app/entity"

type RegisterResult struct {
	UserID string
	Email  string
}

// SessionResult is returned by every operation that logs the user in.
type SessionResult struct {
	SessionID string
	User      *entity.User
}

// ServiceCaller identifies the service behind an authorized key.
type ServiceCaller struct {
	ServiceName string
	KeyID       uint64
	Scope       string
}
