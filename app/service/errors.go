package service

import "errors"

// Kind classifies a domain failure independently of the transport.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindExpired      Kind = "EXPIRED"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindValidation   Kind = "VALIDATION_FAILED"
	KindInternal     Kind = "INTERNAL"
)

// Error is a domain failure with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrEmailTaken         = &Error{Kind: KindConflict, Code: "EMAIL_TAKEN", Message: "email is already registered"}
	ErrInvalidEmail       = &Error{Kind: KindValidation, Code: "INVALID_EMAIL", Message: "email is invalid"}
	ErrInvalidDisplayName = &Error{Kind: KindValidation, Code: "INVALID_DISPLAY_NAME", Message: "display name must be between 1 and 100 characters"}
	ErrWeakPassword       = &Error{Kind: KindValidation, Code: "WEAK_PASSWORD", Message: "password does not meet policy requirements"}
	ErrInvalidCredentials = &Error{Kind: KindNotFound, Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}
	ErrEmailNotVerified   = &Error{Kind: KindUnauthorized, Code: "EMAIL_NOT_VERIFIED", Message: "email is not verified, a new verification link has been sent"}
	ErrTokenNotFound      = &Error{Kind: KindNotFound, Code: "TOKEN_NOT_FOUND", Message: "token not found"}
	ErrTokenExpired       = &Error{Kind: KindExpired, Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrPasswordMismatch   = &Error{Kind: KindConflict, Code: "PASSWORD_MISMATCH", Message: "passwords do not match"}
	ErrUnauthenticated    = &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: "authentication required"}
	ErrSessionNotFound    = &Error{Kind: KindNotFound, Code: "SESSION_NOT_FOUND", Message: "session not found"}
	ErrInvalidServiceKey  = &Error{Kind: KindUnauthorized, Code: "INVALID_API_KEY", Message: "invalid or revoked service key"}
	ErrScopeNotGranted    = &Error{Kind: KindUnauthorized, Code: "SCOPE_NOT_GRANTED", Message: "service key does not grant this scope"}
	ErrScopeExpired       = &Error{Kind: KindUnauthorized, Code: "SCOPE_EXPIRED", Message: "service key grant for this scope has expired"}
)

// KindOf returns the kind of the domain error wrapped in err. Anything that
// is not a domain error is internal.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of a domain error, or the kind for anything else.
func CodeOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return string(KindInternal)
}
