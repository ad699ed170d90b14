package entity

import (
	"database/sql"
	"time"
)

// ScopeSessionsResolve lets a calling service turn a session cookie into its user.
const ScopeSessionsResolve = "sessions:resolve"

// ServiceKey authenticates another service. Each granted scope carries its own
// expiry, so a key can lose session access without being revoked.
type ServiceKey struct {
	ID          uint64
	ServiceName string
	KeyPrefix   string
	KeyHash     string
	Grants      map[string]time.Time
	RevokedAt   sql.NullTime
	LastUsedAt  sql.NullTime
	CreatedAt   time.Time
}

func (k *ServiceKey) IsRevoked() bool {
	return k.RevokedAt.Valid
}

// GrantExpiry returns when scope stops being granted, if it was granted at all.
func (k *ServiceKey) GrantExpiry(scope string) (time.Time, bool) {
	expiresAt, ok := k.Grants[scope]
	return expiresAt, ok
}
