package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/metrics"

	"github.com/sirupsen/logrus"
)

const (
	serviceKeyPrefix      = "acctsk_"
	serviceKeyPrefixShown = len(serviceKeyPrefix) + 8
	lastUsedInterval      = time.Minute
)

// Outcomes recorded for every service key check.
const (
	keyOutcomeInvalid      = "invalid_key"
	keyOutcomeRevoked      = "revoked"
	keyOutcomeScopeMissing = "scope_missing"
	keyOutcomeScopeExpired = "scope_expired"
)

var (
	ErrServiceNameRequired = errors.New("service name is required")
	ErrInvalidGrantTTL     = errors.New("grant ttl must be positive")
	ErrNoActiveServiceKeys = errors.New("service has no active keys")
)

type ServiceKeyRepository interface {
	Create(ctx context.Context, key *entity.ServiceKey) error
	FindByHash(ctx context.Context, keyHash string) (*entity.ServiceKey, error)
	ListByService(ctx context.Context, serviceName string) ([]*entity.ServiceKey, error)
	RevokeByService(ctx context.Context, serviceName string, now time.Time) (int64, error)
	TouchLastUsed(ctx context.Context, id uint64, now, notBefore time.Time) error
}

type ServiceKeyOption func(*ServiceKeyService)

func WithServiceKeyMetrics(m *metrics.Metrics) ServiceKeyOption {
	return func(s *ServiceKeyService) {
		s.metrics = m
	}
}

func WithServiceKeyClock(now func() time.Time) ServiceKeyOption {
	return func(s *ServiceKeyService) {
		s.now = now
	}
}

// ServiceKeyService issues and checks the keys other services present when
// they resolve a session cookie. A key grants scopes, each until its own
// expiry, and every check is counted per calling service.
type ServiceKeyService struct {
	keys    ServiceKeyRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewServiceKeyService(keys ServiceKeyRepository, opts ...ServiceKeyOption) *ServiceKeyService {
	s := &ServiceKeyService{keys: keys, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize admits rawKey for scope and names the calling service.
func (s *ServiceKeyService) Authorize(ctx context.Context, rawKey, scope string) (*dto.ServiceCaller, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		s.metrics.ServiceKeyChecked("", scope, keyOutcomeInvalid)
		return nil, ErrInvalidServiceKey
	}

	key, err := s.keys.FindByHash(ctx, hashServiceKey(rawKey))
	if err != nil {
		return nil, err
	}
	if key == nil {
		s.metrics.ServiceKeyChecked("", scope, keyOutcomeInvalid)
		return nil, ErrInvalidServiceKey
	}
	if key.IsRevoked() {
		s.metrics.ServiceKeyChecked(key.ServiceName, scope, keyOutcomeRevoked)
		return nil, ErrInvalidServiceKey
	}

	expiresAt, granted := key.GrantExpiry(scope)
	if !granted {
		s.metrics.ServiceKeyChecked(key.ServiceName, scope, keyOutcomeScopeMissing)
		return nil, ErrScopeNotGranted
	}
	now := s.now()
	if !expiresAt.After(now) {
		s.metrics.ServiceKeyChecked(key.ServiceName, scope, keyOutcomeScopeExpired)
		return nil, ErrScopeExpired
	}

	if err := s.keys.TouchLastUsed(ctx, key.ID, now, now.Add(-lastUsedInterval)); err != nil {
		logrus.WithError(err).WithField("service_key_id", key.ID).Warn("Failed to record service key use")
	}
	s.metrics.ServiceKeyChecked(key.ServiceName, scope, metrics.OutcomeOK)

	return &dto.ServiceCaller{
		ServiceName: key.ServiceName,
		KeyID:       key.ID,
		Scope:       scope,
	}, nil
}

// Issue creates a new key for serviceName granting scope for ttl. Existing
// keys stay valid so a caller can roll over before revoking the old ones.
func (s *ServiceKeyService) Issue(ctx context.Context, serviceName, scope string, ttl time.Duration) (string, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return "", ErrServiceNameRequired
	}
	if ttl <= 0 {
		return "", ErrInvalidGrantTTL
	}

	rawKey, err := generateServiceKey()
	if err != nil {
		return "", err
	}

	now := s.now()
	key := &entity.ServiceKey{
		ServiceName: serviceName,
		KeyPrefix:   rawKey[:serviceKeyPrefixShown],
		KeyHash:     hashServiceKey(rawKey),
		Grants:      map[string]time.Time{scope: now.Add(ttl)},
		CreatedAt:   now,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"service":    serviceName,
		"key_prefix": key.KeyPrefix,
		"scope":      scope,
	}).Info("Service key issued")
	return rawKey, nil
}

func (s *ServiceKeyService) List(ctx context.Context, serviceName string) ([]*entity.ServiceKey, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return nil, ErrServiceNameRequired
	}
	return s.keys.ListByService(ctx, serviceName)
}

// Revoke disables every key of serviceName at once.
func (s *ServiceKeyService) Revoke(ctx context.Context, serviceName string) (int, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return 0, ErrServiceNameRequired
	}

	revoked, err := s.keys.RevokeByService(ctx, serviceName, s.now())
	if err != nil {
		return 0, err
	}
	if revoked == 0 {
		return 0, ErrNoActiveServiceKeys
	}
	return int(revoked), nil
}

func generateServiceKey() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return serviceKeyPrefix + hex.EncodeToString(secret), nil
}

func hashServiceKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
