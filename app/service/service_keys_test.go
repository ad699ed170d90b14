package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/metrics"
	"github.com/vibast-solutions/ms-go-account/app/repository"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newServiceKeyService(t *testing.T) (*service.ServiceKeyService, *accountFixture) {
	t.Helper()
	f := newAccountFixture(t)
	svc := service.NewServiceKeyService(
		repository.NewServiceKeyRepository(f.db),
		service.WithServiceKeyMetrics(f.metrics),
		service.WithServiceKeyClock(func() time.Time { return f.now }),
	)
	return svc, f
}

func hashKeyForTest(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

func serviceKeyRow(id uint64, service, grants string, revokedAt interface{}, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(serviceKeyColumns).
		AddRow(id, service, "acctsk_12345678", "hash", grants, revokedAt, nil, now)
}

func keyChecks(f *accountFixture, service, outcome string) float64 {
	return testutil.ToFloat64(f.metrics.ServiceKeyChecksTotal.WithLabelValues(service, entity.ScopeSessionsResolve, outcome))
}

func TestServiceKeyService_Authorize(t *testing.T) {
	svc, f := newServiceKeyService(t)
	rawKey := "acctsk_test_key"

	f.mock.ExpectQuery(findKeyByHashQuery).
		WithArgs(hashKeyForTest(rawKey)).
		WillReturnRows(serviceKeyRow(7, "billing", `{"sessions:resolve":"2026-03-02T12:00:00Z"}`, nil, f.now))
	f.mock.ExpectExec(touchKeyQuery).
		WithArgs(f.now, uint64(7), f.now.Add(-time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	caller, err := svc.Authorize(context.Background(), " "+rawKey+" ", entity.ScopeSessionsResolve)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if caller.ServiceName != "billing" || caller.KeyID != 7 || caller.Scope != entity.ScopeSessionsResolve {
		t.Fatalf("unexpected caller: %+v", caller)
	}
	if got := keyChecks(f, "billing", metrics.OutcomeOK); got != 1 {
		t.Fatalf("expected one ok check, got %v", got)
	}
}

func TestServiceKeyService_Authorize_TouchFailureStillAdmits(t *testing.T) {
	svc, f := newServiceKeyService(t)
	rawKey := "acctsk_test_key"

	f.mock.ExpectQuery(findKeyByHashQuery).
		WithArgs(hashKeyForTest(rawKey)).
		WillReturnRows(serviceKeyRow(7, "billing", `{"sessions:resolve":"2026-03-02T12:00:00Z"}`, nil, f.now))
	f.mock.ExpectExec(touchKeyQuery).
		WillReturnError(errors.New("db down"))

	if _, err := svc.Authorize(context.Background(), rawKey, entity.ScopeSessionsResolve); err != nil {
		t.Fatalf("expected the key to be admitted, got %v", err)
	}
}

func TestServiceKeyService_Authorize_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		rows    func(now time.Time) *sqlmock.Rows
		wantErr error
		service string
		outcome string
	}{
		{
			name:    "unknown key",
			rows:    func(time.Time) *sqlmock.Rows { return sqlmock.NewRows(serviceKeyColumns) },
			wantErr: service.ErrInvalidServiceKey,
			service: "unknown",
			outcome: "invalid_key",
		},
		{
			name: "revoked key",
			rows: func(now time.Time) *sqlmock.Rows {
				return serviceKeyRow(1, "billing", `{"sessions:resolve":"2026-03-02T12:00:00Z"}`, now.Add(-time.Hour), now)
			},
			wantErr: service.ErrInvalidServiceKey,
			service: "billing",
			outcome: "revoked",
		},
		{
			name: "scope never granted",
			rows: func(now time.Time) *sqlmock.Rows {
				return serviceKeyRow(1, "billing", `{}`, nil, now)
			},
			wantErr: service.ErrScopeNotGranted,
			service: "billing",
			outcome: "scope_missing",
		},
		{
			name: "grant expired",
			rows: func(now time.Time) *sqlmock.Rows {
				return serviceKeyRow(1, "billing", `{"sessions:resolve":"2026-03-01T12:00:00Z"}`, nil, now)
			},
			wantErr: service.ErrScopeExpired,
			service: "billing",
			outcome: "scope_expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := newServiceKeyService(t)
			f.mock.ExpectQuery(findKeyByHashQuery).
				WithArgs(hashKeyForTest("acctsk_key")).
				WillReturnRows(tt.rows(f.now))

			caller, err := svc.Authorize(context.Background(), "acctsk_key", entity.ScopeSessionsResolve)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if caller != nil {
				t.Fatalf("expected no caller, got %+v", caller)
			}
			if got := keyChecks(f, tt.service, tt.outcome); got != 1 {
				t.Fatalf("expected one %s check for %s, got %v", tt.outcome, tt.service, got)
			}
		})
	}
}

func TestServiceKeyService_Authorize_EmptyKey(t *testing.T) {
	svc, _ := newServiceKeyService(t)

	if _, err := svc.Authorize(context.Background(), "  ", entity.ScopeSessionsResolve); !errors.Is(err, service.ErrInvalidServiceKey) {
		t.Fatalf("expected ErrInvalidServiceKey, got %v", err)
	}
}

func TestServiceKeyService_Issue(t *testing.T) {
	svc, f := newServiceKeyService(t)

	keyPrefix := &capturedString{}
	keyHash := &capturedString{}
	f.mock.ExpectExec(insertKeyQuery).
		WithArgs("billing", keyPrefix, keyHash, `{"sessions:resolve":"2026-03-31T12:00:00Z"}`, f.now).
		WillReturnResult(sqlmock.NewResult(3, 1))

	rawKey, err := svc.Issue(context.Background(), " billing ", entity.ScopeSessionsResolve, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !strings.HasPrefix(rawKey, "acctsk_") || len(rawKey) != len("acctsk_")+64 {
		t.Fatalf("unexpected key format %q", rawKey)
	}
	if keyHash.value != hashKeyForTest(rawKey) {
		t.Fatalf("expected stored sha256 of the key, got %q", keyHash.value)
	}
	if !strings.HasPrefix(rawKey, keyPrefix.value) || len(keyPrefix.value) != len("acctsk_")+8 {
		t.Fatalf("unexpected stored prefix %q for key %q", keyPrefix.value, rawKey)
	}
}

func TestServiceKeyService_Issue_Validation(t *testing.T) {
	svc, _ := newServiceKeyService(t)

	if _, err := svc.Issue(context.Background(), " ", entity.ScopeSessionsResolve, time.Hour); !errors.Is(err, service.ErrServiceNameRequired) {
		t.Fatalf("expected ErrServiceNameRequired, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), "billing", entity.ScopeSessionsResolve, 0); !errors.Is(err, service.ErrInvalidGrantTTL) {
		t.Fatalf("expected ErrInvalidGrantTTL, got %v", err)
	}
}

func TestServiceKeyService_ListAndRevoke(t *testing.T) {
	svc, f := newServiceKeyService(t)

	f.mock.ExpectQuery(listKeysQuery).
		WithArgs("billing").
		WillReturnRows(serviceKeyRow(2, "billing", `{"sessions:resolve":"2026-03-02T12:00:00Z"}`, nil, f.now))
	f.mock.ExpectExec(revokeKeysQuery).
		WithArgs(f.now, "billing").
		WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectExec(revokeKeysQuery).
		WithArgs(f.now, "billing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	keys, err := svc.List(context.Background(), "billing")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != 2 {
		t.Fatalf("unexpected keys: %+v", keys)
	}

	count, err := svc.Revoke(context.Background(), "billing")
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked keys, got %d", count)
	}

	if _, err := svc.Revoke(context.Background(), "billing"); !errors.Is(err, service.ErrNoActiveServiceKeys) {
		t.Fatalf("expected ErrNoActiveServiceKeys, got %v", err)
	}
}
