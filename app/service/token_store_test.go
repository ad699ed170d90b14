package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTokenStore(t *testing.T) (*service.TokenStore, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	f := newAccountFixture(t)
	return f.tokens, f.mock, f.now
}

func TestTokenStore_IssueSupersedesPreviousToken(t *testing.T) {
	store, mock, now := newTokenStore(t)
	ctx := context.Background()

	first := &capturedString{}
	second := &capturedString{}

	mock.ExpectBegin()
	mock.ExpectExec(deleteTokensQuery).
		WithArgs("a@x.com", "VERIFICATION").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertTokenQuery).
		WithArgs("a@x.com", first, "VERIFICATION", now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(deleteTokensQuery).
		WithArgs("a@x.com", "VERIFICATION").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertTokenQuery).
		WithArgs("a@x.com", second, "VERIFICATION", now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	t1, err := store.Issue(ctx, "a@x.com", entity.TokenPurposeVerification)
	if err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	t2, err := store.Issue(ctx, "a@x.com", entity.TokenPurposeVerification)
	if err != nil {
		t.Fatalf("second issue failed: %v", err)
	}

	if t1.Value == t2.Value || t1.Value != first.value || t2.Value != second.value {
		t.Fatalf("expected two distinct stored values, got %q and %q", t1.Value, t2.Value)
	}
	if t2.ID != 2 || !t2.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected second token: %+v", t2)
	}

	// The delete above removed the first token, so it no longer redeems.
	mock.ExpectQuery(findTokenQuery).
		WithArgs(t1.Value, "VERIFICATION").
		WillReturnRows(sqlmock.NewRows(tokenColumns))

	if _, err := store.Redeem(ctx, t1.Value, entity.TokenPurposeVerification); !errors.Is(err, service.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for superseded token, got %v", err)
	}
}

func TestTokenStore_IssueRollsBackOnInsertFailure(t *testing.T) {
	store, mock, _ := newTokenStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(deleteTokensQuery).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertTokenQuery).
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	if _, err := store.Issue(context.Background(), "a@x.com", entity.TokenPurposePasswordReset); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTokenStore_Redeem(t *testing.T) {
	store, mock, now := newTokenStore(t)
	ctx := context.Background()

	mock.ExpectQuery(findTokenQuery).
		WithArgs("live", "PASSWORD_RESET").
		WillReturnRows(tokenRows(3, "a@x.com", "live", entity.TokenPurposePasswordReset, now.Add(time.Minute)))
	mock.ExpectQuery(findTokenQuery).
		WithArgs("old", "PASSWORD_RESET").
		WillReturnRows(tokenRows(4, "a@x.com", "old", entity.TokenPurposePasswordReset, now.Add(-time.Second)))
	mock.ExpectQuery(findTokenQuery).
		WithArgs("live", "VERIFICATION").
		WillReturnRows(sqlmock.NewRows(tokenColumns))

	token, err := store.Redeem(ctx, "live", entity.TokenPurposePasswordReset)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if token.ID != 3 || token.Email != "a@x.com" || token.Purpose != entity.TokenPurposePasswordReset {
		t.Fatalf("unexpected token: %+v", token)
	}

	// Redeeming an expired token deletes nothing.
	if _, err := store.Redeem(ctx, "old", entity.TokenPurposePasswordReset); !errors.Is(err, service.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := store.Redeem(ctx, "live", entity.TokenPurposeVerification); !errors.Is(err, service.ErrTokenNotFound) {
		t.Fatalf("expected purpose mismatch to be ErrTokenNotFound, got %v", err)
	}
	if _, err := store.Redeem(ctx, "", entity.TokenPurposeVerification); !errors.Is(err, service.ErrTokenNotFound) {
		t.Fatalf("expected empty value to be ErrTokenNotFound, got %v", err)
	}
}

func TestTokenStore_WithTxLocksAndConsumes(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(findTokenForUpdateQuery).
		WithArgs("tok", "VERIFICATION").
		WillReturnRows(tokenRows(5, "a@x.com", "tok", entity.TokenPurposeVerification, f.now.Add(time.Minute)))
	f.mock.ExpectExec(deleteTokenByIDQuery).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(deleteTokenByIDQuery).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	defer tx.Rollback()

	store := f.tokens.WithTx(tx)
	token, err := store.Redeem(ctx, "tok", entity.TokenPurposeVerification)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if err := store.Consume(ctx, token); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if err := store.Consume(ctx, token); !errors.Is(err, service.ErrTokenNotFound) {
		t.Fatalf("expected second consume to report ErrTokenNotFound, got %v", err)
	}
}

func TestTokenStore_PurgeExpired(t *testing.T) {
	store, mock, now := newTokenStore(t)

	mock.ExpectExec(deleteExpiredQuery).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := store.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected 4 removed tokens, got %d", removed)
	}
}
