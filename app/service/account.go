package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/metrics"
	"github.com/vibast-solutions/ms-go-account/app/notifier"
	"github.com/vibast-solutions/ms-go-account/app/repository"
	"github.com/vibast-solutions/ms-go-account/app/session"
	"github.com/vibast-solutions/ms-go-account/config"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	maxDisplayNameLength = 100
	backgroundTimeout    = 10 * time.Second
	dummyPassword        = "account-timing-equalizer"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hashed, password string) bool
	NeedsRehash(hashed string) bool
}

type SessionStore interface {
	Create(ctx context.Context, userID string) (string, error)
	Get(ctx context.Context, sessionID string) (*session.Record, error)
	Destroy(ctx context.Context, sessionID string) error
	DestroyAllForUser(ctx context.Context, userID string) (int, error)
}

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByID(ctx context.Context, id string) (*entity.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error
	UpdateDisplayName(ctx context.Context, id, displayName string, now time.Time) error
}

type AsyncRunner func(task func())

type AccountServiceOption func(*AccountService)

// AccountService drives registration, login, email verification and
// password reset over the user table, the token store and the session store.
type AccountService struct {
	db          *sql.DB
	users       userRepository
	tokens      *TokenStore
	sessions    SessionStore
	hasher      PasswordHasher
	notifier    notifier.Notifier
	policy      config.PasswordPolicy
	metrics     *metrics.Metrics
	asyncRunner AsyncRunner
	tasks       errgroup.Group
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAccountService(
	db *sql.DB,
	users userRepository,
	tokens *TokenStore,
	sessions SessionStore,
	hasher PasswordHasher,
	tokenNotifier notifier.Notifier,
	policy config.PasswordPolicy,
	opts ...AccountServiceOption,
) *AccountService {
	svc := &AccountService{
		db:       db,
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		hasher:   hasher,
		notifier: tokenNotifier,
		policy:   policy,
		now:      time.Now,
	}
	svc.asyncRunner = func(task func()) {
		svc.tasks.Go(func() error {
			task()
			return nil
		})
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Wait blocks until background notifications and rehashes started by the
// default runner have finished, or ctx is done.
func (s *AccountService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func WithAsyncRunner(runner AsyncRunner) AccountServiceOption {
	return func(s *AccountService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

func WithMetrics(m *metrics.Metrics) AccountServiceOption {
	return func(s *AccountService) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) AccountServiceOption {
	return func(s *AccountService) {
		if now != nil {
			s.now = now
		}
	}
}

// Register creates an unverified account and sends it a verification token.
// No session is created until the email is confirmed.
func (s *AccountService) Register(ctx context.Context, email, displayName, password string) (_ *dto.RegisterResult, err error) {
	defer s.observe("register", &err)

	email, err = normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	displayName, err = normalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	if err = s.policy.Validate(password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	id, err := ulid.New(ulid.Timestamp(s.now()), rand.Reader)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &entity.User{
		ID:           id.String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: sql.NullString{String: passwordHash, Valid: true},
		Role:         entity.RoleRegular,
		IsVerified:   false,
		AuthMethod:   entity.AuthMethodCredentials,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err = repository.NewUserRepository(tx).Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	token, err := s.tokens.WithTx(tx).Issue(ctx, user.Email, entity.TokenPurposeVerification)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	s.notify(token)

	return &dto.RegisterResult{
		UserID: user.ID,
		Email:  user.Email,
	}, nil
}

// Login authenticates credentials and opens a session. Unknown emails, accounts
// without a password and wrong passwords all fail with ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (_ *dto.SessionResult, err error) {
	defer s.observe("login", &err)

	email = strings.TrimSpace(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user == nil || !user.CanUsePassword() {
		s.verifyDummy(password)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(user.PasswordHash.String, password) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		token, err := s.tokens.Issue(ctx, user.Email, entity.TokenPurposeVerification)
		if err != nil {
			return nil, err
		}
		s.notify(token)
		return nil, ErrEmailNotVerified
	}

	sessionID, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if s.hasher.NeedsRehash(user.PasswordHash.String) {
		s.rehash(user.ID, password)
	}

	return &dto.SessionResult{
		SessionID: sessionID,
		User:      user,
	}, nil
}

func (s *AccountService) Logout(ctx context.Context, sessionID string) (err error) {
	defer s.observe("logout", &err)

	if err = s.sessions.Destroy(ctx, sessionID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ConfirmEmail verifies the account owning a VERIFICATION token and logs it in.
// Marking the user verified and consuming the token commit together.
func (s *AccountService) ConfirmEmail(ctx context.Context, tokenValue string) (_ *dto.SessionResult, err error) {
	defer s.observe("confirm_email", &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tokens := s.tokens.WithTx(tx)
	token, err := tokens.Redeem(ctx, strings.TrimSpace(tokenValue), entity.TokenPurposeVerification)
	if err != nil {
		return nil, err
	}

	txUserRepo := repository.NewUserRepository(tx)
	user, err := txUserRepo.FindByEmail(ctx, token.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	now := s.now()
	if err = txUserRepo.MarkVerified(ctx, user.ID, now); err != nil {
		return nil, err
	}
	if err = tokens.Consume(ctx, token); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	user.IsVerified = true
	user.UpdatedAt = now

	sessionID, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &dto.SessionResult{
		SessionID: sessionID,
		User:      user,
	}, nil
}

// SendVerificationToken always succeeds for unknown or already verified emails.
func (s *AccountService) SendVerificationToken(ctx context.Context, email string) (err error) {
	defer s.observe("send_verification", &err)

	email = strings.TrimSpace(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		logrus.WithField("email", email).Debug("Verification requested for unknown email")
		return nil
	}
	if user.IsVerified {
		logrus.WithField("user_id", user.ID).Debug("Verification requested for verified account")
		return nil
	}

	token, err := s.tokens.Issue(ctx, user.Email, entity.TokenPurposeVerification)
	if err != nil {
		return err
	}
	s.notify(token)
	return nil
}

// SendPasswordResetToken always succeeds for unknown emails.
func (s *AccountService) SendPasswordResetToken(ctx context.Context, email string) (err error) {
	defer s.observe("send_password_reset", &err)

	email = strings.TrimSpace(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		logrus.WithField("email", email).Debug("Password reset requested for unknown email")
		return nil
	}

	token, err := s.tokens.Issue(ctx, user.Email, entity.TokenPurposePasswordReset)
	if err != nil {
		return err
	}
	s.notify(token)
	return nil
}

// ResetPassword sets a new password with a PASSWORD_RESET token. The password
// update and the token deletion commit together, then every session of the
// user is destroyed.
func (s *AccountService) ResetPassword(ctx context.Context, tokenValue, password, confirmPassword, currentSessionID string) (err error) {
	defer s.observe("reset_password", &err)

	if password != confirmPassword {
		return ErrPasswordMismatch
	}
	if err = s.policy.Validate(password); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tokens := s.tokens.WithTx(tx)
	token, err := tokens.Redeem(ctx, strings.TrimSpace(tokenValue), entity.TokenPurposePasswordReset)
	if err != nil {
		return err
	}

	txUserRepo := repository.NewUserRepository(tx)
	user, err := txUserRepo.FindByEmail(ctx, token.Email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err = txUserRepo.UpdatePassword(ctx, user.ID, passwordHash, s.now()); err != nil {
		return err
	}
	if err = tokens.Consume(ctx, token); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	// The password is already changed; session cleanup failures are logged only.
	if currentSessionID != "" {
		if destroyErr := s.sessions.Destroy(ctx, currentSessionID); destroyErr != nil {
			logrus.WithError(destroyErr).WithField("user_id", user.ID).Error("Failed to destroy current session after password reset")
		}
	}
	if _, destroyErr := s.sessions.DestroyAllForUser(ctx, user.ID); destroyErr != nil {
		logrus.WithError(destroyErr).WithField("user_id", user.ID).Error("Failed to destroy user sessions after password reset")
	}

	return nil
}

// CurrentUser resolves the user behind a session id.
func (s *AccountService) CurrentUser(ctx context.Context, sessionID string) (*entity.User, error) {
	user, err := s.ResolveSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrUnauthenticated
	}
	return user, err
}

// ResolveSession is CurrentUser for other services: a missing session is NotFound.
func (s *AccountService) ResolveSession(ctx context.Context, sessionID string) (*entity.User, error) {
	record, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if record == nil {
		return nil, ErrSessionNotFound
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	return user, nil
}

// GetUser loads any account by id for administrators.
func (s *AccountService) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, userID, displayName string) (_ *entity.User, err error) {
	defer s.observe("update_profile", &err)

	displayName, err = normalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}

	if err = s.users.UpdateDisplayName(ctx, userID, displayName, s.now()); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AccountService) createSession(ctx context.Context, userID string) (string, error) {
	sessionID, err := s.sessions.Create(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	s.metrics.SessionCreated()
	return sessionID, nil
}

// notify hands the token to the notifier without blocking the caller. A failed
// delivery leaves the token valid and is only logged and counted.
func (s *AccountService) notify(token *entity.Token) {
	purpose := string(token.Purpose)
	s.metrics.TokenIssued(purpose)

	msg := notifier.Message{
		Email:     token.Email,
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
	}
	s.asyncRunner(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		var err error
		switch token.Purpose {
		case entity.TokenPurposeVerification:
			err = s.notifier.SendVerification(ctx, msg)
		case entity.TokenPurposePasswordReset:
			err = s.notifier.SendPasswordReset(ctx, msg)
		}
		if err != nil {
			s.metrics.NotificationFailed(purpose)
			logrus.WithError(err).WithFields(logrus.Fields{
				"email":   token.Email,
				"purpose": purpose,
			}).Error("Failed to send token notification")
		}
	})
}

func (s *AccountService) rehash(userID, password string) {
	s.asyncRunner(func() {
		passwordHash, err := s.hasher.Hash(password)
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("Failed to rehash password")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		if err = s.users.UpdatePassword(ctx, userID, passwordHash, s.now()); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("Failed to store rehashed password")
		}
	})
}

// verifyDummy spends the same hashing work as a real verification so unknown
// emails cannot be told apart by response time.
func (s *AccountService) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			logrus.WithError(err).Warn("Failed to prepare dummy password hash")
			return
		}
		s.dummyHash = hash
	})
	s.hasher.Verify(s.dummyHash, password)
}

func (s *AccountService) observe(operation string, errp *error) {
	outcome := metrics.OutcomeOK
	if *errp != nil {
		outcome = strings.ToLower(string(KindOf(*errp)))
	}
	s.metrics.ObserveOperation(operation, outcome)
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func normalizeDisplayName(displayName string) (string, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return "", ErrInvalidDisplayName
	}
	return displayName, nil
}
