package grpc

import (
	"context"
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "account.v1.AccountService"

type accountService interface {
	Register(ctx context.Context, email, displayName, password string) (*dto.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*dto.SessionResult, error)
	Logout(ctx context.Context, sessionID string) error
	ConfirmEmail(ctx context.Context, token string) (*dto.SessionResult, error)
	SendVerificationToken(ctx context.Context, email string) error
	SendPasswordResetToken(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password, confirmPassword, currentSessionID string) error
	ResolveSession(ctx context.Context, sessionID string) (*entity.User, error)
}

type sessionCookies interface {
	Issue(sessionID string) (*http.Cookie, error)
	Parse(value string) (string, error)
}

// AccountServiceServer is the server API of account.v1.AccountService. Every
// message is a google.protobuf.Struct; the "session" field carries the same
// signed value as the HTTP session cookie.
type AccountServiceServer interface {
	Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConfirmEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RequestVerificationEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RequestPasswordReset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResolveSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type AccountServer struct {
	accounts accountService
	cookies  sessionCookies
}

func NewAccountServer(accounts accountService, cookies sessionCookies) *AccountServer {
	return &AccountServer{accounts: accounts, cookies: cookies}
}

func RegisterAccountServer(registrar gogrpc.ServiceRegistrar, srv AccountServiceServer) {
	registrar.RegisterService(&accountServiceDesc, srv)
}

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func (s *AccountServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email := stringField(req, "email")
	displayName := stringField(req, "display_name")
	password := stringField(req, "password")
	if email == "" || displayName == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "email, display_name and password are required")
	}

	logrus.WithField("email", email).Info("Register request received (grpc)")
	res, err := s.accounts.Register(ctx, email, displayName, password)
	if err != nil {
		return nil, toStatus(err, logrus.Fields{"email": email}, "Register failed (grpc)")
	}

	logrus.WithFields(logrus.Fields{
		"user_id": res.UserID,
		"email":   res.Email,
	}).Info("User registered (grpc)")

	return newStruct(map[string]any{
		"user_id": res.UserID,
		"email":   res.Email,
	})
}

func (s *AccountServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email := stringField(req, "email")
	password := stringField(req, "password")
	if email == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password are required")
	}

	logrus.WithField("email", email).Info("Login request received (grpc)")
	res, err := s.accounts.Login(ctx, email, password)
	if err != nil {
		return nil, toStatus(err, logrus.Fields{"email": email}, "Login failed (grpc)")
	}

	return s.sessionResponse(res)
}

func (s *AccountServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessionID, err := s.cookies.Parse(stringField(req, "session"))
	if err != nil {
		return nil, toStatus(service.ErrUnauthenticated, nil, "")
	}

	if err = s.accounts.Logout(ctx, sessionID); err != nil {
		return nil, toStatus(err, nil, "Logout failed (grpc)")
	}
	return newStruct(map[string]any{"message": "logged out successfully"})
}

func (s *AccountServer) ConfirmEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}

	res, err := s.accounts.ConfirmEmail(ctx, token)
	if err != nil {
		return nil, toStatus(err, nil, "Email confirmation failed (grpc)")
	}

	logrus.WithField("user_id", res.User.ID).Info("Email verified (grpc)")
	return s.sessionResponse(res)
}

func (s *AccountServer) RequestVerificationEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email := stringField(req, "email")
	if email == "" {
		return nil, status.Error(codes.InvalidArgument, "email is required")
	}

	if err := s.accounts.SendVerificationToken(ctx, email); err != nil {
		return nil, toStatus(err, logrus.Fields{"email": email}, "Send verification email failed (grpc)")
	}
	return newStruct(map[string]any{"message": "if the account exists and is not verified, a verification email has been sent"})
}

func (s *AccountServer) RequestPasswordReset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email := stringField(req, "email")
	if email == "" {
		return nil, status.Error(codes.InvalidArgument, "email is required")
	}

	if err := s.accounts.SendPasswordResetToken(ctx, email); err != nil {
		return nil, toStatus(err, logrus.Fields{"email": email}, "Send password reset email failed (grpc)")
	}
	return newStruct(map[string]any{"message": "if the account exists, a password reset email has been sent"})
}

func (s *AccountServer) ResetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	password := stringField(req, "password")
	confirmPassword := stringField(req, "confirm_password")
	if token == "" || password == "" || confirmPassword == "" {
		return nil, status.Error(codes.InvalidArgument, "token, password and confirm_password are required")
	}

	// The caller's own session is optional here.
	currentSessionID, _ := s.cookies.Parse(stringField(req, "session"))

	if err := s.accounts.ResetPassword(ctx, token, password, confirmPassword, currentSessionID); err != nil {
		return nil, toStatus(err, nil, "Password reset failed (grpc)")
	}
	return newStruct(map[string]any{"message": "password reset successfully"})
}

func (s *AccountServer) ResolveSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	value := stringField(req, "session")
	if value == "" {
		return nil, status.Error(codes.InvalidArgument, "session is required")
	}

	sessionID, err := s.cookies.Parse(value)
	if err != nil {
		return nil, toStatus(service.ErrSessionNotFound, nil, "")
	}

	user, err := s.accounts.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, toStatus(err, logrus.Fields{"caller_service": CallerServiceFromContext(ctx)}, "Resolve session failed (grpc)")
	}

	fields := map[string]any{
		"id":           user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"role":         string(user.Role),
		"is_verified":  user.IsVerified,
		"auth_method":  string(user.AuthMethod),
		"created_at":   user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.PictureURL.Valid {
		fields["picture_url"] = user.PictureURL.String
	}
	return newStruct(fields)
}

func (s *AccountServer) sessionResponse(res *dto.SessionResult) (*structpb.Struct, error) {
	cookie, err := s.cookies.Issue(res.SessionID)
	if err != nil {
		return nil, toStatus(err, logrus.Fields{"user_id": res.User.ID}, "Failed to sign session")
	}
	return newStruct(map[string]any{
		"user_id": res.User.ID,
		"session": cookie.Value,
	})
}
