package controller

import (
	"context"
	"net/http"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	httpdto "github.com/vibast-solutions/ms-go-account/app/dto/http"
	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/middleware"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type accountService interface {
	Register(ctx context.Context, email, displayName, password string) (*dto.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*dto.SessionResult, error)
	Logout(ctx context.Context, sessionID string) error
	ConfirmEmail(ctx context.Context, token string) (*dto.SessionResult, error)
	SendVerificationToken(ctx context.Context, email string) error
	SendPasswordResetToken(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password, confirmPassword, currentSessionID string) error
	UpdateProfile(ctx context.Context, userID, displayName string) (*entity.User, error)
	GetUser(ctx context.Context, userID string) (*entity.User, error)
}

type sessionCookies interface {
	Issue(sessionID string) (*http.Cookie, error)
	Clear() *http.Cookie
	SessionID(r *http.Request) string
}

type AccountController struct {
	accounts accountService
	cookies  sessionCookies
}

func NewAccountController(accounts accountService, cookies sessionCookies) *AccountController {
	return &AccountController{accounts: accounts, cookies: cookies}
}

func (c *AccountController) Register(ctx echo.Context) error {
	req, err := httpdto.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return writeBindError(ctx)
	}
	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Register validation failed")
		return writeValidationError(ctx, err)
	}

	logrus.WithField("email", req.Email).Info("Register request received")
	result, err := c.accounts.Register(ctx.Request().Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		return c.fail(ctx, err, logrus.Fields{"email": req.Email}, "Register failed")
	}

	logrus.WithFields(logrus.Fields{
		"user_id": result.UserID,
		"email":   result.Email,
	}).Info("User registered")

	return ctx.JSON(http.StatusCreated, httpdto.RegisterResponse{
		UserID:  result.UserID,
		Email:   result.Email,
		Message: "registration successful, check your email to verify the account",
	})
}

func (c *AccountController) Login(ctx echo.Context) error {
	req, err := httpdto.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return writeBindError(ctx)
	}
	if err = req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	logrus.WithField("email", req.Email).Info("Login request received")
	result, err := c.accounts.Login(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		return c.fail(ctx, err, logrus.Fields{"email": req.Email}, "Login failed")
	}

	logrus.WithField("user_id", result.User.ID).Info("Login successful")
	return c.startSession(ctx, result)
}

func (c *AccountController) Logout(ctx echo.Context) error {
	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		return writeServiceError(ctx, service.ErrUnauthenticated)
	}
	sessionID := middleware.SessionIDFromContext(ctx)

	if err := c.accounts.Logout(ctx.Request().Context(), sessionID); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Logout failed")
		return writeServiceError(ctx, err)
	}

	logrus.WithField("user_id", user.ID).Info("Logout successful")
	ctx.SetCookie(c.cookies.Clear())
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "logged out successfully"})
}

func (c *AccountController) ConfirmEmail(ctx echo.Context) error {
	req, err := httpdto.NewConfirmEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind confirm email request")
		return writeBindError(ctx)
	}
	if err = req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	result, err := c.accounts.ConfirmEmail(ctx.Request().Context(), req.Token)
	if err != nil {
		return c.fail(ctx, err, nil, "Email confirmation failed")
	}

	logrus.WithField("user_id", result.User.ID).Info("Email verified")
	return c.startSession(ctx, result)
}

func (c *AccountController) SendVerificationEmail(ctx echo.Context) error {
	req, err := httpdto.NewEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind verification email request")
		return writeBindError(ctx)
	}
	if err = req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	if err = c.accounts.SendVerificationToken(ctx.Request().Context(), req.Email); err != nil {
		return c.fail(ctx, err, logrus.Fields{"email": req.Email}, "Send verification email failed")
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{
		Message: "if the account exists and is not verified, a verification email has been sent",
	})
}

func (c *AccountController) SendPasswordResetEmail(ctx echo.Context) error {
	req, err := httpdto.NewEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind password reset email request")
		return writeBindError(ctx)
	}
	if err = req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	if err = c.accounts.SendPasswordResetToken(ctx.Request().Context(), req.Email); err != nil {
		return c.fail(ctx, err, logrus.Fields{"email": req.Email}, "Send password reset email failed")
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{
		Message: "if the account exists, a password reset email has been sent",
	})
}

func (c *AccountController) ResetPassword(ctx echo.Context) error {
	req, err := httpdto.NewResetPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind reset password request")
		return writeBindError(ctx)
	}
	if err = req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	currentSessionID := c.cookies.SessionID(ctx.Request())
	err = c.accounts.ResetPassword(ctx.Request().Context(), req.Token, req.Password, req.ConfirmPassword, currentSessionID)
	if err != nil {
		return c.fail(ctx, err, nil, "Password reset failed")
	}

	ctx.SetCookie(c.cookies.Clear())
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password reset successfully"})
}

func (c *AccountController) Me(ctx echo.Context) error {
	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		return writeServiceError(ctx, service.ErrUnauthenticated)
	}
	return ctx.JSON(http.StatusOK, httpdto.NewUserResponse(user))
}

func (c *AccountController) UpdateMe(ctx echo.Context) error {
	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		return writeServiceError(ctx, service.ErrUnauthenticated)
	}

	req, err := httpdto.NewUpdateProfileRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind update profile request")
		return writeBindError(ctx)
	}
	if err = req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	updated, err := c.accounts.UpdateProfile(ctx.Request().Context(), user.ID, req.DisplayName)
	if err != nil {
		return c.fail(ctx, err, logrus.Fields{"user_id": user.ID}, "Profile update failed")
	}

	return ctx.JSON(http.StatusOK, httpdto.NewUserResponse(updated))
}

// GetUser serves GET /api/users/:id behind the ADMIN role gate.
func (c *AccountController) GetUser(ctx echo.Context) error {
	req, err := httpdto.NewGetUserRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind get user request")
		return writeBindError(ctx)
	}
	if err = req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	user, err := c.accounts.GetUser(ctx.Request().Context(), req.ID)
	if err != nil {
		return c.fail(ctx, err, logrus.Fields{"user_id": req.ID}, "Get user failed")
	}

	return ctx.JSON(http.StatusOK, httpdto.NewUserResponse(user))
}

func (c *AccountController) startSession(ctx echo.Context, result *dto.SessionResult) error {
	cookie, err := c.cookies.Issue(result.SessionID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", result.User.ID).Error("Failed to sign session cookie")
		return writeServiceError(ctx, err)
	}

	ctx.SetCookie(cookie)
	return ctx.JSON(http.StatusOK, httpdto.SessionResponse{UserID: result.User.ID})
}

// fail logs a service error at warn for domain failures and error otherwise.
func (c *AccountController) fail(ctx echo.Context, err error, fields logrus.Fields, message string) error {
	entry := logrus.WithFields(fields)
	if service.KindOf(err) == service.KindInternal {
		entry.WithError(err).Error(message)
	} else {
		entry.WithField("code", service.CodeOf(err)).Warn(message)
	}
	return writeServiceError(ctx, err)
}
