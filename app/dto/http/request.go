package http

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func NewRegisterRequestFromContext(ctx echo.Context) (*RegisterRequest, error) {
	var body RegisterRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *RegisterRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email is required")
	}
	if strings.TrimSpace(r.DisplayName) == "" {
		missing = append(missing, "display_name is required")
	}
	if r.Password == "" {
		missing = append(missing, "password is required")
	}
	return validationError(missing)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return errors.New("email and password are required")
	}

	return nil
}

type ConfirmEmailRequest struct {
	Token string `json:"token"`
}

func NewConfirmEmailRequestFromContext(ctx echo.Context) (*ConfirmEmailRequest, error) {
	var body ConfirmEmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ConfirmEmailRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return errors.New("token is required")
	}

	return nil
}

// EmailRequest carries the address for the verification and password reset send endpoints.
type EmailRequest struct {
	Email string `json:"email"`
}

func NewEmailRequestFromContext(ctx echo.Context) (*EmailRequest, error) {
	var body EmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *EmailRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}

	return nil
}

type ResetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func NewResetPasswordRequestFromContext(ctx echo.Context) (*ResetPasswordRequest, error) {
	var body ResetPasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ResetPasswordRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Token) == "" {
		missing = append(missing, "token is required")
	}
	if r.Password == "" {
		missing = append(missing, "password is required")
	}
	if r.ConfirmPassword == "" {
		missing = append(missing, "confirm_password is required")
	}
	return validationError(missing)
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

func NewUpdateProfileRequestFromContext(ctx echo.Context) (*UpdateProfileRequest, error) {
	var body UpdateProfileRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *UpdateProfileRequest) Validate() error {
	if strings.TrimSpace(r.DisplayName) == "" {
		return errors.New("display_name is required")
	}

	return nil
}

// ResolveSessionRequest carries the session cookie value a calling service received from a browser.
type ResolveSessionRequest struct {
	Cookie string `json:"cookie"`
}

func NewResolveSessionRequestFromContext(ctx echo.Context) (*ResolveSessionRequest, error) {
	var body ResolveSessionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ResolveSessionRequest) Validate() error {
	if strings.TrimSpace(r.Cookie) == "" {
		return errors.New("cookie is required")
	}

	return nil
}

type GetUserRequest struct {
	ID string `param:"id"`
}

func NewGetUserRequestFromContext(ctx echo.Context) (*GetUserRequest, error) {
	var body GetUserRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *GetUserRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("id is required")
	}

	return nil
}

func validationError(messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	return errors.New(strings.Join(messages, "; "))
}
