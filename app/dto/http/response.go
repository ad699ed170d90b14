package http

import (
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
)

type RegisterResponse struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// SessionResponse is returned next to the session cookie.
type SessionResponse struct {
	UserID string `json:"user_id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	IsVerified  bool      `json:"is_verified"`
	AuthMethod  string    `json:"auth_method"`
	PictureURL  *string   `json:"picture_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewUserResponse(user *entity.User) *UserResponse {
	res := &UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
		IsVerified:  user.IsVerified,
		AuthMethod:  string(user.AuthMethod),
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
	if user.PictureURL.Valid {
		picture := user.PictureURL.String
		res.PictureURL = &picture
	}
	return res
}

type ErrorResponse struct {
	StatusCode int      `json:"status_code"`
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	Code       string   `json:"code"`
	Details    []string `json:"details,omitempty"`
	Path       string   `json:"path"`
	Timestamp  string   `json:"timestamp"`
}

const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeInternal         = "INTERNAL"
)

func NewErrorResponse(path string, status int, code, message string, details ...string) ErrorResponse {
	return ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
		Code:       code,
		Details:    details,
		Path:       path,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}
