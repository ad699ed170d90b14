package middleware

import (
	"context"
	"errors"
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-account/app/dto/http"
	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ContextKeyUser      = "user"
	ContextKeySessionID = "session_id"
)

type sessionResolver interface {
	CurrentUser(ctx context.Context, sessionID string) (*entity.User, error)
}

type sessionCookieReader interface {
	SessionID(r *http.Request) string
}

type SessionMiddleware struct {
	accounts sessionResolver
	cookies  sessionCookieReader
}

func NewSessionMiddleware(accounts sessionResolver, cookies sessionCookieReader) *SessionMiddleware {
	return &SessionMiddleware{accounts: accounts, cookies: cookies}
}

// RequireSession loads the user behind the session cookie into the echo context.
func (m *SessionMiddleware) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := m.cookies.SessionID(c.Request())
		if sessionID == "" {
			logrus.Debug("Missing or invalid session cookie")
			return unauthorized(c)
		}

		user, err := m.accounts.CurrentUser(c.Request().Context(), sessionID)
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				logrus.Debug("Session cookie points to no session")
				return unauthorized(c)
			}
			logrus.WithError(err).Error("Session lookup failed")
			return c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(
				c.Request().URL.Path, http.StatusInternalServerError, httpdto.CodeInternal, "internal server error",
			))
		}

		c.Set(ContextKeySessionID, sessionID)
		c.Set(ContextKeyUser, user)
		return next(c)
	}
}

// RequireRole must run after RequireSession.
func RequireRole(roles ...entity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := UserFromContext(c)
			if !ok {
				return unauthorized(c)
			}

			for _, role := range roles {
				if user.Role == role {
					return next(c)
				}
			}

			logrus.WithFields(logrus.Fields{
				"user_id": user.ID,
				"role":    user.Role,
			}).Warn("Role check failed")
			return c.JSON(http.StatusForbidden, httpdto.NewErrorResponse(
				c.Request().URL.Path, http.StatusForbidden, httpdto.CodeForbidden, "insufficient role",
			))
		}
	}
}

func UserFromContext(c echo.Context) (*entity.User, bool) {
	user, ok := c.Get(ContextKeyUser).(*entity.User)
	return user, ok && user != nil
}

func SessionIDFromContext(c echo.Context) string {
	sessionID, _ := c.Get(ContextKeySessionID).(string)
	return sessionID
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse(
		c.Request().URL.Path, http.StatusUnauthorized, httpdto.CodeUnauthorized, "authentication required",
	))
}
