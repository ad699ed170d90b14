package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	httpdto "github.com/vibast-solutions/ms-go-account/app/dto/http"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ContextKeyCallerService = "caller_service"
	ContextKeyCallerKeyID   = "caller_key_id"
)

type serviceKeyAuthorizer interface {
	Authorize(ctx context.Context, rawKey, scope string) (*dto.ServiceCaller, error)
}

type APIKeyMiddleware struct {
	keys serviceKeyAuthorizer
}

func NewAPIKeyMiddleware(keys serviceKeyAuthorizer) *APIKeyMiddleware {
	return &APIKeyMiddleware{keys: keys}
}

// RequireScope admits callers whose x-api-key currently grants scope.
func (m *APIKeyMiddleware) RequireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Let CORS preflight pass.
			if c.Request().Method == http.MethodOptions {
				return next(c)
			}

			path := c.Request().URL.Path
			apiKey := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if apiKey == "" {
				logrus.Debug("Missing x-api-key header")
				return c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse(
					path, http.StatusUnauthorized, httpdto.CodeUnauthorized, "api key required",
				))
			}

			caller, err := m.keys.Authorize(c.Request().Context(), apiKey, scope)
			switch {
			case err == nil:
			case errors.Is(err, service.ErrInvalidServiceKey):
				logrus.Debug("Invalid x-api-key header")
				return c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse(
					path, http.StatusUnauthorized, service.CodeOf(err), err.Error(),
				))
			case errors.Is(err, service.ErrScopeNotGranted), errors.Is(err, service.ErrScopeExpired):
				logrus.WithField("scope", scope).Warn("API key lacks required scope")
				return c.JSON(http.StatusForbidden, httpdto.NewErrorResponse(
					path, http.StatusForbidden, service.CodeOf(err), err.Error(),
				))
			default:
				logrus.WithError(err).Error("API key validation failed")
				return c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(
					path, http.StatusInternalServerError, httpdto.CodeInternal, "internal server error",
				))
			}

			c.Set(ContextKeyCallerService, caller.ServiceName)
			c.Set(ContextKeyCallerKeyID, caller.KeyID)
			return next(c)
		}
	}
}
