package controller

import (
	"context"
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-account/app/dto/http"
	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/middleware"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type sessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*entity.User, error)
}

type cookieParser interface {
	Parse(value string) (string, error)
}

// InternalController serves other services holding an API key with session access.
type InternalController struct {
	accounts sessionResolver
	cookies  cookieParser
}

func NewInternalController(accounts sessionResolver, cookies cookieParser) *InternalController {
	return &InternalController{accounts: accounts, cookies: cookies}
}

func (c *InternalController) ResolveSession(ctx echo.Context) error {
	req, err := httpdto.NewResolveSessionRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind resolve session request")
		return writeBindError(ctx)
	}
	if err = req.Validate(); err != nil {
		return writeValidationError(ctx, err)
	}

	caller, _ := ctx.Get(middleware.ContextKeyCallerService).(string)

	sessionID, err := c.cookies.Parse(req.Cookie)
	if err != nil {
		logrus.WithField("caller_service", caller).Debug("Resolve session with invalid cookie")
		return writeServiceError(ctx, service.ErrSessionNotFound)
	}

	user, err := c.accounts.ResolveSession(ctx.Request().Context(), sessionID)
	if err != nil {
		if service.KindOf(err) == service.KindInternal {
			logrus.WithError(err).WithField("caller_service", caller).Error("Resolve session failed")
		}
		return writeServiceError(ctx, err)
	}

	logrus.WithFields(logrus.Fields{
		"caller_service": caller,
		"caller_key_id":  ctx.Get(middleware.ContextKeyCallerKeyID),
		"user_id":        user.ID,
	}).Debug("Session resolved for service")
	return ctx.JSON(http.StatusOK, httpdto.NewUserResponse(user))
}
