package controller

import (
	"net/http"
	"strings"

	httpdto "github.com/vibast-solutions/ms-go-account/app/dto/http"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/labstack/echo/v4"
)

func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindExpired:
		return http.StatusGone
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError turns a service error into the error body. Internal
// failures never expose their message.
func writeServiceError(ctx echo.Context, err error) error {
	status := statusForKind(service.KindOf(err))
	if status == http.StatusInternalServerError {
		return writeError(ctx, status, httpdto.CodeInternal, "internal server error")
	}
	return writeError(ctx, status, service.CodeOf(err), err.Error())
}

func writeBindError(ctx echo.Context) error {
	return writeError(ctx, http.StatusBadRequest, httpdto.CodeValidationFailed, "invalid request body")
}

func writeValidationError(ctx echo.Context, err error) error {
	return writeError(ctx, http.StatusBadRequest, httpdto.CodeValidationFailed, "validation failed", strings.Split(err.Error(), "; ")...)
}

func writeError(ctx echo.Context, status int, code, message string, details ...string) error {
	return ctx.JSON(status, httpdto.NewErrorResponse(ctx.Request().URL.Path, status, code, message, details...))
}
