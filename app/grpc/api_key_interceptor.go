package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type callerServiceKey struct{}

type serviceKeyAuthorizer interface {
	Authorize(ctx context.Context, rawKey, scope string) (*dto.ServiceCaller, error)
}

// APIKeyUnaryInterceptor checks the x-api-key metadata on the methods listed
// in protected, mapped to the scope the key must currently grant. Other
// methods pass through untouched.
func APIKeyUnaryInterceptor(keys serviceKeyAuthorizer, protected map[string]string) gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		scope, ok := protected[info.FullMethod]
		if !ok {
			return handler(ctx, req)
		}

		apiKey := incomingAPIKeyFromMetadata(ctx)
		if apiKey == "" {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}

		caller, err := keys.Authorize(ctx, apiKey, scope)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrInvalidServiceKey):
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		case errors.Is(err, service.ErrScopeNotGranted), errors.Is(err, service.ErrScopeExpired):
			logrus.WithFields(logrus.Fields{
				"method": info.FullMethod,
				"scope":  scope,
			}).Warn("API key lacks required scope (grpc)")
			return nil, status.Error(codes.PermissionDenied, err.Error())
		default:
			logrus.WithError(err).Error("API key validation failed (grpc)")
			return nil, status.Error(codes.Internal, "internal server error")
		}

		ctx = context.WithValue(ctx, callerServiceKey{}, caller.ServiceName)
		return handler(ctx, req)
	}
}

func CallerServiceFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(callerServiceKey{}).(string)
	return caller
}

func incomingAPIKeyFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("x-api-key")
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
