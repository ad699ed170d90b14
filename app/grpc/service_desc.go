package grpc

import (
	"context"

	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type unaryMethod func(srv AccountServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

var accountServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler("Register", AccountServiceServer.Register)},
		{MethodName: "Login", Handler: unaryHandler("Login", AccountServiceServer.Login)},
		{MethodName: "Logout", Handler: unaryHandler("Logout", AccountServiceServer.Logout)},
		{MethodName: "ConfirmEmail", Handler: unaryHandler("ConfirmEmail", AccountServiceServer.ConfirmEmail)},
		{MethodName: "RequestVerificationEmail", Handler: unaryHandler("RequestVerificationEmail", AccountServiceServer.RequestVerificationEmail)},
		{MethodName: "RequestPasswordReset", Handler: unaryHandler("RequestPasswordReset", AccountServiceServer.RequestPasswordReset)},
		{MethodName: "ResetPassword", Handler: unaryHandler("ResetPassword", AccountServiceServer.ResetPassword)},
		{MethodName: "ResolveSession", Handler: unaryHandler("ResolveSession", AccountServiceServer.ResolveSession)},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "account/v1/account.proto",
}

func unaryHandler(method string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		server := srv.(AccountServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &gogrpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		})
	}
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	res, err := structpb.NewStruct(fields)
	if err != nil {
		logrus.WithError(err).Error("Failed to build grpc response")
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return res, nil
}

func codeForKind(kind service.Kind) codes.Code {
	switch kind {
	case service.KindNotFound:
		return codes.NotFound
	case service.KindConflict:
		return codes.AlreadyExists
	case service.KindExpired:
		return codes.FailedPrecondition
	case service.KindUnauthorized:
		return codes.PermissionDenied
	case service.KindValidation:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// toStatus maps a service error to a grpc status and logs it. Internal
// failures are reported generically.
func toStatus(err error, fields logrus.Fields, message string) error {
	code := codeForKind(service.KindOf(err))
	if code == codes.Internal {
		logrus.WithError(err).WithFields(fields).Error(message)
		return status.Error(codes.Internal, "internal server error")
	}

	if message != "" {
		logrus.WithFields(fields).WithField("code", service.CodeOf(err)).Warn(message)
	}
	return status.Error(code, err.Error())
}
