package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/groupware/internal/common"
	"github.com/dmitrijs2005/groupware/internal/server/auth"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// requiresToken reports whether method needs a caller identity. Ping and
// the health service are open.
func requiresToken(method string) bool {
	return strings.HasPrefix(method, "/"+ServiceName+"/") && method != methodName("Ping")
}

// authenticate resolves the access token of the incoming call into an
// identity carried by the returned context.
func (s *GRPCServer) authenticate(ctx context.Context) (context.Context, error) {
	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	id, err := auth.IdentityFromToken(accessToken, s.jwtSecret)
	if errors.Is(err, common.ErrTokenExpired) {
		return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}
	return auth.WithIdentity(ctx, id), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if requiresToken(info.FullMethod) {
		var err error
		if ctx, err = s.authenticate(ctx); err != nil {
			return nil, err
		}
	}
	return handler(ctx, req)
}

// identityStream overrides the context of a server stream.
type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *identityStream) Context() context.Context { return w.ctx }

func (s *GRPCServer) streamAccessTokenInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if !requiresToken(info.FullMethod) {
		return handler(srv, ss)
	}
	ctx, err := s.authenticate(ss.Context())
	if err != nil {
		return err
	}
	return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	rid := uuid.NewString()
	_ = grpc.SetHeader(ctx, metadata.Pairs(common.RequestIDHeaderName, rid))

	resp, err := handler(ctx, req)
	s.logCall(ctx, info.FullMethod, rid, start, err)
	return resp, err
}

func (s *GRPCServer) streamLoggingInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	rid := uuid.NewString()
	_ = ss.SetHeader(metadata.Pairs(common.RequestIDHeaderName, rid))

	err := handler(srv, ss)
	s.logCall(ss.Context(), info.FullMethod, rid, start, err)
	return err
}

func (s *GRPCServer) logCall(ctx context.Context, method, rid string, start time.Time, err error) {
	code := status.Code(err)
	args := []any{"method", method, "request_id", rid, "code", code.String(), "duration", time.Since(start)}
	switch code {
	case codes.OK:
		s.logger.Debug(ctx, "call served", args...)
	case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
		s.logger.Error(ctx, "call failed", append(args, "error", err)...)
	default:
		s.logger.Info(ctx, "call rejected", append(args, "error", err)...)
	}
}
