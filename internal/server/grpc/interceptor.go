package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/dmitrijs2005/videotube/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userKey ctxKey = "user"

var publicPrefixes = []string{
	"/" + healthpb.Health_ServiceDesc.ServiceName + "/",
}

// UserFromContext returns the user attached by the access token guard.
func UserFromContext(ctx context.Context) (*models.PublicUser, bool) {
	u, ok := ctx.Value(userKey).(*models.PublicUser)
	return u, ok && u != nil
}

// authorize resolves the access token in ctx metadata and returns a context
// carrying the user. Public methods pass through unchanged.
func (s *GRPCServer) authorize(ctx context.Context, method string) (context.Context, error) {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(method, p) {
			return ctx, nil
		}
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenMetadataKey); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	user, err := s.auth.Authenticate(ctx, accessToken)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorTransient):
			return nil, status.Error(codes.Unavailable, "temporarily unavailable")
		case errors.Is(err, common.ErrorInternal):
			s.logger.Error(ctx, "authenticate", "method", method, "error", err)
			return nil, status.Error(codes.Internal, "internal error")
		default:
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
	}

	return context.WithValue(ctx, userKey, user), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := s.authorize(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

// authedStream overrides the stream context with the authorized one.
type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) accessTokenStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authorize(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}
