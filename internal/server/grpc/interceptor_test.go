package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/dmitrijs2005/videotube/internal/logging"
	"github.com/dmitrijs2005/videotube/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fakeAuth struct {
	user  *models.PublicUser
	err   error
	token string
}

func (f *fakeAuth) Authenticate(ctx context.Context, token string) (*models.PublicUser, error) {
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func newTestServer(a Authenticator) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", logging.Nop{}, a)
}

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{
		common.AccessTokenMetadataKey: token,
	}))
}

func TestInterceptor_HealthIsPublic(t *testing.T) {
	s := newTestServer(&fakeAuth{err: errors.New("must not be called")})

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer(&fakeAuth{})

	info := &grpc.UnaryServerInfo{FullMethod: "/videotube.Videos/Upload"}
	_, err := s.accessTokenInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "missing token", status.Convert(err).Message())
}

func TestInterceptor_AuthenticatorErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"expired", errors.Join(common.ErrorUnauthorized, common.ErrTokenExpired), codes.Unauthenticated},
		{"unknown user", common.ErrorUnauthorized, codes.Unauthenticated},
		{"store timeout", common.ErrorTransient, codes.Unavailable},
		{"store failure", common.ErrorInternal, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeAuth{err: tt.err})
			info := &grpc.UnaryServerInfo{FullMethod: "/videotube.Videos/Upload"}

			_, err := s.accessTokenInterceptor(withToken("t"), nil, info, func(ctx context.Context, req any) (any, error) {
				t.Fatal("handler should not be called")
				return nil, nil
			})
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestInterceptor_ValidTokenAttachesUser(t *testing.T) {
	fa := &fakeAuth{user: &models.PublicUser{ID: "u1", Username: "alice"}}
	s := newTestServer(fa)
	info := &grpc.UnaryServerInfo{FullMethod: "/videotube.Videos/Upload"}

	var got *models.PublicUser
	_, err := s.accessTokenInterceptor(withToken("good"), nil, info, func(ctx context.Context, req any) (any, error) {
		u, ok := UserFromContext(ctx)
		require.True(t, ok)
		got = u
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "good", fa.token)
	assert.Equal(t, "u1", got.ID)
}

func TestUserFromContext_Empty(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func TestStreamInterceptor_AttachesUser(t *testing.T) {
	user := &models.PublicUser{ID: "u1", Username: "alice"}
	a := &fakeAuth{user: user}
	s := newTestServer(a)

	info := &grpc.StreamServerInfo{FullMethod: "/videotube.Videos/Watch", IsServerStream: true}
	called := false
	err := s.accessTokenStreamInterceptor(nil, &fakeServerStream{ctx: withToken("tok")}, info, func(srv any, ss grpc.ServerStream) error {
		called = true
		got, ok := UserFromContext(ss.Context())
		require.True(t, ok)
		assert.Equal(t, user, got)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "tok", a.token)
}

func TestStreamInterceptor_RejectsMissingAndInvalidToken(t *testing.T) {
	info := &grpc.StreamServerInfo{FullMethod: "/videotube.Videos/Watch"}
	handler := func(srv any, ss grpc.ServerStream) error {
		t.Fatal("handler should not be called")
		return nil
	}

	s := newTestServer(&fakeAuth{})
	err := s.accessTokenStreamInterceptor(nil, &fakeServerStream{ctx: context.Background()}, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	s = newTestServer(&fakeAuth{err: common.ErrorUnauthorized})
	err = s.accessTokenStreamInterceptor(nil, &fakeServerStream{ctx: withToken("bad")}, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	s = newTestServer(&fakeAuth{err: common.ErrorTransient})
	err = s.accessTokenStreamInterceptor(nil, &fakeServerStream{ctx: withToken("tok")}, info, handler)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestStreamInterceptor_HealthWatchIsPublic(t *testing.T) {
	s := newTestServer(&fakeAuth{err: errors.New("must not be called")})

	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}
	err := s.accessTokenStreamInterceptor(nil, &fakeServerStream{ctx: context.Background()}, info, func(srv any, ss grpc.ServerStream) error {
		return nil
	})
	assert.NoError(t, err)
}
