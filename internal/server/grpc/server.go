// Package grpc hosts the gRPC endpoint: the standard health service plus an
// access token guard for services registered by other features.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/videotube/internal/logging"
	"github.com/dmitrijs2005/videotube/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Authenticator resolves an access token to the user it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.PublicUser, error)
}

type GRPCServer struct {
	address   string
	logger    logging.Logger
	auth      Authenticator
	health    *health.Server
	registrar []func(grpc.ServiceRegistrar)
}

// NewGRPCServer builds a server listening on address. Each register func is
// called with the underlying server before it starts serving.
func NewGRPCServer(address string, l logging.Logger, a Authenticator, register ...func(grpc.ServiceRegistrar)) *GRPCServer {
	return &GRPCServer{
		address:   address,
		logger:    l.With("module", "grpc_server"),
		auth:      a,
		health:    health.NewServer(),
		registrar: register,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled. Unary and streaming
// calls both pass through the access token guard.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)

	healthpb.RegisterHealthServer(srv, s.health)
	for _, register := range s.registrar {
		register(srv)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	err := srv.Serve(lis)
	cancel()
	<-stopped
	return err
}
