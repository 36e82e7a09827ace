// Package grpc serves the gRPC side of authkeeper: the standard health
// service behind a bearer-token interceptor.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Authenticator resolves a bearer credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*models.Identity, error)
}

type Server struct {
	address   string
	authn     Authenticator
	logger    logging.Logger
	protected map[string]struct{}
	health    *health.Server
}

type Option func(*Server)

// WithProtectedMethods requires a valid bearer token on the given full
// method names, e.g. "/grpc.health.v1.Health/List".
func WithProtectedMethods(methods ...string) Option {
	return func(s *Server) {
		for _, m := range methods {
			s.protected[m] = struct{}{}
		}
	}
}

func NewServer(address string, l logging.Logger, authn Authenticator, opts ...Option) *Server {
	s := &Server{
		address:   address,
		authn:     authn,
		logger:    l.With("module", "grpc_server"),
		protected: map[string]struct{}{},
		health:    health.NewServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetServing flips the overall health status reported to clients.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
}

func (s *Server) newGRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)
	return srv
}

// Run serves on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newGRPCServer()
	s.SetServing(true)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
