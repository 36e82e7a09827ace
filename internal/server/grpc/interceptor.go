package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const identityKey ctxKey = "identity"

// IdentityFromContext returns the identity the interceptor attached for a
// protected method.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*models.Identity)
	return id, ok && id != nil
}

func (s *Server) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if _, ok := s.protected[info.FullMethod]; !ok {
		return handler(ctx, req)
	}

	var bearer string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
			bearer = values[0]
		}
	}
	if bearer == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	id, err := s.authn.Authenticate(ctx, bearer)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			s.logger.Warn(ctx, "rejected token", "method", info.FullMethod, "cause", common.CauseOf(err))
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		s.logger.Error(ctx, "authentication failed", "method", info.FullMethod, "error", err.Error(), "cause", common.CauseOf(err))
		return nil, status.Error(codes.Internal, "internal error")
	}

	return handler(context.WithValue(ctx, identityKey, id), req)
}
