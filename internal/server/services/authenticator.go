package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// Authenticator resolves a bearer access token to the identity of a live
// account. Transport adapters call it at the session boundary.
type Authenticator struct {
	codec   *auth.Codec
	repos   repomanager.RepositoryManager
	metrics *metrics.Metrics
}

func NewAuthenticator(codec *auth.Codec, repos repomanager.RepositoryManager, m *metrics.Metrics) *Authenticator {
	return &Authenticator{codec: codec, repos: repos, metrics: m}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively; a bare token is accepted as is.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > len(common.BearerScheme) && strings.EqualFold(header[:len(common.BearerScheme)], common.BearerScheme) && header[len(common.BearerScheme)] == ' ' {
		return strings.TrimSpace(header[len(common.BearerScheme)+1:])
	}
	return header
}

// Authenticate verifies bearer and loads its user. Bad signatures, expired
// tokens and tokens of deleted accounts all yield common.ErrorUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, bearer string) (*models.Identity, error) {
	const op = "authenticate"

	token := BearerToken(bearer)
	if token == "" {
		a.metrics.AuthFailed(op)
		return nil, common.NewOpError(op, common.ErrorUnauthorized, errors.New("missing bearer token"))
	}

	userID, err := a.codec.Verify(token)
	if err != nil {
		a.metrics.AuthFailed(op)
		return nil, common.NewOpError(op, common.ErrorUnauthorized, err)
	}

	user, err := a.repos.Users(a.repos.DB()).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			a.metrics.AuthFailed(op)
			return nil, common.NewOpError(op, common.ErrorUnauthorized, err)
		}
		return nil, common.NewOpError(op, common.ErrorStorage, err)
	}
	return user.Identity(), nil
}
