// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores t. CreatedAt and UpdatedAt are filled in from storage.
	// A token value that already exists yields common.ErrorDuplicateKey.
	Create(ctx context.Context, t *models.RefreshToken) error

	// Find looks up a refresh token by its opaque token string.
	// Implementations return common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting a non-existent
	// token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes every token with expires_at <= now and reports how
	// many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
