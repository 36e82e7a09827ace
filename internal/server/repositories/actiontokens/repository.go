// Package actiontokens stores single-use, purpose-scoped action tokens
// (password reset, email verification).
package actiontokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is implemented by the Postgres, Redis and in-memory backends.
type Repository interface {
	// Create stores t. A token value that already exists yields
	// common.ErrorDuplicateKey.
	Create(ctx context.Context, t *models.ActionToken) error

	// Find returns the token record or common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.ActionToken, error)

	// Consume atomically removes the record matching both token and purpose
	// and returns what was removed. When no such record exists (absent, or
	// present with another purpose) it returns common.ErrorNotFound and
	// changes nothing. Expiry is not checked here.
	Consume(ctx context.Context, token string, purpose models.Purpose) (*models.ActionToken, error)

	// Delete removes the token. Deleting a missing token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes tokens with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteByUser removes every token belonging to userID.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
