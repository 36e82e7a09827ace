// Package users declares the user repository contract and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is the storage contract for accounts. Lookups return
// common.ErrorNotFound when no row matches; Create returns
// common.ErrorDuplicateKey when the email is taken.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	SetVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
