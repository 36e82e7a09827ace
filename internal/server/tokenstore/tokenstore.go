// Package tokenstore issues, looks up and revokes opaque tokens on top of the
// refresh and action token repositories. Token values are 32 random bytes,
// hex encoded. Write failures of any kind, duplicate keys included, surface
// as common.ErrorStorage; a lookup miss is common.ErrorNotFound.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/actiontokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
)

// TokenBytes is the entropy of every opaque token.
const TokenBytes = 32

// newToken is swapped in tests to force collisions.
var newToken = func() (string, error) {
	return common.MakeRandHexString(TokenBytes)
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", common.ErrorStorage, err)
}

func lookupErr(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorNotFound
	}
	return storageErr(err)
}

type RefreshStore struct {
	repo refreshtokens.Repository
	now  func() time.Time
}

func NewRefreshStore(repo refreshtokens.Repository, now func() time.Time) *RefreshStore {
	if now == nil {
		now = time.Now
	}
	return &RefreshStore{repo: repo, now: now}
}

func (s *RefreshStore) Create(ctx context.Context, userID string, ttl time.Duration) (*models.RefreshToken, error) {
	token, err := newToken()
	if err != nil {
		return nil, storageErr(err)
	}
	rec := &models.RefreshToken{Token: token, UserID: userID, ExpiresAt: s.now().Add(ttl)}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, storageErr(err)
	}
	return rec, nil
}

func (s *RefreshStore) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	rec, err := s.repo.Find(ctx, token)
	if err != nil {
		return nil, lookupErr(err)
	}
	return rec, nil
}

// Delete is idempotent.
func (s *RefreshStore) Delete(ctx context.Context, token string) error {
	if err := s.repo.Delete(ctx, token); err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *RefreshStore) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

type ActionStore struct {
	repo actiontokens.Repository
	now  func() time.Time
}

func NewActionStore(repo actiontokens.Repository, now func() time.Time) *ActionStore {
	if now == nil {
		now = time.Now
	}
	return &ActionStore{repo: repo, now: now}
}

func (s *ActionStore) Create(ctx context.Context, userID string, purpose models.Purpose, ttl time.Duration) (*models.ActionToken, error) {
	token, err := newToken()
	if err != nil {
		return nil, storageErr(err)
	}
	rec := &models.ActionToken{Token: token, UserID: userID, Purpose: purpose, ExpiresAt: s.now().Add(ttl)}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, storageErr(err)
	}
	return rec, nil
}

// Consume removes the token if it exists with the given purpose and returns
// the removed record. Only one of several concurrent callers can succeed.
// Expiry is left to the caller; an expired record is still removed.
func (s *ActionStore) Consume(ctx context.Context, token string, purpose models.Purpose) (*models.ActionToken, error) {
	rec, err := s.repo.Consume(ctx, token, purpose)
	if err != nil {
		return nil, lookupErr(err)
	}
	return rec, nil
}

func (s *ActionStore) Delete(ctx context.Context, token string) error {
	if err := s.repo.Delete(ctx, token); err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *ActionStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

func (s *ActionStore) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}
