package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func setup(t *testing.T) (*memory.Manager, string) {
	t.Helper()
	m := memory.NewManager()
	u, err := m.Users(nil).Create(context.Background(), &models.User{Name: "A", Email: "a@b.c", PasswordHash: "h"})
	require.NoError(t, err)
	return m, u.ID
}

func TestRefreshStore(t *testing.T) {
	m, uid := setup(t)
	s := NewRefreshStore(m.RefreshTokens(nil), clock)
	ctx := context.Background()

	rec, err := s.Create(ctx, uid, 15*24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, rec.Token, 2*TokenBytes)
	assert.Equal(t, fixedNow.Add(15*24*time.Hour), rec.ExpiresAt)

	got, err := s.Find(ctx, rec.Token)
	require.NoError(t, err)
	assert.Equal(t, uid, got.UserID)

	require.NoError(t, s.Delete(ctx, rec.Token))
	require.NoError(t, s.Delete(ctx, rec.Token))
	_, err = s.Find(ctx, rec.Token)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRefreshStore_DeleteExpired(t *testing.T) {
	m, uid := setup(t)
	s := NewRefreshStore(m.RefreshTokens(nil), clock)
	ctx := context.Background()

	_, err := s.Create(ctx, uid, 0)
	require.NoError(t, err)
	_, err = s.Create(ctx, uid, time.Hour)
	require.NoError(t, err)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCreate_DuplicateIsStorageError(t *testing.T) {
	m, uid := setup(t)
	orig := newToken
	newToken = func() (string, error) { return "same", nil }
	defer func() { newToken = orig }()

	rs := NewRefreshStore(m.RefreshTokens(nil), clock)
	_, err := rs.Create(context.Background(), uid, time.Hour)
	require.NoError(t, err)
	_, err = rs.Create(context.Background(), uid, time.Hour)
	assert.ErrorIs(t, err, common.ErrorStorage)

	as := NewActionStore(m.ActionTokens(nil), clock)
	_, err = as.Create(context.Background(), uid, models.PurposeResetPassword, time.Minute)
	require.NoError(t, err)
	_, err = as.Create(context.Background(), uid, models.PurposeResetPassword, time.Minute)
	assert.ErrorIs(t, err, common.ErrorStorage)
}

func TestCreate_RandomSourceFailure(t *testing.T) {
	m, uid := setup(t)
	orig := newToken
	newToken = func() (string, error) { return "", errors.New("entropy") }
	defer func() { newToken = orig }()

	_, err := NewRefreshStore(m.RefreshTokens(nil), clock).Create(context.Background(), uid, time.Hour)
	assert.ErrorIs(t, err, common.ErrorStorage)
}

func TestActionStore_Consume(t *testing.T) {
	m, uid := setup(t)
	s := NewActionStore(m.ActionTokens(nil), clock)
	ctx := context.Background()

	rec, err := s.Create(ctx, uid, models.PurposeResetPassword, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(15*time.Minute), rec.ExpiresAt)

	_, err = s.Consume(ctx, rec.Token, models.PurposeEmailVerification)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	got, err := s.Consume(ctx, rec.Token, models.PurposeResetPassword)
	require.NoError(t, err)
	assert.Equal(t, uid, got.UserID)

	_, err = s.Consume(ctx, rec.Token, models.PurposeResetPassword)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestActionStore_Bulk(t *testing.T) {
	m, uid := setup(t)
	s := NewActionStore(m.ActionTokens(nil), clock)
	ctx := context.Background()

	a, _ := s.Create(ctx, uid, models.PurposeResetPassword, 0)
	_, _ = s.Create(ctx, uid, models.PurposeEmailVerification, time.Hour)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = m.ActionTokens(nil).Find(ctx, a.Token)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	n, err = s.DeleteByUser(ctx, uid)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

type brokenRepo struct{}

func (brokenRepo) Create(context.Context, *models.RefreshToken) error {
	return errors.New("connection refused")
}

func (brokenRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

func (brokenRepo) Find(context.Context, string) (*models.RefreshToken, error) {
	return nil, errors.New("connection refused")
}

func (brokenRepo) Delete(context.Context, string) error { return errors.New("connection refused") }

func TestLookupFailureIsStorageError(t *testing.T) {
	s := NewRefreshStore(brokenRepo{}, nil)

	_, err := s.Find(context.Background(), "x")
	assert.ErrorIs(t, err, common.ErrorStorage)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), "x"), common.ErrorStorage)
	_, err = s.DeleteExpired(context.Background())
	assert.ErrorIs(t, err, common.ErrorStorage)
}
