package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, m *Manager, email string) *models.User {
	t.Helper()
	u, err := m.Users(nil).Create(context.Background(), &models.User{Name: "N", Email: email, PasswordHash: "h"})
	require.NoError(t, err)
	return u
}

func TestUsers(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	repo := m.Users(nil)

	u := seedUser(t, m, "Alice@Example.com")
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, models.RoleUser, u.Role)

	_, err := repo.Create(ctx, &models.User{Email: "alice@example.com"})
	assert.ErrorIs(t, err, common.ErrorDuplicateKey)

	got, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "h2"))
	require.NoError(t, repo.SetVerified(ctx, u.ID))
	got, _ = repo.GetByID(ctx, u.ID)
	assert.Equal(t, "h2", got.PasswordHash)
	assert.True(t, got.IsVerified)

	assert.ErrorIs(t, repo.SetVerified(ctx, "ghost"), common.ErrorNotFound)
	_, err = repo.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUsersDelete_Cascades(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	u := seedUser(t, m, "a@b.c")
	exp := time.Now().Add(time.Hour)

	require.NoError(t, m.RefreshTokens(nil).Create(ctx, &models.RefreshToken{Token: "r", UserID: u.ID, ExpiresAt: exp}))
	require.NoError(t, m.ActionTokens(nil).Create(ctx, &models.ActionToken{Token: "a", UserID: u.ID, Purpose: models.PurposeResetPassword, ExpiresAt: exp}))

	require.NoError(t, m.Users(nil).Delete(ctx, u.ID))
	assert.ErrorIs(t, m.Users(nil).Delete(ctx, u.ID), common.ErrorNotFound)

	_, err := m.RefreshTokens(nil).Find(ctx, "r")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = m.ActionTokens(nil).Find(ctx, "a")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = m.Users(nil).GetByEmail(ctx, "a@b.c")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestTokensRequireUser(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	err := m.RefreshTokens(nil).Create(ctx, &models.RefreshToken{Token: "r", UserID: "ghost"})
	assert.ErrorIs(t, err, common.ErrorNotFound)
	err = m.ActionTokens(nil).Create(ctx, &models.ActionToken{Token: "a", UserID: "ghost"})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRefreshTokens(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	u := seedUser(t, m, "a@b.c")
	repo := m.RefreshTokens(nil)
	now := time.Now()

	rt := &models.RefreshToken{Token: "r1", UserID: u.ID, ExpiresAt: now.Add(-time.Second)}
	require.NoError(t, repo.Create(ctx, rt))
	assert.False(t, rt.CreatedAt.IsZero())
	assert.ErrorIs(t, repo.Create(ctx, rt), common.ErrorDuplicateKey)
	require.NoError(t, repo.Create(ctx, &models.RefreshToken{Token: "r2", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, repo.Delete(ctx, "r2"))
	require.NoError(t, repo.Delete(ctx, "r2"))
	_, err = repo.Find(ctx, "r2")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestActionTokens_Consume(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	u := seedUser(t, m, "a@b.c")
	repo := m.ActionTokens(nil)

	require.NoError(t, repo.Create(ctx, &models.ActionToken{
		Token: "a", UserID: u.ID, Purpose: models.PurposeEmailVerification, ExpiresAt: time.Now().Add(time.Hour),
	}))

	_, err := repo.Consume(ctx, "a", models.PurposeResetPassword)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = repo.Find(ctx, "a")
	require.NoError(t, err, "wrong purpose leaves the record")

	var wg sync.WaitGroup
	wins := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Consume(ctx, "a", models.PurposeEmailVerification); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	assert.Len(t, wins, 1)
}

func TestActionTokens_Bulk(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	u := seedUser(t, m, "a@b.c")
	repo := m.ActionTokens(nil).(*ActionTokens)
	now := time.Now()

	for _, tok := range []string{"b", "a"} {
		require.NoError(t, repo.Create(ctx, &models.ActionToken{Token: tok, UserID: u.ID, Purpose: models.PurposeResetPassword, ExpiresAt: now.Add(time.Hour)}))
	}
	require.NoError(t, repo.Create(ctx, &models.ActionToken{Token: "old", UserID: u.ID, Purpose: models.PurposeResetPassword, ExpiresAt: now}))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	toks := tokensOf(repo, u.ID)
	require.Len(t, toks, 2)
	assert.Equal(t, "a", toks[0].Token)

	n, err = repo.DeleteByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Empty(t, tokensOf(repo, u.ID))
}

// tokensOf lists the stored action tokens of userID, sorted by value.
func tokensOf(r *ActionTokens, userID string) []models.ActionToken {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ActionToken
	for _, t := range s.actionTokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

func TestInTx_RollsBackOnError(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	kept := seedUser(t, m, "kept@b.c")
	errFail := errors.New("token insert failed")

	err := m.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := m.Users(tx).Create(ctx, &models.User{Email: "new@b.c", PasswordHash: "h"})
		require.NoError(t, err)
		require.NoError(t, m.Users(tx).UpdatePassword(ctx, kept.ID, "changed"))
		require.NoError(t, m.Users(tx).SetVerified(ctx, u.ID))
		return errFail
	})
	assert.ErrorIs(t, err, errFail)

	_, err = m.Users(nil).GetByEmail(ctx, "new@b.c")
	assert.ErrorIs(t, err, common.ErrorNotFound, "created user is rolled back")
	got, err := m.Users(nil).GetByID(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, kept.PasswordHash, got.PasswordHash, "in-place updates are rolled back")

	_, err = m.Users(nil).Create(ctx, &models.User{Email: "new@b.c", PasswordHash: "h"})
	assert.NoError(t, err, "email index is rolled back")
}

func TestInTx_Commits(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := m.Users(tx).Create(ctx, &models.User{Email: "c@b.c", PasswordHash: "h"})
		return err
	}))
	_, err := m.Users(nil).GetByEmail(ctx, "c@b.c")
	assert.NoError(t, err)
}
