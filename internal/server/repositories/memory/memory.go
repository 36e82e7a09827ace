// Package memory holds in-process implementations of the repositories. They
// back the "memory" storage backend used in development and in service tests.
// Deleting a user removes its tokens, as ON DELETE CASCADE does in Postgres.
package memory

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/actiontokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/google/uuid"
)

type store struct {
	mu            sync.Mutex
	users         map[string]*models.User
	emails        map[string]string
	refreshTokens map[string]*models.RefreshToken
	actionTokens  map[string]*models.ActionToken
	now           func() time.Time
}

// Manager satisfies repomanager.RepositoryManager. All repositories it vends
// share one store; the DBTX arguments are ignored.
type Manager struct {
	s    *store
	txMu sync.Mutex
}

func NewManager() *Manager {
	return &Manager{s: &store{
		users:         make(map[string]*models.User),
		emails:        make(map[string]string),
		refreshTokens: make(map[string]*models.RefreshToken),
		actionTokens:  make(map[string]*models.ActionToken),
		now:           time.Now,
	}}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) DB() dbx.DBTX { return nil }

// InTx runs fn and, if it fails, puts the store back the way it was before
// fn started. Transactions are serialized; writes made outside InTx while fn
// runs are rolled back with it.
func (m *Manager) InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.s.snapshot()
	if err := fn(ctx, nil); err != nil {
		m.s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	users         map[string]*models.User
	emails        map[string]string
	refreshTokens map[string]*models.RefreshToken
	actionTokens  map[string]*models.ActionToken
}

func cloneMap[V any](m map[string]*V) map[string]*V {
	out := make(map[string]*V, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (s *store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	emails := make(map[string]string, len(s.emails))
	for k, v := range s.emails {
		emails[k] = v
	}
	return snapshot{
		users:         cloneMap(s.users),
		emails:        emails,
		refreshTokens: cloneMap(s.refreshTokens),
		actionTokens:  cloneMap(s.actionTokens),
	}
}

func (s *store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = snap.users
	s.emails = snap.emails
	s.refreshTokens = snap.refreshTokens
	s.actionTokens = snap.actionTokens
}

func (m *Manager) Users(dbx.DBTX) users.Repository                 { return (*Users)(m.s) }
func (m *Manager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return (*RefreshTokens)(m.s) }
func (m *Manager) ActionTokens(dbx.DBTX) actiontokens.Repository   { return (*ActionTokens)(m.s) }

// Users is the in-memory users.Repository.
type Users store

func (r *Users) Create(_ context.Context, u *models.User) (*models.User, error) {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, ok := s.emails[key]; ok {
		return nil, common.ErrorDuplicateKey
	}
	now := s.now()
	cp := *u
	cp.ID = uuid.NewString()
	if cp.Role == "" {
		cp.Role = models.RoleUser
	}
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.users[cp.ID] = &cp
	s.emails[key] = cp.ID

	out := cp
	return &out, nil
}

func (r *Users) GetByID(_ context.Context, id string) (*models.User, error) {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *u
	return &out, nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s := (*store)(r)
	s.mu.Lock()
	id, ok := s.emails[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *Users) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	return r.update(id, func(u *models.User) { u.PasswordHash = passwordHash })
}

func (r *Users) SetVerified(_ context.Context, id string) error {
	return r.update(id, func(u *models.User) { u.IsVerified = true })
}

func (r *Users) update(id string, fn func(*models.User)) error {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	u.UpdatedAt = s.now()
	return nil
}

func (r *Users) Delete(_ context.Context, id string) error {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	delete(s.users, id)
	delete(s.emails, strings.ToLower(u.Email))
	for k, t := range s.refreshTokens {
		if t.UserID == id {
			delete(s.refreshTokens, k)
		}
	}
	for k, t := range s.actionTokens {
		if t.UserID == id {
			delete(s.actionTokens, k)
		}
	}
	return nil
}

// RefreshTokens is the in-memory refreshtokens.Repository.
type RefreshTokens store

func (r *RefreshTokens) Create(_ context.Context, t *models.RefreshToken) error {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[t.Token]; ok {
		return common.ErrorDuplicateKey
	}
	if _, ok := s.users[t.UserID]; !ok {
		return common.ErrorNotFound
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	s.refreshTokens[t.Token] = &cp
	return nil
}

func (r *RefreshTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refreshTokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *t
	return &out, nil
}

func (r *RefreshTokens) Delete(_ context.Context, token string) error {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refreshTokens, token)
	return nil
}

func (r *RefreshTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.refreshTokens {
		if t.Expired(now) {
			delete(s.refreshTokens, k)
			n++
		}
	}
	return n, nil
}

// ActionTokens is the in-memory actiontokens.Repository.
type ActionTokens store

func (r *ActionTokens) Create(_ context.Context, t *models.ActionToken) error {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.actionTokens[t.Token]; ok {
		return common.ErrorDuplicateKey
	}
	if _, ok := s.users[t.UserID]; !ok {
		return common.ErrorNotFound
	}
	cp := *t
	s.actionTokens[t.Token] = &cp
	return nil
}

func (r *ActionTokens) Find(_ context.Context, token string) (*models.ActionToken, error) {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.actionTokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *t
	return &out, nil
}

func (r *ActionTokens) Consume(_ context.Context, token string, purpose models.Purpose) (*models.ActionToken, error) {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.actionTokens[token]
	if !ok || t.Purpose != purpose {
		return nil, common.ErrorNotFound
	}
	delete(s.actionTokens, token)
	return t, nil
}

func (r *ActionTokens) Delete(_ context.Context, token string) error {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.actionTokens, token)
	return nil
}

func (r *ActionTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.actionTokens {
		if t.Expired(now) {
			delete(s.actionTokens, k)
			n++
		}
	}
	return n, nil
}

func (r *ActionTokens) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s := (*store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.actionTokens {
		if t.UserID == userID {
			delete(s.actionTokens, k)
			n++
		}
	}
	return n, nil
}
