// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/actiontokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook. Action tokens may live elsewhere, see
// WithActionTokenRepository.
type PostgresRepositoryManager struct {
	db           *sql.DB
	actionTokens actiontokens.Repository
}

// Option customises a PostgresRepositoryManager.
type Option func(*PostgresRepositoryManager)

// WithActionTokenRepository makes every ActionTokens call return repo
// (for example a Redis-backed one) instead of the Postgres table.
func WithActionTokenRepository(repo actiontokens.Repository) Option {
	return func(m *PostgresRepositoryManager) {
		m.actionTokens = repo
	}
}

// DB returns the pool the manager was built with.
func (m *PostgresRepositoryManager) DB() dbx.DBTX {
	return m.db
}

// InTx runs fn inside a transaction on the manager's pool.
func (m *PostgresRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, m.db, nil, fn)
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// RefreshTokens returns a refreshtokens.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

// ActionTokens returns an actiontokens.Repository bound to the provided DBTX,
// or the override given through WithActionTokenRepository.
func (m *PostgresRepositoryManager) ActionTokens(db dbx.DBTX) actiontokens.Repository {
	if m.actionTokens != nil {
		return m.actionTokens
	}
	return actiontokens.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB, opts ...Option) (RepositoryManager, error) {
	m := &PostgresRepositoryManager{db: db}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}
