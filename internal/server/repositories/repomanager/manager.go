package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/actiontokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or a
// transaction handle obtained from InTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	// DB is the handle repositories are bound to outside a transaction.
	// It may be nil for backends that do not use database/sql.
	DB() dbx.DBTX
	InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	ActionTokens(db dbx.DBTX) actiontokens.Repository
}
