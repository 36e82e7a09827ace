package actiontokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.ActionToken) error {
	query := `
		INSERT INTO action_tokens (token, user_id, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, t.Token, t.UserID, string(t.Purpose), t.ExpiresAt)
	if err != nil {
		switch {
		case dbx.IsUniqueViolation(err):
			return common.ErrorDuplicateKey
		case dbx.IsForeignKeyViolation(err), dbx.IsInvalidText(err):
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.ActionToken, error) {
	query := `
		SELECT token, user_id, purpose, expires_at
		FROM action_tokens
		WHERE token = $1
	`
	t := &models.ActionToken{}
	var purpose string
	err := r.db.QueryRowContext(ctx, query, token).Scan(&t.Token, &t.UserID, &purpose, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.Purpose = models.Purpose(purpose)
	return t, nil
}

// Consume is a single conditional DELETE ... RETURNING, so of two concurrent
// callers presenting the same token only one gets the row back.
func (r *PostgresRepository) Consume(ctx context.Context, token string, purpose models.Purpose) (*models.ActionToken, error) {
	query := `
		DELETE FROM action_tokens
		WHERE token = $1 AND purpose = $2
		RETURNING user_id, expires_at
	`
	t := &models.ActionToken{Token: token, Purpose: purpose}
	err := r.db.QueryRowContext(ctx, query, token, string(purpose)).Scan(&t.UserID, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM action_tokens
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM action_tokens
		WHERE expires_at <= $1
	`
	n, err := dbx.ExecAffected(ctx, r.db, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	query := `
		DELETE FROM action_tokens
		WHERE user_id = $1
	`
	n, err := dbx.ExecAffected(ctx, r.db, query, userID)
	if err != nil {
		if dbx.IsInvalidText(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
