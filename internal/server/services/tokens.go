// Package services contains server-side business logic. Every exported
// operation reports failures as *common.OpError; match the kind with
// errors.Is and log common.CauseOf(err).
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokenstore"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenConfig holds the process-wide token lifetimes and the base URL used to
// build links that carry action tokens.
type TokenConfig struct {
	RefreshTTL           time.Duration
	ResetPasswordTTL     time.Duration
	EmailVerificationTTL time.Duration
	FrontendURL          string
}

// Link paths appended to FrontendURL.
const (
	ResetPasswordPath = "/reset-password/"
	VerifyEmailPath   = "/email-verify/"
)

// TokenService owns the lifecycle of all three credential classes.
type TokenService struct {
	codec   *auth.Codec
	repos   repomanager.RepositoryManager
	db      dbx.DBTX
	cfg     TokenConfig
	now     func() time.Time
	metrics *metrics.Metrics
}

type TokenOption func(*TokenService)

func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) TokenOption {
	return func(s *TokenService) { s.metrics = m }
}

func NewTokenService(codec *auth.Codec, repos repomanager.RepositoryManager, cfg TokenConfig, opts ...TokenOption) *TokenService {
	s := &TokenService{
		codec: codec,
		repos: repos,
		db:    repos.DB(),
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withDB returns a copy whose repositories are bound to db, typically a
// transaction handle.
func (s *TokenService) withDB(db dbx.DBTX) *TokenService {
	cp := *s
	cp.db = db
	return &cp
}

func (s *TokenService) refreshStore() *tokenstore.RefreshStore {
	return tokenstore.NewRefreshStore(s.repos.RefreshTokens(s.db), s.now)
}

func (s *TokenService) actionStore() *tokenstore.ActionStore {
	return tokenstore.NewActionStore(s.repos.ActionTokens(s.db), s.now)
}

// SignIn mints an access token and persists a new refresh token for userID.
// If the refresh token cannot be stored the access token is discarded.
func (s *TokenService) SignIn(ctx context.Context, userID string) (*TokenPair, error) {
	const op = "sign-in"

	access, err := s.codec.Issue(userID)
	if err != nil {
		return nil, common.NewOpError(op, common.ErrorInternal, err)
	}
	rec, err := s.refreshStore().Create(ctx, userID, s.cfg.RefreshTTL)
	if err != nil {
		return nil, common.NewOpError(op, common.ErrorStorage, err)
	}

	s.metrics.TokenIssued(metrics.KindAccess)
	s.metrics.TokenIssued(metrics.KindRefresh)
	return &TokenPair{AccessToken: access, RefreshToken: rec.Token, RefreshExpiresAt: rec.ExpiresAt}, nil
}

// Refresh mints a new access token for the owner of refreshToken. The refresh
// token itself is not rotated. An expired record is deleted on the way out.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	const op = "refresh"

	if refreshToken == "" {
		s.metrics.AuthFailed(op)
		return "", common.NewOpError(op, common.ErrorUnauthorized, errors.New("no refresh token"))
	}

	store := s.refreshStore()
	rec, err := store.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.AuthFailed(op)
			return "", common.NewOpError(op, common.ErrorUnauthorized, err)
		}
		return "", common.NewOpError(op, common.ErrorStorage, err)
	}

	if rec.Expired(s.now()) {
		cause := errors.New("refresh token expired")
		if err := store.Delete(ctx, refreshToken); err != nil {
			cause = errors.Join(cause, err)
		}
		s.metrics.AuthFailed(op)
		return "", common.NewOpError(op, common.ErrorUnauthorized, cause)
	}

	access, err := s.codec.Issue(rec.UserID)
	if err != nil {
		return "", common.NewOpError(op, common.ErrorInternal, err)
	}
	s.metrics.TokenIssued(metrics.KindAccess)
	return access, nil
}

// SignOut revokes refreshToken. Revoking an unknown token succeeds.
func (s *TokenService) SignOut(ctx context.Context, refreshToken string) error {
	const op = "sign-out"

	if refreshToken == "" {
		return common.NewOpError(op, common.ErrorValidation, errors.New("no refresh token"))
	}
	if err := s.refreshStore().Delete(ctx, refreshToken); err != nil {
		return common.NewOpError(op, common.ErrorStorage, err)
	}
	return nil
}

func (s *TokenService) ttlFor(p models.Purpose) time.Duration {
	if p == models.PurposeEmailVerification {
		return s.cfg.EmailVerificationTTL
	}
	return s.cfg.ResetPasswordTTL
}

// IssueActionToken creates a single-use token for purpose.
func (s *TokenService) IssueActionToken(ctx context.Context, userID string, purpose models.Purpose) (*models.ActionToken, error) {
	const op = "issue-action-token"

	if !purpose.Valid() {
		return nil, common.NewOpError(op, common.ErrorValidation, errors.New("unknown purpose "+string(purpose)))
	}
	rec, err := s.actionStore().Create(ctx, userID, purpose, s.ttlFor(purpose))
	if err != nil {
		return nil, common.NewOpError(op, common.ErrorStorage, err)
	}
	s.metrics.TokenIssued(metrics.KindAction)
	return rec, nil
}

func (s *TokenService) link(path, token string) string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + path + token
}

// RequestPasswordReset issues a reset-password token and returns the link
// to put in the email.
func (s *TokenService) RequestPasswordReset(ctx context.Context, userID string) (string, error) {
	rec, err := s.IssueActionToken(ctx, userID, models.PurposeResetPassword)
	if err != nil {
		return "", err
	}
	return s.link(ResetPasswordPath, rec.Token), nil
}

// RequestEmailVerification issues an email-verification token and returns
// the link to put in the email.
func (s *TokenService) RequestEmailVerification(ctx context.Context, userID string) (string, error) {
	rec, err := s.IssueActionToken(ctx, userID, models.PurposeEmailVerification)
	if err != nil {
		return "", err
	}
	return s.link(VerifyEmailPath, rec.Token), nil
}

// ConsumeActionToken spends token for purpose and returns its owner.
// A token that is unknown or carries another purpose is left untouched.
// An expired token is removed and rejected. Of several concurrent callers
// at most one succeeds.
func (s *TokenService) ConsumeActionToken(ctx context.Context, token string, purpose models.Purpose) (string, error) {
	const op = "consume-action-token"

	if token == "" || !purpose.Valid() {
		return "", common.NewOpError(op, common.ErrorUnauthorized, errors.New("empty token or unknown purpose"))
	}

	rec, err := s.actionStore().Consume(ctx, token, purpose)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.AuthFailed(op)
			return "", common.NewOpError(op, common.ErrorUnauthorized, err)
		}
		return "", common.NewOpError(op, common.ErrorStorage, err)
	}
	if rec.Expired(s.now()) {
		s.metrics.AuthFailed(op)
		return "", common.NewOpError(op, common.ErrorUnauthorized, errors.New("action token expired"))
	}

	s.metrics.ActionTokenConsumed(string(purpose))
	return rec.UserID, nil
}

// ResetPassword spends a reset-password token and stores newDigest for its
// owner. The token stays spent even if the digest write fails.
func (s *TokenService) ResetPassword(ctx context.Context, token string, newDigest string) error {
	const op = "reset-password"

	userID, err := s.ConsumeActionToken(ctx, token, models.PurposeResetPassword)
	if err != nil {
		return err
	}
	if err := s.repos.Users(s.db).UpdatePassword(ctx, userID, newDigest); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NewOpError(op, common.ErrorUnauthorized, err)
		}
		return common.NewOpError(op, common.ErrorStorage, err)
	}
	return nil
}

// PurgeExpired deletes expired refresh and action token records.
func (s *TokenService) PurgeExpired(ctx context.Context) (refresh int64, action int64, err error) {
	const op = "purge"

	refresh, rerr := s.refreshStore().DeleteExpired(ctx)
	action, aerr := s.actionStore().DeleteExpired(ctx)
	if joined := errors.Join(rerr, aerr); joined != nil {
		return refresh, action, common.NewOpError(op, common.ErrorStorage, joined)
	}
	s.metrics.Purged(metrics.KindRefresh, refresh)
	s.metrics.Purged(metrics.KindAction, action)
	return refresh, action, nil
}
