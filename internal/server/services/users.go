package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	usersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokenstore"
)

// UserService implements the account operations exposed over HTTP. Token
// handling is delegated to TokenService.
type UserService struct {
	repos   repomanager.RepositoryManager
	tokens  *TokenService
	creds   *credentials.Verifier
	mailer  mail.Sender
	metrics *metrics.Metrics

	dummyMu     sync.Mutex
	dummyDigest string
}

func NewUserService(repos repomanager.RepositoryManager, tokens *TokenService, creds *credentials.Verifier, mailer mail.Sender, m *metrics.Metrics) *UserService {
	return &UserService{repos: repos, tokens: tokens, creds: creds, mailer: mailer, metrics: m}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) userRepo() usersrepo.Repository {
	return s.repos.Users(s.repos.DB())
}

// asOpError keeps an *OpError produced further down intact.
func asOpError(op string, kind error, err error) error {
	var oe *common.OpError
	if errors.As(err, &oe) {
		return oe
	}
	return common.NewOpError(op, kind, err)
}

func lookupKind(err error, notFound error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return notFound
	}
	return common.ErrorStorage
}

// SignUp creates an unverified account and mails a verification link. If
// only the mail fails, the created identity is returned together with an
// error of kind common.ErrorDelivery.
func (s *UserService) SignUp(ctx context.Context, name, email, password string) (*models.Identity, error) {
	const op = "sign-up"
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)

	if email == "" || password == "" {
		return nil, common.NewOpError(op, common.ErrorValidation, errors.New("email and password are required"))
	}

	_, err := s.userRepo().GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, common.NewOpError(op, common.ErrorValidation, common.ErrorDuplicateKey)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, common.NewOpError(op, common.ErrorStorage, err)
	}

	digest, err := s.creds.Hash(ctx, password)
	if err != nil {
		return nil, common.NewOpError(op, common.ErrorInternal, err)
	}

	var user *models.User
	var link string
	err = s.repos.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repos.Users(tx).Create(ctx, &models.User{
			Name:         name,
			Email:        email,
			PasswordHash: digest,
			Role:         models.RoleUser,
		})
		if err != nil {
			return err
		}
		link, err = s.tokens.withDB(tx).RequestEmailVerification(ctx, user.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorDuplicateKey) {
			return nil, common.NewOpError(op, common.ErrorValidation, err)
		}
		return nil, asOpError(op, common.ErrorStorage, err)
	}

	if err := s.send(ctx, user, mail.SubjectVerifyEmail, mail.VerifyEmailBody, link); err != nil {
		return user.Identity(), common.NewOpError(op, common.ErrorDelivery, err)
	}
	return user.Identity(), nil
}

// SignIn checks email and password and starts a session. An unknown email
// and a wrong password are indistinguishable to the caller.
func (s *UserService) SignIn(ctx context.Context, email, password string) (*TokenPair, error) {
	const op = "sign-in"

	user, err := s.userRepo().GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewOpError(op, common.ErrorStorage, err)
		}
		// Spend the same time as a real check.
		_, _ = s.creds.Verify(ctx, s.dummy(), password)
		s.metrics.AuthFailed(op)
		return nil, common.NewOpError(op, common.ErrorUnauthorized, err)
	}

	ok, err := s.creds.Verify(ctx, user.PasswordHash, password)
	if err != nil {
		return nil, common.NewOpError(op, common.ErrorInternal, err)
	}
	if !ok {
		s.metrics.AuthFailed(op)
		return nil, common.NewOpError(op, common.ErrorUnauthorized, errors.New("password mismatch"))
	}
	return s.tokens.SignIn(ctx, user.ID)
}

// fallbackDummyDigest is a well-formed argon2id digest at the default cost
// that matches no password.
const fallbackDummyDigest = "$argon2id$v=19$m=65536,t=1,p=4$c29tZXNhbHRzb21lc2FsdA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// dummy returns a digest of a random password, computed once on the first
// successful attempt. Until then fallbackDummyDigest stands in.
func (s *UserService) dummy() string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()

	if s.dummyDigest != "" {
		return s.dummyDigest
	}
	pw, err := common.MakeRandHexString(16)
	if err != nil {
		return fallbackDummyDigest
	}
	digest, err := s.creds.Hash(context.Background(), pw)
	if err != nil || digest == "" {
		return fallbackDummyDigest
	}
	s.dummyDigest = digest
	return digest
}

func (s *UserService) SignOut(ctx context.Context, refreshToken string) error {
	return s.tokens.SignOut(ctx, refreshToken)
}

func (s *UserService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// ForgotPassword mails a reset link when email belongs to an account. It
// reports success for unknown addresses too.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	const op = "forgot-password"

	user, err := s.userRepo().GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return common.NewOpError(op, common.ErrorStorage, err)
	}

	link, err := s.tokens.RequestPasswordReset(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := s.send(ctx, user, mail.SubjectResetPassword, mail.ResetPasswordBody, link); err != nil {
		return common.NewOpError(op, common.ErrorDelivery, err)
	}
	return nil
}

// ResetPassword hashes newPassword and spends token to store it.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "reset-password"

	if token == "" {
		return common.NewOpError(op, common.ErrorUnauthorized, errors.New("empty token"))
	}
	digest, err := s.creds.Hash(ctx, newPassword)
	if err != nil {
		return common.NewOpError(op, common.ErrorInternal, err)
	}
	return s.tokens.ResetPassword(ctx, token, digest)
}

// VerifyEmail spends an email-verification token and marks its owner
// verified.
func (s *UserService) VerifyEmail(ctx context.Context, token string) error {
	const op = "verify-email"

	userID, err := s.tokens.ConsumeActionToken(ctx, token, models.PurposeEmailVerification)
	if err != nil {
		return err
	}
	if err := s.repos.Users(s.repos.DB()).SetVerified(ctx, userID); err != nil {
		return common.NewOpError(op, lookupKind(err, common.ErrorUnauthorized), err)
	}
	return nil
}

// ResendVerification mails a fresh verification link to an unverified user.
func (s *UserService) ResendVerification(ctx context.Context, userID string) error {
	const op = "resend-verification"

	user, err := s.userRepo().GetByID(ctx, userID)
	if err != nil {
		return common.NewOpError(op, lookupKind(err, common.ErrorUnauthorized), err)
	}
	if user.IsVerified {
		return common.NewOpError(op, common.ErrorValidation, errors.New("already verified"))
	}

	link, err := s.tokens.RequestEmailVerification(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := s.send(ctx, user, mail.SubjectVerifyEmail, mail.VerifyEmailBody, link); err != nil {
		return common.NewOpError(op, common.ErrorDelivery, err)
	}
	return nil
}

// ChangePassword replaces the password of userID after checking current.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	const op = "change-password"

	user, err := s.userRepo().GetByID(ctx, userID)
	if err != nil {
		return common.NewOpError(op, lookupKind(err, common.ErrorUnauthorized), err)
	}

	ok, err := s.creds.Verify(ctx, user.PasswordHash, current)
	if err != nil {
		return common.NewOpError(op, common.ErrorInternal, err)
	}
	if !ok {
		return common.NewOpError(op, common.ErrorValidation, errors.New("current password is incorrect"))
	}

	digest, err := s.creds.Hash(ctx, next)
	if err != nil {
		return common.NewOpError(op, common.ErrorInternal, err)
	}
	if err := s.repos.Users(s.repos.DB()).UpdatePassword(ctx, user.ID, digest); err != nil {
		return common.NewOpError(op, lookupKind(err, common.ErrorUnauthorized), err)
	}
	return nil
}

// Me returns the caller's account without its password digest.
func (s *UserService) Me(ctx context.Context, userID string) (*models.Identity, error) {
	user, err := s.userRepo().GetByID(ctx, userID)
	if err != nil {
		return nil, common.NewOpError("me", lookupKind(err, common.ErrorNotFound), err)
	}
	return user.Identity(), nil
}

// DeleteAccount removes userID together with its refresh and action tokens.
// Access tokens already handed out stop authenticating immediately.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	const op = "delete-account"

	// Action tokens may live outside the database, beyond the reach of the
	// foreign key cascade.
	actions := tokenstore.NewActionStore(s.repos.ActionTokens(s.repos.DB()), nil)
	if _, err := actions.DeleteByUser(ctx, userID); err != nil {
		return common.NewOpError(op, common.ErrorStorage, err)
	}
	if err := s.repos.Users(s.repos.DB()).Delete(ctx, userID); err != nil {
		return common.NewOpError(op, lookupKind(err, common.ErrorNotFound), err)
	}
	return nil
}

type bodyFunc func(name, link string) (string, error)

func (s *UserService) send(ctx context.Context, user *models.User, subject string, body bodyFunc, link string) error {
	html, err := body(user.Name, link)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, user.Email, subject, html)
}
