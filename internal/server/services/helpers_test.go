package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	To, Subject, HTML string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (f *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no mail sent")
	return f.sent[len(f.sent)-1]
}

var linkToken = regexp.MustCompile(`/(?:reset-password|email-verify)/([0-9a-f]{64})`)

func tokenFromMail(t *testing.T, m sentMail) string {
	t.Helper()
	match := linkToken.FindStringSubmatch(m.HTML)
	require.Len(t, match, 2, "no token link in %q", m.HTML)
	return match[1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	repos   *memory.Manager
	codec   *auth.Codec
	clock   *testClock
	tokens  *TokenService
	users   *UserService
	authn   *Authenticator
	mailer  *fakeMailer
	metrics *metrics.Metrics
}

var testConfig = TokenConfig{
	RefreshTTL:           15 * 24 * time.Hour,
	ResetPasswordTTL:     15 * time.Minute,
	EmailVerificationTTL: 24 * time.Hour,
	FrontendURL:          "https://app.example/",
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := &testClock{now: time.Now().Truncate(time.Second)}
	codec, err := auth.NewCodec([]byte("0123456789abcdef0123456789abcdef"), 15*time.Minute)
	require.NoError(t, err)
	codec = codec.WithClock(clock.Now)

	repos := memory.NewManager()
	m := metrics.New()
	tokens := NewTokenService(codec, repos, testConfig, WithClock(clock.Now), WithMetrics(m))
	creds := credentials.NewVerifier(cryptox.NewArgon2id(cryptox.Params{
		MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	}), 4)
	mailer := &fakeMailer{}

	return &env{
		repos:   repos,
		codec:   codec,
		clock:   clock,
		tokens:  tokens,
		users:   NewUserService(repos, tokens, creds, mailer, m),
		authn:   NewAuthenticator(codec, repos, m),
		mailer:  mailer,
		metrics: m,
	}
}

// signUp registers and returns the new user id plus the verification token
// from the welcome mail.
func (e *env) signUp(t *testing.T, email, password string) (string, string) {
	t.Helper()
	id, err := e.users.SignUp(context.Background(), "Test User", email, password)
	require.NoError(t, err)
	return id.ID, tokenFromMail(t, e.mailer.last(t))
}

var errBoom = errors.New("boom")
