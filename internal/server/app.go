// Package server wires configuration, storage, services and transports into
// a runnable authkeeper server and handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics

	storage *Storage

	tokens *services.TokenService
	users  *services.UserService
	authn  *services.Authenticator
}

// NewApp validates c, opens storage, applies migrations and builds the
// services. Call Close when the App is no longer needed.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &App{
		config:  c,
		logger:  logging.NewJSON(os.Stdout, c.LogLevel),
		metrics: metrics.New(),
	}

	storage, err := OpenStorage(ctx, c, app.logger)
	if err != nil {
		return nil, err
	}
	app.storage = storage
	repos := storage.Repos

	mailer, err := app.newMailer(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("mail init error: %w", err)
	}

	codec, err := auth.NewCodec([]byte(c.SecretKey), c.AccessTokenValidityDuration)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("token codec init error: %w", err)
	}

	creds := credentials.NewVerifier(
		cryptox.NewArgon2id(cryptox.DefaultParams),
		c.HashWorkers,
		credentials.WithObserver(app.metrics.ObservePasswordHash),
	)

	app.tokens = services.NewTokenService(codec, repos, services.TokenConfig{
		RefreshTTL:           c.RefreshTokenValidityDuration,
		ResetPasswordTTL:     c.ResetPasswordTokenValidityDuration,
		EmailVerificationTTL: c.EmailVerificationTokenValidityDuration,
		FrontendURL:          c.FrontendURL,
	}, services.WithMetrics(app.metrics))
	app.users = services.NewUserService(repos, app.tokens, creds, mailer, app.metrics)
	app.authn = services.NewAuthenticator(codec, repos, app.metrics)

	return app, nil
}

func (app *App) newMailer(ctx context.Context) (mail.Sender, error) {
	if app.config.MailBackend == config.MailBackendSES {
		return mail.NewSESSenderFromConfig(ctx, mail.SESConfig{
			Region:    app.config.SESRegion,
			Endpoint:  app.config.SESEndpoint,
			AccessKey: app.config.SESAccessKey,
			SecretKey: app.config.SESSecretKey,
		}, app.config.MailFrom)
	}
	return mail.NewLogSender(app.logger.With("module", "mail")), nil
}

// Close releases the storage connections.
func (app *App) Close() {
	app.storage.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// healthCheck pings the backing stores.
func (app *App) healthCheck(r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	return app.storage.Ping(ctx)
}

func (app *App) httpHandler() http.Handler {
	opts := []httpapi.Option{
		httpapi.WithMetricsHandler(app.metrics.Handler()),
		httpapi.WithHealthCheck(app.healthCheck),
	}
	if app.config.InsecureCookies {
		opts = append(opts, httpapi.WithInsecureCookies())
	}
	return httpapi.New(app.users, app.authn, app.logger.With("module", "http_server"), opts...).Routes()
}

func (app *App) runHTTPServer(ctx context.Context) error {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.httpHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *App) runGRPCServer(ctx context.Context) error {
	s := gs.NewServer(app.config.EndpointAddrGRPC, app.logger, app.authn,
		gs.WithProtectedMethods(protectedGRPCMethods...))
	return s.Run(ctx)
}

// protectedGRPCMethods require a bearer access token.
var protectedGRPCMethods = []string{"/grpc.health.v1.Health/List"}

// Run serves HTTP and gRPC and purges expired tokens until ctx is cancelled,
// a termination signal arrives or a server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"storage", app.config.StorageBackend,
		"action_tokens", app.config.ActionTokenBackend,
		"mail", app.config.MailBackend,
	)

	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.runHTTPServer(ctx) })
	g.Go(func() error { return app.runGRPCServer(ctx) })
	g.Go(func() error {
		app.purgeLoop(ctx, app.config.PurgeInterval)
		return nil
	})

	err := g.Wait()
	if err != nil {
		app.logger.Error(context.Background(), "server stopped", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
	return err
}
