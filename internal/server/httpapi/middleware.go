package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/oklog/ulid/v2"
)

const RequestIDHeader = "X-Request-Id"

type ctxKey int

const (
	identityKey ctxKey = iota
	loggerKey
)

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*models.Identity)
	return id, ok && id != nil
}

func withLogger(ctx context.Context, l logging.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func (h *Handler) logger(ctx context.Context) logging.Logger {
	if l, ok := ctx.Value(loggerKey).(logging.Logger); ok {
		return l
	}
	return h.log
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// withRequestLogging tags every request with a ULID, echoes it in
// X-Request-Id, attaches a request-scoped logger and logs the outcome.
// Panics become 500s.
func (h *Handler) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := ulid.Make().String()
		w.Header().Set(RequestIDHeader, reqID)

		log := h.log.With("request_id", reqID)
		ctx := withLogger(r.Context(), log)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				log.Error(ctx, "http.panic", "panic", p)
				writeError(rec, http.StatusInternalServerError, "internal", "internal error")
			}
			log.Info(ctx, "http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// RequireAuth lets a request through only with a valid bearer access token
// for an existing account. The identity is then available through
// IdentityFromContext.
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.authn.Authenticate(r.Context(), r.Header.Get(common.AuthorizationHeaderName))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	}
}
