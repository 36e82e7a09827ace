// Package httpapi is the JSON-over-HTTP adapter for the account and token
// services.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

const apiPrefix = "/api/v1/auth"

// Handler wires routes to services. Build it with New.
type Handler struct {
	users   *services.UserService
	authn   *services.Authenticator
	log     logging.Logger
	metrics http.Handler
	health  func(r *http.Request) error

	// insecureCookies drops the Secure attribute for plain-HTTP development.
	insecureCookies bool
}

type Option func(*Handler)

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(hd *Handler) { hd.metrics = h }
}

// WithHealthCheck makes GET /healthz report 503 when check fails.
func WithHealthCheck(check func(r *http.Request) error) Option {
	return func(hd *Handler) { hd.health = check }
}

func WithInsecureCookies() Option {
	return func(hd *Handler) { hd.insecureCookies = true }
}

func New(users *services.UserService, authn *services.Authenticator, log logging.Logger, opts ...Option) *Handler {
	h := &Handler{users: users, authn: authn, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the complete HTTP handler, middleware included.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+apiPrefix+"/sign-up", h.signUp)
	mux.HandleFunc("POST "+apiPrefix+"/sign-in", h.signIn)
	mux.HandleFunc("POST "+apiPrefix+"/refresh-token", h.refreshToken)
	mux.HandleFunc("POST "+apiPrefix+"/forgot-password", h.forgotPassword)
	mux.HandleFunc("POST "+apiPrefix+"/reset-password/{token}", h.resetPassword)
	mux.HandleFunc("POST "+apiPrefix+"/email-verify/{token}", h.verifyEmail)

	mux.HandleFunc("POST "+apiPrefix+"/sign-out", h.RequireAuth(h.signOut))
	mux.HandleFunc("GET "+apiPrefix+"/me", h.RequireAuth(h.me))
	mux.HandleFunc("POST "+apiPrefix+"/me", h.RequireAuth(h.me))
	mux.HandleFunc("POST "+apiPrefix+"/change-password", h.RequireAuth(h.changePassword))
	mux.HandleFunc("POST "+apiPrefix+"/resend-verification", h.RequireAuth(h.resendVerification))
	mux.HandleFunc("DELETE "+apiPrefix+"/account", h.RequireAuth(h.deleteAccount))

	mux.HandleFunc("GET /healthz", h.healthz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return h.withRequestLogging(mux)
}

type signUpRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type userResponse struct {
	Message string           `json:"message"`
	User    *models.Identity `json:"user"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, nil)
		return
	}
	v := validationErrors{}
	name := v.name("name", req.Name)
	email := v.email("email", req.Email)
	v.password("password", req.Password)
	v.confirm("confirmPassword", req.Password, req.ConfirmPassword)
	if len(v) > 0 {
		badRequest(w, v)
		return
	}

	id, err := h.users.SignUp(r.Context(), name, email, req.Password)
	if err != nil {
		if id == nil || !errors.Is(err, common.ErrorDelivery) {
			h.fail(w, r, err)
			return
		}
		h.logger(r.Context()).Warn(r.Context(), "verification mail not delivered",
			"user_id", id.ID, "cause", common.CauseOf(err))
	}
	writeJSON(w, http.StatusCreated, userResponse{Message: "User registered successfully", User: id})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accessTokenResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, nil)
		return
	}
	v := validationErrors{}
	email := v.email("email", req.Email)
	v.required("password", req.Password)
	if len(v) > 0 {
		badRequest(w, v)
		return
	}

	pair, err := h.users.SignIn(r.Context(), email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, accessTokenResponse{Message: "Sign in successful.", AccessToken: pair.AccessToken})
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	access, err := h.users.Refresh(r.Context(), refreshCookie(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accessTokenResponse{Message: "Refresh successful.", AccessToken: access})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	if token := refreshCookie(r); token != "" {
		if err := h.users.SignOut(r.Context(), token); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Sign out successful."})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, nil)
		return
	}
	v := validationErrors{}
	email := v.email("email", req.Email)
	if len(v) > 0 {
		badRequest(w, v)
		return
	}

	if err := h.users.ForgotPassword(r.Context(), email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "If the address is registered, a reset link has been sent."})
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, nil)
		return
	}
	v := validationErrors{}
	token := v.token("token", r.PathValue("token"))
	v.password("password", req.Password)
	v.confirm("confirmPassword", req.Password, req.ConfirmPassword)
	if len(v) > 0 {
		badRequest(w, v)
		return
	}

	if err := h.users.ResetPassword(r.Context(), token, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset successfully."})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	v := validationErrors{}
	token := v.token("token", r.PathValue("token"))
	if len(v) > 0 {
		badRequest(w, v)
		return
	}

	if err := h.users.VerifyEmail(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Email verified successfully."})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, userResponse{Message: "User data fetched successfully.", User: id})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, nil)
		return
	}
	v := validationErrors{}
	v.required("currentPassword", req.CurrentPassword)
	v.password("newPassword", req.NewPassword)
	v.confirm("confirmPassword", req.NewPassword, req.ConfirmPassword)
	if len(v) > 0 {
		badRequest(w, v)
		return
	}

	id, _ := IdentityFromContext(r.Context())
	if err := h.users.ChangePassword(r.Context(), id.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been changed successfully."})
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	if err := h.users.ResendVerification(r.Context(), id.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Verification email sent."})
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	if err := h.users.DeleteAccount(r.Context(), id.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r); err != nil {
			h.logger(r.Context()).Error(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func refreshCookie(r *http.Request) string {
	c, err := r.Cookie(common.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    token,
		Path:     apiPrefix,
		Expires:  expires,
		HttpOnly: true,
		Secure:   !h.insecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    "",
		Path:     apiPrefix,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.insecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
