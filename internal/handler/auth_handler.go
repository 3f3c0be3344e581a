package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/speaklexi/backend/internal/middleware"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/response"
	"github.com/speaklexi/backend/internal/service"
)

// AuthHandler handles registration, verification, login and password
// recovery.
type AuthHandler struct {
	accounts service.AccountService
	recovery service.RecoveryService
	limit    func(scope string) Middleware
}

// NewAuthHandler creates a new auth handler. limit builds the rate limiter
// for mail-sending endpoints and may be nil.
func NewAuthHandler(accounts service.AccountService, recovery service.RecoveryService, limit func(scope string) Middleware) *AuthHandler {
	if limit == nil {
		limit = func(string) Middleware { return passthrough }
	}
	return &AuthHandler{accounts: accounts, recovery: recovery, limit: limit}
}

// Routes returns a chi router with auth routes.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/verify", h.Verify)
	r.With(h.limit("resend")).Post("/resend-code", h.ResendCode)
	r.Post("/login", h.Login)

	r.With(h.limit("forgot")).Post("/password/forgot", h.ForgotPassword)
	r.Get("/password/validate", h.ValidateResetToken)
	r.Post("/password/reset", h.ResetPassword)

	return r
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	middleware.IncrementRegistrations()

	response.Created(w, result)
}

// VerifyHTTPRequest is the HTTP request body for email verification.
type VerifyHTTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Verify handles POST /v1/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.Email == "" {
		response.ValidationError(w, "email", "email is required")
		return
	}
	if req.Code == "" {
		response.ValidationError(w, "code", "code is required")
		return
	}

	account, err := h.accounts.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, account)
}

// EmailHTTPRequest is the HTTP request body for endpoints keyed by email.
type EmailHTTPRequest struct {
	Email string `json:"email"`
}

// ResendCode handles POST /v1/auth/resend-code
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req EmailHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.Email == "" {
		response.ValidationError(w, "email", "email is required")
		return
	}

	result, err := h.accounts.ResendCode(r.Context(), req.Email)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, result)
}

// CredentialsHTTPRequest is the HTTP request body for email and password.
type CredentialsHTTPRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, apierrors.ErrInvalidCredentials)
		return
	}

	result, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, result)
}

// ForgotPassword handles POST /v1/auth/password/forgot
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.Email == "" {
		response.ValidationError(w, "email", "email is required")
		return
	}

	result, err := h.recovery.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, result)
}

// ValidateResetToken handles GET /v1/auth/password/validate?token=
func (h *AuthHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	status, err := h.recovery.ValidateResetToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, status)
}

// ResetPasswordHTTPRequest is the HTTP request body for a password reset.
type ResetPasswordHTTPRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword handles POST /v1/auth/password/reset
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	if err := h.recovery.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]string{"message": "Password updated"})
}
