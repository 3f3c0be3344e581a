package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/speaklexi/backend/internal/middleware"
	"github.com/speaklexi/backend/internal/models"
	"github.com/speaklexi/backend/internal/pkg/response"
	"github.com/speaklexi/backend/internal/service"
)

// DeactivationConfirmation must be typed by the user to deactivate.
const DeactivationConfirmation = "ELIMINAR"

// AccountHandler handles account lifecycle requests.
type AccountHandler struct {
	accounts service.AccountService
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accounts service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Routes returns a chi router with account routes. authn guards the routes
// that act on the caller's own account.
func (h *AccountHandler) Routes(authn Middleware) chi.Router {
	r := chi.NewRouter()

	r.Post("/reactivate", h.Reactivate)

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/me/deactivate", h.Deactivate)
		r.With(middleware.RequireRole(models.RoleAdmin)).Delete("/{id}", h.Purge)
	})

	return r
}

// DeactivateHTTPRequest is the HTTP request body for deactivation.
type DeactivateHTTPRequest struct {
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

// Deactivate handles POST /v1/accounts/me/deactivate
func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req DeactivateHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.Confirmation != DeactivationConfirmation {
		response.ValidationError(w, "confirmation", "type "+DeactivationConfirmation+" to confirm")
		return
	}
	if req.Password == "" {
		response.ValidationError(w, "password", "password is required")
		return
	}

	result, err := h.accounts.Deactivate(r.Context(), actor.AccountID, req.Password)
	if err != nil {
		response.Error(w, err)
		return
	}
	middleware.RecordLifecycle("deactivated", 1)

	response.OK(w, result)
}

// Reactivate handles POST /v1/accounts/reactivate
func (h *AccountHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	var req CredentialsHTTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.Email == "" {
		response.ValidationError(w, "email", "email is required")
		return
	}

	result, err := h.accounts.Reactivate(r.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(w, err)
		return
	}
	middleware.RecordLifecycle("reactivated", 1)

	response.OK(w, result)
}

// Purge handles DELETE /v1/accounts/{id}
func (h *AccountHandler) Purge(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		response.Error(w, err)
		return
	}

	if err := h.accounts.Purge(r.Context(), id); err != nil {
		response.Error(w, err)
		return
	}
	middleware.RecordLifecycle("purged", 1)

	response.NoContent(w)
}
