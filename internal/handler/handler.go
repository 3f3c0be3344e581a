// Package handler provides HTTP handlers for the SpeakLexi API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/speaklexi/backend/internal/middleware"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/response"
	"github.com/speaklexi/backend/internal/service"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Middleware is an HTTP middleware constructor.
type Middleware = func(next http.Handler) http.Handler

// decodeJSON decodes the request body into v. An empty body decodes to
// the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apierrors.ErrBadRequest.WithMessage("Invalid request body")
	}
	return nil
}

// pathUUID parses a UUID route parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apierrors.NewValidationError(name, "invalid UUID format")
	}
	return id, nil
}

// actorFrom returns the authenticated caller, writing a 401 when absent.
func actorFrom(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok || actor.AccountID == uuid.Nil {
		response.Unauthorized(w)
		return service.Actor{}, false
	}
	return actor, true
}

// passthrough is used when an optional middleware is not configured.
func passthrough(next http.Handler) http.Handler { return next }
