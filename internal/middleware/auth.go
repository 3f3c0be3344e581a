package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/speaklexi/backend/internal/auth"
	"github.com/speaklexi/backend/internal/models"
	apierrors "github.com/speaklexi/backend/internal/pkg/errors"
	"github.com/speaklexi/backend/internal/pkg/response"
	"github.com/speaklexi/backend/internal/service"
)

// TokenParser verifies a bearer token and returns its claims.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ActorKey is the context key for the authenticated caller.
const ActorKey contextKey = "actor"

// Auth returns a middleware that requires a valid bearer token and stores
// the caller in the request context.
func Auth(tokens TokenParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Unauthorized(w)
				return
			}

			claims, err := tokens.Parse(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				response.Error(w, apierrors.ErrUnauthorized.WithMessage("Invalid or expired access token"))
				return
			}
			accountID, err := claims.AccountID()
			if err != nil {
				response.Unauthorized(w)
				return
			}

			actor := service.Actor{AccountID: accountID, Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole returns a middleware that only admits callers with one of the
// given roles. It must run after Auth.
func RequireRole(roles ...models.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActor(r.Context())
			if !ok {
				response.Unauthorized(w)
				return
			}
			if !slices.Contains(roles, actor.Role) {
				response.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor service.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor retrieves the authenticated caller from context.
func GetActor(ctx context.Context) (service.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(service.Actor)
	return actor, ok
}
