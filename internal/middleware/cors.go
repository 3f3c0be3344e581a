// Package middleware provides HTTP middleware for the SpeakLexi API.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

// CORS returns a configured CORS middleware handler. Without configured
// origins only local development hosts are allowed.
func CORS(origins []string) func(next http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
