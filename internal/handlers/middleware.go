package handlers

import (
	"crypto/subtle"
	"net/http"
)

// AuthMiddleware guards the owner API with a static key. Full accounts and
// RBAC live in an external service; this core only needs to keep the
// management surface off the public redirect path.
func AuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				jsonError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
