package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware rejects requests lacking the configured bearer token.
// It runs before any admission so an unauthorized caller never consumes a
// lease. Both "Bearer <token>" and a bare "<token>" are accepted.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header == "" {
			writeJSONError(w, http.StatusUnauthorized, "Authorization header is missing")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(authToken)) != 1 {
			writeJSONError(w, http.StatusForbidden, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
