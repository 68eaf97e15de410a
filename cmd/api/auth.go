package main

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAPIKey validates the Bearer token in the Authorization header
// before allowing a request through to the handler.
func requireAPIKey(expectedKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Failsafe: lock down the server if the operator forgot to set the
			// key. Returning 500 rather than 401 makes it immediately obvious
			// during deployment that this is a server misconfiguration, not a
			// bad token.
			if expectedKey == "" {
				http.Error(w, "Server configuration error: API_SECRET_KEY not set", http.StatusInternalServerError)
				return
			}

			authHeader := r.Header.Get("Authorization")
			token := strings.TrimPrefix(authHeader, "Bearer ")
			token = strings.TrimSpace(token)

			// ConstantTimeCompare always examines every byte of both inputs
			// before returning, so response latency carries no information
			// about how many leading characters of the guess were correct.
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized: Invalid or missing API Key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
