package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const secretHeader = "X-Nava-Secret"

// secretFromRequest returns the credential a client presented. Browsers
// cannot set headers on websocket or EventSource requests, so the token
// query parameter is accepted as well.
func secretFromRequest(r *http.Request) string {
	if v := r.Header.Get(secretHeader); v != "" {
		return v
	}
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimPrefix(v, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// verifySecret compares in constant time.
func verifySecret(expected, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// requireSecret rejects requests that do not present secret. An empty secret
// disables the check.
func requireSecret(secret string, next http.Handler) http.Handler {
	if secret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !verifySecret(secret, secretFromRequest(r)) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
