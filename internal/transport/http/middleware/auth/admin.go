// Package auth provides authentication middleware for HTTP routes.
package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mandalnilabja/maptoken/internal/storage"
)

// PasswordStore is the part of storage.Storage AdminAuth needs.
type PasswordStore interface {
	GetAdminPasswordHash() (string, error)
}

// AdminAuth middleware protects admin routes using stored password hash.
// Requires Bearer token authentication with the admin password.
func AdminAuth(store PasswordStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeUnauthorized(w, "authorization required")
				return
			}
			password := strings.TrimPrefix(header, "Bearer ")

			hash, err := store.GetAdminPasswordHash()
			if err != nil {
				writeUnauthorized(w, "server error")
				return
			}
			if hash == "" {
				writeUnauthorized(w, "admin not configured")
				return
			}

			valid, err := storage.VerifyPassword(password, hash)
			if err != nil || !valid {
				writeUnauthorized(w, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized writes a JSON 401 response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="maptoken-admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"message": message,
			"type":    "authentication_error",
		},
	})
}
