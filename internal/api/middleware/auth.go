package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/urban-yield/urban-api/internal/api/response"
)

const keyPrefixLen = 8

// Auth checks a bearer API key against a single bcrypt hash. A nil Auth, or
// one built from an empty hash, lets every request through as anonymous.
type Auth struct {
	hash []byte
}

// NewAuth creates Auth for the bcrypt hash of the accepted API key.
func NewAuth(hash string) *Auth {
	if hash == "" {
		return nil
	}
	return &Auth{hash: []byte(hash)}
}

// Authenticate validates the Bearer token and records the caller in the
// request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			next.ServeHTTP(w, r.WithContext(setClient(r.Context(), Anonymous)))
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized, "Invalid API key format")
			return
		}
		if bcrypt.CompareHashAndPassword(a.hash, []byte(rawKey)) != nil {
			response.Error(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(setClient(r.Context(), rawKey[:keyPrefixLen])))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
