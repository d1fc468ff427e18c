package http

import (
	"context"
	"net/http"
	"strings"
)

// AuthVerifier resolves a bearer token to a user id. The auth collaborator
// itself is external; this interface is the seam it plugs into.
type AuthVerifier interface {
	UserID(ctx context.Context, token string) (string, error)
}

// StaticTokenVerifier resolves tokens from a fixed map; used for tests and
// backend-less runs.
type StaticTokenVerifier map[string]string

func (v StaticTokenVerifier) UserID(_ context.Context, token string) (string, error) {
	if userID, ok := v[token]; ok {
		return userID, nil
	}
	return "", ErrInvalidToken
}

// ErrInvalidToken rejects unknown bearer tokens.
var ErrInvalidToken = errInvalidToken{}

type errInvalidToken struct{}

func (errInvalidToken) Error() string { return "invalid bearer token" }

type contextKey string

const userIDKey contextKey = "userID"

// UserFromContext returns the authenticated user id, if any.
func UserFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// BearerAuth extracts the Authorization bearer token and stores the resolved
// user id on the request context. Requests without a token pass through
// unauthenticated; endpoints that require identity reject those themselves,
// so read-only fail-open paths keep working.
func BearerAuth(verifier AuthVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			tok := strings.TrimPrefix(header, "Bearer ")
			if tok == header {
				http.Error(w, "malformed authorization header", http.StatusUnauthorized)
				return
			}
			userID, err := verifier.UserID(r.Context(), tok)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}
