// ABOUTME: HTTP middleware for access token authentication on API endpoints
// ABOUTME: Extracts the bearer secret and adds the owner identity to context

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/2389/sigil/internal/store"
)

// TokenValidator checks a presented secret against the token store.
// Implemented by token.Service.
type TokenValidator interface {
	Validate(ctx context.Context, presented string) (*store.AccessToken, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware creates an HTTP middleware that authenticates requests with a
// personal access token. Once a secret is presented, every way it can fail
// to match produces the same 401 response; callers learn nothing about why.
func Middleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			tok, err := tokens.Validate(r.Context(), secret)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			identity := &Identity{OwnerID: tok.OwnerID, TokenID: tok.ID}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
