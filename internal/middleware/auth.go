package middleware

import (
	"net/http"
	"strings"
)

// TokenValidator validates an access token and returns the user it was issued to.
type TokenValidator interface {
	ValidateAccessToken(token string) (userID string, err error)
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth rejects requests without a valid bearer access token with 401
// and stores the user ID in the request context otherwise.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="beaconads"`)
				writeJSONError(w, r.Context(), http.StatusUnauthorized, "auth_failed", "Missing bearer token")
				return
			}

			userID, err := validator.ValidateAccessToken(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="beaconads", error="invalid_token"`)
				writeJSONError(w, r.Context(), http.StatusUnauthorized, "auth_failed", "Invalid or expired token")
				return
			}

			ctx := SetUserID(r.Context(), userID)
			UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the user when a valid token is present and otherwise
// lets the request through anonymously.
func OptionalAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if userID, err := validator.ValidateAccessToken(token); err == nil {
					ctx := SetUserID(r.Context(), userID)
					UpdateResponseContext(w, ctx)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
