package middleware

import (
	"net/http"
	"strings"

	"chabaqa/backend/internal/envelope"
	"chabaqa/backend/internal/security"
	"chabaqa/backend/internal/tokenstore"
)

const bearerPrefix = "bearer "

// AccessCookieName is the cookie the web app stores the access token in.
const AccessCookieName = tokenstore.AccessCookie

// Authenticate validates the access token from the Authorization header (Bearer) or the access_token cookie
// and stores the caller Identity in the request context. Invalid or missing tokens leave the request anonymous;
// use RequireAuth on routes that need a caller.
func Authenticate(tokens *security.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			pr, sessionID, err := tokens.VerifyAccessSession(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithIdentity(r.Context(), Identity{UserID: pr.ID, Email: pr.Email, Role: pr.Role, SessionID: sessionID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without an Identity with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetIdentity(r.Context()); !ok {
			envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeUnauthenticated, "missing or invalid authorization", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken returns the Bearer token, else the access cookie value, else "".
func extractToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("Authorization")); len(v) > len(bearerPrefix) &&
		strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(v[len(bearerPrefix):])
	}
	if c, err := r.Cookie(AccessCookieName); err == nil {
		return c.Value
	}
	return ""
}
