// Package rbac checks platform roles for backend routes.
package rbac

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"chabaqa/backend/internal/envelope"
	"chabaqa/backend/internal/server/middleware"
	"chabaqa/backend/internal/user/domain"
)

var (
	// ErrUnauthenticated means the context carries no caller.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the caller's current role is not allowed.
	ErrForbidden = errors.New("insufficient role")
)

// UserGetter loads the caller's current user record. Used by RequireRole to resolve the stored role.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// RequireRole ensures the caller is authenticated and that their stored role is one of allowed.
// The stored role is used rather than the token claim because access tokens outlive a role change.
// Returns the caller's user id on success.
func RequireRole(ctx context.Context, getter UserGetter, allowed ...domain.Role) (string, error) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	u, err := getter.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil || u.Status != domain.UserStatusActive {
		return "", ErrUnauthenticated
	}
	if !slices.Contains(allowed, u.Role) {
		return "", ErrForbidden
	}
	return userID, nil
}

// Require is RequireRole as chi middleware. It writes 401, 403, or 500 envelopes on failure.
func Require(getter UserGetter, allowed ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := RequireRole(r.Context(), getter, allowed...)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrUnauthenticated):
				envelope.WriteError(w, http.StatusUnauthorized, envelope.CodeUnauthenticated, "authentication required", nil)
			case errors.Is(err, ErrForbidden):
				envelope.WriteError(w, http.StatusForbidden, envelope.CodeForbidden, "you do not have access to this resource", nil)
			default:
				envelope.WriteError(w, http.StatusInternalServerError, envelope.CodeInternal, "failed to resolve role", nil)
			}
		})
	}
}
