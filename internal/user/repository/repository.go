package repository

import (
	"context"

	identitydomain "chabaqa/backend/internal/identity/domain"
	"chabaqa/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// CreateWithIdentity inserts the user and its login identity atomically.
	CreateWithIdentity(ctx context.Context, u *domain.User, ident *identitydomain.Identity) error
	// SetRole changes the user's role. Callers must revoke sessions so new tokens carry it.
	SetRole(ctx context.Context, id string, role domain.Role) error
	SetTwoFactor(ctx context.Context, id string, enabled bool) error
}
