package domain

import "time"

// Identity links a user to a way of signing in. Only local password identities exist today;
// ProviderID holds the normalised email for them.
type Identity struct {
	ID           string
	UserID       string
	Provider     IdentityProvider
	ProviderID   string
	PasswordHash string // empty if not local
	CreatedAt    time.Time
}

type IdentityProvider string

const (
	IdentityProviderLocal IdentityProvider = "local"
)
