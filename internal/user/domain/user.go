package domain

import (
	"errors"
	"time"
)

// User is the core user entity.
type User struct {
	ID               string
	Email            string
	Name             string
	Role             Role
	Status           UserStatus
	TwoFactorEnabled bool // when true, login issues an emailed challenge instead of tokens
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Role is the platform role carried in session tokens.
type Role string

const (
	RoleUser    Role = "user"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleCreator, RoleAdmin:
		return true
	}
	return false
}

// CanCreate reports whether r may use creator-only areas. Admins inherit creator access.
func (r Role) CanCreate() bool {
	return r == RoleCreator || r == RoleAdmin
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !u.Role.Valid() {
		return errors.New("role must be user, creator, or admin")
	}
	return nil
}
