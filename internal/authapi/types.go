// Package authapi holds the JSON bodies exchanged with the backend /auth and /admin endpoints.
// Every response is wrapped in the envelope package's {"data": ...} or {"error": ...} shape.
package authapi

import "time"

// User is the public profile returned by /auth/me, verify-2fa, and register.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	Role             string    `json:"role"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries tokens, or RequiresTwoFactor with no tokens.
type LoginResponse struct {
	AccessToken        string     `json:"access_token,omitempty"`
	RefreshToken       string     `json:"refresh_token,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	RefreshExpiresAt   *time.Time `json:"refresh_expires_at,omitempty"`
	RequiresTwoFactor  bool       `json:"requires2FA"`
	ChallengeExpiresAt *time.Time `json:"challenge_expires_at,omitempty"`
	User               *User      `json:"user,omitempty"`
}

type VerifyTwoFactorRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
}

// TokenResponse is returned by verify-2fa and refresh.
type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             *User     `json:"user,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutResponse struct {
	LoggedOut bool `json:"loggedOut"`
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}

type TwoFactorRequest struct {
	Enabled bool `json:"enabled"`
}
