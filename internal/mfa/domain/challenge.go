package domain

import "time"

// Challenge is a pending second-factor login, keyed by email. Only the code hash is kept.
// A newer challenge for the same email replaces the older one.
type Challenge struct {
	Email     string
	UserID    string
	CodeHash  string
	Attempts  int // wrong codes submitted so far
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the challenge is no longer usable at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
