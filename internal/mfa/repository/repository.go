package repository

import (
	"context"
	"time"

	"chabaqa/backend/internal/mfa/domain"
)

// Repository defines storage for pending second-factor challenges, keyed by email.
type Repository interface {
	// Put stores c, replacing any existing challenge for the same email.
	Put(ctx context.Context, c *domain.Challenge) error
	// Get returns the challenge for email, or nil if none exists.
	Get(ctx context.Context, email string) (*domain.Challenge, error)
	// RecordAttempt increments the attempt counter and returns the new count.
	// Returns 0 when no challenge exists for email.
	RecordAttempt(ctx context.Context, email string) (int, error)
	// Consume deletes the challenge for email only if its code hash equals codeHash,
	// and reports whether it did. At most one caller consumes a given challenge.
	Consume(ctx context.Context, email, codeHash string) (bool, error)
	// Delete removes the challenge for email. Missing challenges are not an error.
	Delete(ctx context.Context, email string) error
}

// DefaultChallengeTTL is the default challenge expiry (10 minutes).
const DefaultChallengeTTL = 10 * time.Minute
