package repository

import (
	"context"
	"database/sql"
	"errors"

	"chabaqa/backend/internal/mfa/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a challenge repository backed by the two_factor_challenges table.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put upserts the challenge by email and resets its attempt counter.
func (r *PostgresRepository) Put(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO two_factor_challenges (email, user_id, code_hash, attempts, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE
		SET user_id = EXCLUDED.user_id, code_hash = EXCLUDED.code_hash, attempts = EXCLUDED.attempts,
		    expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`,
		c.Email, c.UserID, c.CodeHash, c.Attempts, c.ExpiresAt, c.CreatedAt)
	return err
}

// Get returns the challenge for email, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, email string) (*domain.Challenge, error) {
	var c domain.Challenge
	err := r.db.QueryRowContext(ctx, `
		SELECT email, user_id, code_hash, attempts, expires_at, created_at
		FROM two_factor_challenges WHERE email = $1`, email).
		Scan(&c.Email, &c.UserID, &c.CodeHash, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// RecordAttempt increments attempts atomically and returns the new count.
func (r *PostgresRepository) RecordAttempt(ctx context.Context, email string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE two_factor_challenges SET attempts = attempts + 1
		WHERE email = $1 RETURNING attempts`, email).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Consume deletes the challenge row when its code hash still matches.
func (r *PostgresRepository) Consume(ctx context.Context, email, codeHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM two_factor_challenges WHERE email = $1 AND code_hash = $2`, email, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes the challenge for email.
func (r *PostgresRepository) Delete(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM two_factor_challenges WHERE email = $1`, email)
	return err
}
