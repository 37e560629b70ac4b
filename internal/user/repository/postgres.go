package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chabaqa/backend/internal/db"
	identitydomain "chabaqa/backend/internal/identity/domain"
	identityrepo "chabaqa/backend/internal/identity/repository"
	"chabaqa/backend/internal/user/domain"
)

var (
	// ErrNotFound is returned by updates that match no row.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when a user or local identity with the email already exists.
	ErrEmailTaken = errors.New("email already registered")
)

// Unique constraints that mean the email is taken.
const (
	usersEmailKey         = "users_email_key"
	identitiesProviderKey = "identities_provider_provider_id_key"
)

var _ Repository = (*PostgresRepository)(nil)

const userColumns = `id, email, name, role, status, two_factor_enabled, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
// Emails are stored lower-cased; callers pass the normalised form.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &u.TwoFactorEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return emailTaken(insertUser(ctx, r.db, u))
}

// CreateWithIdentity inserts the user and its login identity in one transaction, so a failed
// identity insert leaves no user behind. A duplicate email returns ErrEmailTaken.
func (r *PostgresRepository) CreateWithIdentity(ctx context.Context, u *domain.User, ident *identitydomain.Identity) error {
	if err := u.Validate(); err != nil {
		return err
	}
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		return identityrepo.NewPostgresRepository(tx).Create(ctx, ident)
	})
	return emailTaken(err)
}

func insertUser(ctx context.Context, conn db.DBTX, u *domain.User) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, u.Role, u.Status, u.TwoFactorEnabled, u.CreatedAt, u.UpdatedAt)
	return err
}

func emailTaken(err error) error {
	if db.IsUniqueViolation(err, usersEmailKey) || db.IsUniqueViolation(err, identitiesProviderKey) {
		return ErrEmailTaken
	}
	return err
}

// SetRole updates the role and updated_at. Returns ErrNotFound if no user has id.
func (r *PostgresRepository) SetRole(ctx context.Context, id string, role domain.Role) error {
	return r.exec(ctx, `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`, id, role, time.Now().UTC())
}

// SetTwoFactor toggles emailed second-factor codes for the user.
func (r *PostgresRepository) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	return r.exec(ctx, `UPDATE users SET two_factor_enabled = $2, updated_at = $3 WHERE id = $1`, id, enabled, time.Now().UTC())
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
