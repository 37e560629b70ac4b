// seed inserts one development user per role for local testing.
// Idempotent: users whose email already exists are skipped.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"chabaqa/backend/internal/config"
	"chabaqa/backend/internal/db"
	identitydomain "chabaqa/backend/internal/identity/domain"
	"chabaqa/backend/internal/logging"
	"chabaqa/backend/internal/security"
	userdomain "chabaqa/backend/internal/user/domain"
	userrepo "chabaqa/backend/internal/user/repository"
)

const devPassword = "password123"

var devUsers = []struct {
	email     string
	name      string
	role      userdomain.Role
	twoFactor bool
}{
	{"user@chabaqa.dev", "Dev User", userdomain.RoleUser, false},
	{"creator@chabaqa.dev", "Dev Creator", userdomain.RoleCreator, false},
	{"admin@chabaqa.dev", "Dev Admin", userdomain.RoleAdmin, true},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg, "chabaqa-seed")

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		slog.Error("db", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost)
	ctx := context.Background()

	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		slog.Error("hash password", "error", err)
		os.Exit(1)
	}

	for _, du := range devUsers {
		existing, err := users.GetByEmail(ctx, du.email)
		if err != nil {
			slog.Error("seed check", "email", du.email, "error", err)
			os.Exit(1)
		}
		if existing != nil {
			slog.Info("seed: user exists, skipping", "email", du.email)
			continue
		}

		now := time.Now().UTC()
		u := &userdomain.User{
			ID:               uuid.New().String(),
			Email:            du.email,
			Name:             du.name,
			Role:             du.role,
			Status:           userdomain.UserStatusActive,
			TwoFactorEnabled: du.twoFactor,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		err = users.CreateWithIdentity(ctx, u, &identitydomain.Identity{
			ID:           uuid.New().String(),
			UserID:       u.ID,
			Provider:     identitydomain.IdentityProviderLocal,
			ProviderID:   du.email,
			PasswordHash: hash,
			CreatedAt:    now,
		})
		if errors.Is(err, userrepo.ErrEmailTaken) {
			slog.Info("seed: user exists, skipping", "email", du.email)
			continue
		}
		if err != nil {
			slog.Error("create user", "email", du.email, "error", err)
			os.Exit(1)
		}
		slog.Info("seed: created user", "email", du.email, "role", du.role, "two_factor", du.twoFactor)
	}
	slog.Info("seed complete", "password", devPassword)
}
