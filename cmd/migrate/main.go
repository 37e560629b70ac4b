// migrate applies the embedded SQL migrations: go run ./cmd/migrate [-direction up|down].
package main

import (
	"flag"
	"log/slog"
	"os"

	"chabaqa/backend/internal/config"
	"chabaqa/backend/internal/db/migrate"
	"chabaqa/backend/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg, "chabaqa-migrate")
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		slog.Error("migrate", "direction", *direction, "error", err)
		os.Exit(1)
	}
	version, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		slog.Warn("migrate: could not read version", "error", err)
		return
	}
	slog.Info("migrate: done", "direction", *direction, "version", version, "dirty", dirty)
}
