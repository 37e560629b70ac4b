// Server runs the backend auth API over HTTP/JSON.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chabaqa/backend/internal/audit"
	auditrepo "chabaqa/backend/internal/audit/repository"
	"chabaqa/backend/internal/config"
	"chabaqa/backend/internal/db"
	"chabaqa/backend/internal/devotp"
	identityrepo "chabaqa/backend/internal/identity/repository"
	identityservice "chabaqa/backend/internal/identity/service"
	"chabaqa/backend/internal/logging"
	"chabaqa/backend/internal/metrics"
	"chabaqa/backend/internal/mfa/mail"
	mfarepo "chabaqa/backend/internal/mfa/repository"
	"chabaqa/backend/internal/policy/engine"
	"chabaqa/backend/internal/security"
	"chabaqa/backend/internal/server"
	"chabaqa/backend/internal/server/middleware"
	sessionrepo "chabaqa/backend/internal/session/repository"
	"chabaqa/backend/internal/telemetry"
	telemetryotel "chabaqa/backend/internal/telemetry/otel"
	"chabaqa/backend/internal/telemetry/producer"
	userrepo "chabaqa/backend/internal/user/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg, "chabaqa-api")

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "chabaqa-api",
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() { _ = providers.Shutdown(context.Background()) }()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	tokens, err := security.ProviderFromConfig(cfg)
	if err != nil {
		return err
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxyList())
	if err != nil {
		return err
	}

	reg, m := metrics.NewRegistry()

	emitters := telemetry.Fanout{m, telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic); kp != nil {
		defer kp.Close()
		emitters = append(emitters, kp)
		slog.Info("auth events: kafka enabled", "topic", cfg.TelemetryKafkaTopic)
	}
	np, err := producer.NewNATSProducer(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return err
	}
	if np != nil {
		defer np.Close()
		emitters = append(emitters, np)
		slog.Info("auth events: nats enabled", "prefix", cfg.NATSSubject)
	}

	challenges, closeChallenges, err := challengeStore(ctx, cfg, conn)
	if err != nil {
		return err
	}
	defer closeChallenges()

	var (
		codes  identityservice.CodeSender
		devOTP devotp.Store
	)
	if cfg.OTPReturnToClient {
		store := devotp.NewMemoryStore(cfg.ChallengeTTL())
		codes, devOTP = store, store
		slog.Warn("dev OTP mode: 2FA codes are served at /dev/2fa/code and never mailed")
	} else {
		codes = mail.NewClient(cfg.MailAPIKey, cfg.MailBaseURL, cfg.MailSender)
	}

	users := userrepo.NewPostgresRepository(conn)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.ClientIP)

	auth := identityservice.NewAuthService(
		users,
		identityrepo.NewPostgresRepository(conn),
		sessionrepo.NewPostgresRepository(conn),
		challenges,
		codes,
		security.NewHasher(cfg.BcryptCost),
		tokens,
		identityservice.Options{
			MaxAttempts:  cfg.TwoFactorMaxAttempts,
			ChallengeTTL: cfg.ChallengeTTL(),
			Events:       emitters,
			Audit:        auditLogger,
		},
	)

	deps := server.Deps{
		Auth:           auth,
		Tokens:         tokens,
		Users:          users,
		AuditLogger:    auditLogger,
		HealthPinger:   conn,
		DevOTP:         devOTP,
		Metrics:        m,
		MetricsHandler: metrics.Handler(reg),
		AuthRateLimit:  cfg.AuthRateLimit,
		TrustedProxies: trusted,
	}
	if cfg.GatePolicyEngine == "opa" {
		authz, err := engine.NewOPAAuthorizerFromFile(ctx, cfg.GatePolicyFile)
		if err != nil {
			return err
		}
		deps.HealthPolicyChecker = authz
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTPAddr, "alg", tokens.Alg())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("HTTP server stopped")
	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		slog.Warn("auth events: drain timed out", "timeout", telemetry.ShutdownDrainDuration)
	}
	return nil
}

// challengeStore returns the configured challenge repository and a func that releases its client.
func challengeStore(ctx context.Context, cfg *config.Config, conn *sql.DB) (mfarepo.Repository, func(), error) {
	switch cfg.TwoFactorStore {
	case "redis":
		client, err := mfarepo.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				slog.Warn("redis close", "error", err)
			}
		}
		return mfarepo.NewRedisRepository(client), closeFn, nil
	case "memory":
		return mfarepo.NewMemoryRepository(), func() {}, nil
	}
	return mfarepo.NewPostgresRepository(conn), func() {}, nil
}
