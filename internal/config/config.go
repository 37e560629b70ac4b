// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
// The backend API, the edge gate, the CLI, and the worker share one Config; each binary reads the fields it needs.
type Config struct {
	// HTTPAddr is the address the backend auth API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GateAddr is the address the edge gate listens on (e.g. :3000).
	GateAddr string `mapstructure:"GATE_ADDR"`
	// GateUpstreamURL is the web app origin the gate proxies allowed requests to.
	GateUpstreamURL string `mapstructure:"GATE_UPSTREAM_URL"`
	// BackendURL is the base URL of the backend auth API, used by the gate's server actions and the CLI.
	BackendURL string `mapstructure:"BACKEND_URL"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTSecret is the process-wide HMAC secret (HS256). Takes precedence over the key pair when set.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file. The gate only needs this half.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "168h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h"). Must exceed the access TTL.
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// TwoFactorTTL is how long an emailed 2FA code stays valid (e.g. "10m").
	TwoFactorTTL string `mapstructure:"TWO_FACTOR_TTL"`
	// TwoFactorMaxAttempts caps wrong codes per challenge; 0 disables the cap.
	TwoFactorMaxAttempts int `mapstructure:"TWO_FACTOR_MAX_ATTEMPTS"`
	// TwoFactorStore selects challenge storage: "postgres", "redis", or "memory".
	TwoFactorStore string `mapstructure:"TWO_FACTOR_STORE"`
	// RedisURL is the Redis URL used when TwoFactorStore is "redis".
	RedisURL string `mapstructure:"REDIS_URL"`

	// MailAPIKey is the API key for the transactional mail API that delivers 2FA codes.
	MailAPIKey string `mapstructure:"MAIL_API_KEY"`
	// MailBaseURL is the mail API endpoint.
	MailBaseURL string `mapstructure:"MAIL_BASE_URL"`
	// MailSender is the From address for 2FA mail.
	MailSender string `mapstructure:"MAIL_SENDER"`
	// OTPReturnToClient enables dev OTP mode: no mail, codes kept for GET /dev/2fa/code. Rejected when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production"). Production turns on Secure cookies.
	Env string `mapstructure:"APP_ENV"`

	// CookieDomain is optional; empty means host-only cookies.
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`
	// RoutesFile is an optional YAML file with gate path patterns. Empty uses the built-in defaults.
	RoutesFile string `mapstructure:"ROUTES_FILE"`
	// GatePolicyEngine selects role checks in the gate: "static" or "opa".
	GatePolicyEngine string `mapstructure:"GATE_POLICY_ENGINE"`
	// GatePolicyFile is an optional Rego module for the opa engine. Empty uses the built-in policy.
	GatePolicyFile string `mapstructure:"GATE_POLICY_FILE"`
	// SignInPath is where anonymous visitors of protected pages are sent.
	SignInPath string `mapstructure:"SIGNIN_PATH"`
	// ExplorePath is the post-auth destination for the user role.
	ExplorePath string `mapstructure:"EXPLORE_PATH"`
	// CreatorHomePath is the post-auth destination for creator and admin roles.
	CreatorHomePath string `mapstructure:"CREATOR_HOME_PATH"`
	// LandingPath is the default authenticated page used when a role check fails.
	LandingPath string `mapstructure:"LANDING_PATH"`
	// HomePath is where the client navigates after logout.
	HomePath string `mapstructure:"HOME_PATH"`
	// AuthRateLimit is the number of login/verify/register requests allowed per IP per minute; 0 disables.
	AuthRateLimit int `mapstructure:"AUTH_RATE_LIMIT"`
	// TrustedProxies is a comma-separated list of CIDRs or addresses (e.g. the gate) whose
	// X-Forwarded-For and X-Real-IP headers are honoured. Other peers are identified by their TCP address.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
	// GateTrustedProxies lists the load balancers in front of the gate, in the same format.
	// Empty means the gate names each browser by its TCP address when calling the backend.
	GateTrustedProxies string `mapstructure:"GATE_TRUSTED_PROXIES"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables Kafka events.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for auth events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// NATSURL enables publishing auth events to NATS when set.
	NATSURL string `mapstructure:"NATS_URL"`
	// NATSSubject is the subject prefix for auth events; each event goes to "<prefix>.<event type>".
	NATSSubject string `mapstructure:"NATS_SUBJECT"`
	// OTLPEndpoint is the OTLP gRPC collector (e.g. http://localhost:4317). Empty means no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GATE_ADDR", ":3000")
	v.SetDefault("GATE_UPSTREAM_URL", "http://localhost:3001")
	v.SetDefault("BACKEND_URL", "http://localhost:8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "chabaqa-auth")
	v.SetDefault("JWT_AUDIENCE", "chabaqa-web")
	v.SetDefault("JWT_ACCESS_TTL", "168h")  // 7d
	v.SetDefault("JWT_REFRESH_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("TWO_FACTOR_TTL", "10m")
	v.SetDefault("TWO_FACTOR_MAX_ATTEMPTS", 5)
	v.SetDefault("TWO_FACTOR_STORE", "postgres")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("MAIL_API_KEY", "")
	v.SetDefault("MAIL_BASE_URL", "https://api.mailchannel.example/v1/send")
	v.SetDefault("MAIL_SENDER", "no-reply@chabaqa.io")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("ROUTES_FILE", "")
	v.SetDefault("GATE_POLICY_ENGINE", "static")
	v.SetDefault("GATE_POLICY_FILE", "")
	v.SetDefault("SIGNIN_PATH", "/signin")
	v.SetDefault("EXPLORE_PATH", "/explore")
	v.SetDefault("CREATOR_HOME_PATH", "/creator/dashboard")
	v.SetDefault("LANDING_PATH", "/dashboard")
	v.SetDefault("HOME_PATH", "/")
	v.SetDefault("AUTH_RATE_LIMIT", 20)
	v.SetDefault("TRUSTED_PROXIES", "127.0.0.1,::1")
	v.SetDefault("GATE_TRUSTED_PROXIES", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "chabaqa-auth-events")
	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT", "chabaqa")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "chabaqa-auth-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.IsProduction() {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.RefreshTTL() <= cfg.AccessTTL() {
		return nil, errors.New("config: JWT_REFRESH_TTL must be longer than JWT_ACCESS_TTL")
	}

	switch cfg.TwoFactorStore {
	case "postgres", "redis", "memory":
	default:
		return nil, errors.New("config: TWO_FACTOR_STORE must be postgres, redis, or memory")
	}
	if cfg.TwoFactorStore == "redis" && cfg.RedisURL == "" {
		return nil, errors.New("config: REDIS_URL is required when TWO_FACTOR_STORE=redis")
	}
	if cfg.TwoFactorMaxAttempts < 0 {
		return nil, errors.New("config: TWO_FACTOR_MAX_ATTEMPTS must not be negative")
	}

	switch cfg.GatePolicyEngine {
	case "static", "opa":
	default:
		return nil, errors.New("config: GATE_POLICY_ENGINE must be static or opa")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production. Secure cookies are set only in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 7 days if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 30 days if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 30 * 24 * time.Hour
	}
	return d
}

// ChallengeTTL parses TwoFactorTTL. Returns 10 minutes if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	d, err := time.ParseDuration(c.TwoFactorTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// TrustedProxyList returns the trusted proxy entries from the comma-separated config.
func (c *Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

// GateTrustedProxyList returns the gate's trusted proxy entries.
func (c *Config) GateTrustedProxyList() []string {
	return splitList(c.GateTrustedProxies)
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka events are enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
