// Package server wires the backend HTTP API: middleware, handlers, and route groups.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chabaqa/backend/internal/audit"
	"chabaqa/backend/internal/devotp"
	devotphandler "chabaqa/backend/internal/devotp/handler"
	"chabaqa/backend/internal/envelope"
	healthhandler "chabaqa/backend/internal/health/handler"
	identityhandler "chabaqa/backend/internal/identity/handler"
	identityservice "chabaqa/backend/internal/identity/service"
	"chabaqa/backend/internal/metrics"
	"chabaqa/backend/internal/platform/rbac"
	"chabaqa/backend/internal/security"
	"chabaqa/backend/internal/server/middleware"
	userdomain "chabaqa/backend/internal/user/domain"
)

// Deps holds optional dependencies for the HTTP handlers.
type Deps struct {
	// Auth is the auth service. If nil, /auth and /admin endpoints return 503.
	Auth *identityservice.AuthService
	// Tokens verifies access tokens for Authenticate. If nil, every request is anonymous.
	Tokens *security.TokenProvider
	// Users resolves the caller's stored role for /admin routes. If nil, /admin is not mounted.
	Users rbac.UserGetter
	// AuditLogger records admin actions. If nil, admin requests are not audited by route.
	AuditLogger audit.AuditLogger
	// HealthPinger is used by /readyz (e.g. *sql.DB). If nil, the database check is skipped.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is used by /readyz (e.g. the OPA authorizer). If nil, the policy check is skipped.
	HealthPolicyChecker healthhandler.PolicyChecker
	// DevOTP serves GET /dev/2fa/code. Set only when dev OTP is enabled and not production.
	DevOTP devotp.Store
	// Metrics records request metrics and rate-limit hits. May be nil.
	Metrics *metrics.Metrics
	// MetricsHandler serves /metrics. If nil, /metrics is not mounted.
	MetricsHandler http.Handler
	// AuthRateLimit is requests per minute per IP on login, verify-2fa, and register. 0 disables.
	AuthRateLimit int
	// TrustedProxies are the peers (e.g. the gate) allowed to name the client via X-Forwarded-For.
	// Empty means every request is attributed to its TCP peer.
	TrustedProxies middleware.TrustedProxies
}

// NewRouter returns the backend API handler.
//
// Route → handler mapping:
//   - /healthz, /readyz              → internal/health/handler
//   - /auth/*                        → internal/identity/handler
//   - /admin/users/{id}/role         → internal/identity/handler (admin only, audited)
//   - /dev/2fa/code                  → internal/devotp/handler (dev only)
//   - /metrics                       → internal/metrics
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(deps.TrustedProxies.Middleware)
	r.Use(deps.Metrics.Middleware)
	if deps.Tokens != nil {
		r.Use(middleware.Authenticate(deps.Tokens))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteError(w, http.StatusNotFound, envelope.CodeNotFound, "not found", nil)
	})

	health := healthhandler.NewServer(deps.HealthPinger, deps.HealthPolicyChecker)
	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	auth := identityhandler.NewAuthHandler(deps.Auth)
	limiter := middleware.NewIPRateLimiter(deps.AuthRateLimit).OnLimit(deps.Metrics.RateLimitHit)
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/register", auth.Register)
			r.Post("/login", auth.Login)
			r.Post("/verify-2fa", auth.VerifyTwoFactor)
		})
		r.Post("/refresh", auth.Refresh)
		r.Post("/logout", auth.Logout)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/me", auth.Me)
			r.Put("/two-factor", auth.SetTwoFactor)
		})
	})

	if deps.Users != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(rbac.Require(deps.Users, userdomain.RoleAdmin))
			r.Use(middleware.Audit(deps.AuditLogger))
			r.Put("/users/{id}/role", auth.ChangeRole)
		})
	}

	if deps.DevOTP != nil {
		r.Get("/dev/2fa/code", devotphandler.NewHandler(deps.DevOTP).GetCode)
	}

	return otelhttp.NewHandler(r, "chabaqa-api")
}
