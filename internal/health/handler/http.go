package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"chabaqa/backend/internal/envelope"
)

// Pinger is used to check database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used to check that the route policy engine can evaluate (e.g. the OPA authorizer).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

const checkTimeout = 2 * time.Second

// Status values reported by /readyz.
const (
	StatusServing    = "serving"
	StatusNotServing = "not_serving"
)

// Server serves liveness and readiness probes.
type Server struct {
	pinger        Pinger
	policyChecker PolicyChecker
}

// NewServer returns a health server. pinger and policyChecker may be nil; nil checks are skipped.
func NewServer(pinger Pinger, policyChecker PolicyChecker) *Server {
	return &Server{pinger: pinger, policyChecker: policyChecker}
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live handles GET /healthz. It only reports that the process is up.
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	envelope.WriteData(w, http.StatusOK, readiness{Status: StatusServing})
}

// Ready handles GET /readyz. A failed check returns 503 with the failing check named; errors are logged, not exposed.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	checks := make(map[string]string)
	ok := true
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			slog.WarnContext(ctx, "readiness: database ping failed", "error", err)
			checks["database"] = StatusNotServing
			ok = false
		} else {
			checks["database"] = StatusServing
		}
	}
	if s.policyChecker != nil {
		if err := s.policyChecker.HealthCheck(ctx); err != nil {
			slog.WarnContext(ctx, "readiness: policy check failed", "error", err)
			checks["policy"] = StatusNotServing
			ok = false
		} else {
			checks["policy"] = StatusServing
		}
	}
	if !ok {
		envelope.WriteData(w, http.StatusServiceUnavailable, readiness{Status: StatusNotServing, Checks: checks})
		return
	}
	envelope.WriteData(w, http.StatusOK, readiness{Status: StatusServing, Checks: checks})
}
