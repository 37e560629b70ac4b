package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chabaqa/backend/internal/audit"
)

// Audit records an audit entry for every authenticated request after the handler runs.
// Action and resource come from the chi route pattern. Requests without an Identity are not audited.
func Audit(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if logger == nil {
				return
			}
			id, ok := GetIdentity(r.Context())
			if !ok {
				return
			}
			pattern := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			ar := audit.ParseRoute(r.Method, pattern)
			logger.LogEvent(r.Context(), id.UserID, ar.Action, ar.Resource, "status="+http.StatusText(rec.status))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
