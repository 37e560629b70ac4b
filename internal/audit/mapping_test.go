package audit

import (
	"testing"

	"chabaqa/backend/internal/telemetry/domain"
)

func TestFromEvent(t *testing.T) {
	tests := []struct {
		event string
		want  ActionResource
	}{
		{domain.EventLoginSucceeded, ActionResource{"login_success", "session"}},
		{domain.EventLoginFailed, ActionResource{"login_failure", "session"}},
		{domain.EventRoleChanged, ActionResource{"role_changed", "user"}},
		{domain.EventRefreshReuse, ActionResource{"refresh_reuse", "session"}},
		{"auth.password.reset", ActionResource{"reset", "auth"}},
		{"weird", ActionResource{"unknown", "unknown"}},
		{"trailing.", ActionResource{"unknown", "unknown"}},
	}
	for _, tt := range tests {
		if got := FromEvent(tt.event); got != tt.want {
			t.Errorf("FromEvent(%q) = %+v, want %+v", tt.event, got, tt.want)
		}
	}
}

func TestParseRoute(t *testing.T) {
	tests := []struct {
		method, pattern string
		want            ActionResource
	}{
		{"PUT", "/admin/users/{id}/role", ActionResource{"role_changed", "user"}},
		{"PUT", "/auth/two-factor", ActionResource{"two_factor_changed", "auth"}},
		{"POST", "/auth/login", ActionResource{"login", "auth"}},
		{"POST", "/auth/logout", ActionResource{"logout", "auth"}},
		{"GET", "/admin/users/{id}", ActionResource{"get", "user"}},
		{"DELETE", "/sessions/{id}", ActionResource{"delete", "session"}},
		{"GET", "/", ActionResource{"get", "unknown"}},
	}
	for _, tt := range tests {
		if got := ParseRoute(tt.method, tt.pattern); got != tt.want {
			t.Errorf("ParseRoute(%s %s) = %+v, want %+v", tt.method, tt.pattern, got, tt.want)
		}
	}
}
