package audit

import (
	"net/http"
	"strings"

	"chabaqa/backend/internal/telemetry/domain"
)

// ActionResource holds the audit action and resource for an auth event or HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

var eventActions = map[string]ActionResource{
	domain.EventRegistered:       {"register", "user"},
	domain.EventLoginSucceeded:   {"login_success", "session"},
	domain.EventLoginFailed:      {"login_failure", "session"},
	domain.EventLoginChallenged:  {"login_challenged", "session"},
	domain.EventTwoFactorPassed:  {"2fa_success", "session"},
	domain.EventTwoFactorFailed:  {"2fa_failure", "session"},
	domain.EventTwoFactorLocked:  {"2fa_locked", "session"},
	domain.EventTokenRefreshed:   {"refresh", "session"},
	domain.EventRefreshReuse:     {"refresh_reuse", "session"},
	domain.EventLoggedOut:        {"logout", "session"},
	domain.EventRoleChanged:      {"role_changed", "user"},
	domain.EventTwoFactorToggled: {"2fa_toggled", "user"},
}

// FromEvent maps an auth event type to its audit action and resource.
// Unknown types map to the last segment of the type on resource "auth".
func FromEvent(eventType string) ActionResource {
	if ar, ok := eventActions[eventType]; ok {
		return ar
	}
	if i := strings.LastIndex(eventType, "."); i >= 0 && i < len(eventType)-1 {
		return ActionResource{Action: eventType[i+1:], Resource: "auth"}
	}
	return ActionResource{Action: "unknown", Resource: "unknown"}
}

// ParseRoute returns action and resource for an HTTP method and route pattern (e.g. PUT /admin/users/{id}/role).
// Resource is the first static path segment after any "admin" prefix, singularised; action follows the method,
// or the last static segment for POST sub-actions.
func ParseRoute(method, pattern string) ActionResource {
	var segs []string
	for _, s := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if s == "" || strings.HasPrefix(s, "{") || s == "*" {
			continue
		}
		segs = append(segs, s)
	}
	if len(segs) > 0 && segs[0] == "admin" {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	resource := strings.TrimSuffix(segs[0], "s")
	if len(segs) > 1 {
		last := strings.ReplaceAll(segs[len(segs)-1], "-", "_")
		switch method {
		case http.MethodPut, http.MethodPatch:
			return ActionResource{Action: last + "_changed", Resource: resource}
		case http.MethodPost:
			return ActionResource{Action: last, Resource: resource}
		}
	}
	return ActionResource{Action: methodToAction(method), Resource: resource}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "get"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
