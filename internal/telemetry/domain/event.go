package domain

import "time"

// Event types emitted by the auth flow.
const (
	EventRegistered       = "auth.registered"
	EventLoginSucceeded   = "auth.login.succeeded"
	EventLoginFailed      = "auth.login.failed"
	EventLoginChallenged  = "auth.login.challenged"
	EventTwoFactorPassed  = "auth.2fa.verified"
	EventTwoFactorFailed  = "auth.2fa.failed"
	EventTwoFactorLocked  = "auth.2fa.locked"
	EventTokenRefreshed   = "auth.token.refreshed"
	EventRefreshReuse     = "auth.token.reuse"
	EventLoggedOut        = "auth.logout"
	EventRoleChanged      = "auth.role.changed"
	EventTwoFactorToggled = "auth.2fa.toggled"
)

// Event is one auth event as it travels to Kafka, NATS, OTel logs, and Loki.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"eventType"`
	UserID    string            `json:"userId,omitempty"`
	Email     string            `json:"email,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
