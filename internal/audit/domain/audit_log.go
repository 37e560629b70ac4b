package domain

import "time"

// AuditLog is one recorded auth action. UserID is empty for actions by unknown callers (e.g. failed logins).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
