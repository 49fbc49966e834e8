// Package domain holds the audit event model.
package domain

import "time"

// AuditLog represents an audit event. Every token expiration, deletion, and
// revocation in the engine is attributable through one of these rows.
type AuditLog struct {
	ID        string
	TenantID  string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
