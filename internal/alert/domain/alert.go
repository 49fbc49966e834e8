// Package domain holds the security alert model. Alerts are append-only from the
// engine's side; acknowledgement belongs to operator tooling.
package domain

import "time"

// Kind is the closed set of security-relevant events the engine raises.
type Kind string

const (
	KindNewDevice          Kind = "new_device"
	KindNewCountry         Kind = "new_country"
	KindForceLogout        Kind = "force_logout"
	KindSuspiciousActivity Kind = "suspicious_activity"
	KindTokenReuse         Kind = "token_reuse"
)

// IsValid reports whether k is one of the known alert kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindNewDevice, KindNewCountry, KindForceLogout, KindSuspiciousActivity, KindTokenReuse:
		return true
	}
	return false
}

// Severity grades an alert for operator triage.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one security-relevant event.
type Alert struct {
	ID             string
	TenantID       string
	UserID         string
	Kind           Kind
	Severity       Severity
	Message        string
	Metadata       string
	AcknowledgedAt *time.Time
	AcknowledgedBy string
	CreatedAt      time.Time
}
